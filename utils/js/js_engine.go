/*
 * Copyright 2024 The EdgeLink Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package js runs JavaScript with goja for the function node.
//
// A script is compiled once. Each Execute borrows a VM from a pool, calls a
// function the script defines and exports the result to Go values. Execution is
// interrupted once it exceeds the configured limit.
package js

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/edgelinkgo/edgelink/api/types"
)

// GlobalKey is the name under which global properties are visible to scripts,
// unless the caller's vars define it.
const GlobalKey = "global"

// ErrTimeout is returned when a script runs longer than its limit.
var ErrTimeout = errors.New("js execution timeout")

// GojaJsEngine is a pool of goja VMs sharing one compiled script.
type GojaJsEngine struct {
	vmPool   sync.Pool
	config   types.Config
	jsScript *goja.Program
}

// NewGojaJsEngine compiles jsScript. vars are set as globals of every VM, for
// example Go functions the script may call.
func NewGojaJsEngine(config types.Config, jsScript string, vars map[string]interface{}) (*GojaJsEngine, error) {
	program, err := goja.Compile("", jsScript, true)
	if err != nil {
		return nil, err
	}
	jsEngine := &GojaJsEngine{
		config:   config,
		jsScript: program,
	}
	// a VM that fails to run the script surfaces the error on first use
	if _, err = jsEngine.newVm(vars); err != nil {
		return nil, err
	}
	jsEngine.vmPool = sync.Pool{
		New: func() interface{} {
			vm, err := jsEngine.newVm(vars)
			if err != nil {
				types.NewLogger(config.Logger).Printf("js vm error: %s", err.Error())
			}
			return vm
		},
	}
	return jsEngine, nil
}

func (g *GojaJsEngine) newVm(vars map[string]interface{}) (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return vm, fmt.Errorf("set var %s: %w", k, err)
		}
	}
	if _, ok := vars[GlobalKey]; !ok && len(g.config.Properties) != 0 {
		if err := vm.Set(GlobalKey, g.config.Properties); err != nil {
			return vm, fmt.Errorf("set global properties: %w", err)
		}
	}
	timer := g.startTimeout(vm)
	_, err := vm.RunProgram(g.jsScript)
	g.stopTimeout(vm, timer)
	return vm, err
}

// Execute calls functionName with argumentList and exports its result.
func (g *GojaJsEngine) Execute(functionName string, argumentList ...interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%v", caught)
		}
	}()

	vm := g.vmPool.Get().(*goja.Runtime)
	defer g.vmPool.Put(vm)

	timer := g.startTimeout(vm)
	defer g.stopTimeout(vm, timer)

	f, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, errors.New(functionName + " is not a function")
	}
	params := make([]goja.Value, len(argumentList))
	for i, v := range argumentList {
		params[i] = vm.ToValue(v)
	}
	res, err := f(goja.Undefined(), params...)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, g.config.ScriptMaxExecutionTime)
		}
		return nil, err
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}

// startTimeout interrupts vm once the execution limit is reached. It returns nil
// when no limit is configured.
func (g *GojaJsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.config.ScriptMaxExecutionTime <= 0 {
		return nil
	}
	return time.AfterFunc(g.config.ScriptMaxExecutionTime, func() {
		vm.Interrupt("execution timeout")
	})
}

func (g *GojaJsEngine) stopTimeout(vm *goja.Runtime, timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
	vm.ClearInterrupt()
}
