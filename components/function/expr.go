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

package function

import (
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// compileCondition compiles a boolean expression. Unknown variables evaluate to
// nil instead of failing compilation.
func compileCondition(code string) (*vm.Program, error) {
	program, err := expr.Compile(code, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expression %q: %v", types.ErrBadConfig, code, err)
	}
	return program, nil
}

// exprEnv exposes a message to expressions.
func exprEnv(msg *types.Msg, env types.Environment) map[string]interface{} {
	vars := map[string]interface{}{
		"msg":     msg.Data(),
		"id":      msg.Id(),
		"payload": msg.Payload(),
		"topic":   msg.Topic(),
	}
	if env != nil {
		vars["global"] = env.Config().Properties
	}
	return vars
}

// evalCondition runs program against msg.
func evalCondition(program *vm.Program, msg *types.Msg, env types.Environment) (bool, error) {
	out, err := vm.Run(program, exprEnv(msg, env))
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	return ok && result, nil
}
