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

//Node configuration example:
//{
//  "id": "s1",
//  "type": "switch",
//  "z": "flow1",
//  "property": "payload.temperature",
//  "propertyType": "msg",
//  "rules": [
//    {"t": "gt", "v": "50", "vt": "num"},
//    {"t": "expr", "v": "payload.temperature < 0"},
//    {"t": "else"}
//  ],
//  "checkall": "true",
//  "outputs": 3,
//  "wires": [["n2"], ["n3"], ["n4"]]
//}
import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/cast"
	"github.com/edgelinkgo/edgelink/utils/propex"
	"github.com/edgelinkgo/edgelink/utils/str"
	"github.com/expr-lang/expr/vm"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("switch", types.PIPE, newSwitchNode))
}

// SwitchRule is one output condition. T is one of eq, neq, lt, lte, gt, gte,
// cont, true, false, null, nnull, else and expr.
type SwitchRule struct {
	T  string
	V  interface{}
	Vt string
}

// SwitchNodeConfiguration node configuration
type SwitchNodeConfiguration struct {
	// Property is the value tested by the rules, defaulting to payload.
	Property string
	// PropertyType is msg, global or env.
	PropertyType string
	Rules        []SwitchRule
	// Checkall sends to every matching rule when "true", else to the first one.
	Checkall interface{}
}

// SwitchNode routes each message to the ports of its matching rules. Port i
// belongs to rule i. Every port after the first match gets its own clone.
type SwitchNode struct {
	base.FlowNode
	Config   SwitchNodeConfiguration
	path     propex.Path
	checkAll bool
	programs []*vm.Program
}

func newSwitchNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &SwitchNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if node.Config.Property == "" {
		node.Config.Property = types.PayloadKey
	}
	if node.Config.PropertyType == "" {
		node.Config.PropertyType = base.TypeMsg
	}
	if node.Config.PropertyType == base.TypeMsg {
		path, err := propex.Parse(node.Config.Property)
		if err != nil {
			return nil, fmt.Errorf("%w: switch %s: %v", types.ErrBadConfig, id, err)
		}
		node.path = path
	}
	node.checkAll = node.Config.Checkall == nil || str.ToString(node.Config.Checkall) == "true"
	node.programs = make([]*vm.Program, len(node.Config.Rules))
	for i, rule := range node.Config.Rules {
		switch rule.T {
		case "eq", "neq", "lt", "lte", "gt", "gte", "cont", "true", "false", "null", "nnull", "else":
		case "expr":
			program, err := compileCondition(str.ToString(rule.V))
			if err != nil {
				return nil, fmt.Errorf("switch %s rule %d: %w", id, i, err)
			}
			node.programs[i] = program
		default:
			return nil, fmt.Errorf("%w: switch %s rule %d: unknown type %q", types.ErrBadConfig, id, i, rule.T)
		}
	}
	return node, nil
}

func (x *SwitchNode) Receive(ctx context.Context, msg *types.Msg) error {
	prop, err := x.property(msg)
	if err != nil {
		return fmt.Errorf("switch %s: %w", x.Id(), err)
	}
	outputs := len(x.Outputs())
	msgs := make([]*types.Msg, len(x.Config.Rules))
	matched := false
	for i, rule := range x.Config.Rules {
		ok, err := x.match(i, rule, prop, matched, msg)
		if err != nil {
			return fmt.Errorf("switch %s rule %d: %w", x.Id(), i, err)
		}
		if !ok {
			continue
		}
		if !matched {
			msgs[i] = msg
		} else {
			msgs[i] = msg.Clone(nil)
		}
		matched = true
		if !x.checkAll {
			break
		}
	}
	if !matched {
		return nil
	}
	// rules without a wired port are dropped
	if len(msgs) > outputs {
		msgs = msgs[:outputs]
	}
	return x.SendMany(ctx, msgs...)
}

// property returns the tested value, nil when the message lacks it.
func (x *SwitchNode) property(msg *types.Msg) (interface{}, error) {
	if x.path != nil {
		v, err := msg.GetPath(x.path)
		if errors.Is(err, propex.ErrLookup) {
			return nil, nil
		}
		return v, err
	}
	return base.TypedValue(x.Config.Property, x.Config.PropertyType, msg, x.Env())
}

func (x *SwitchNode) match(i int, rule SwitchRule, prop interface{}, matched bool, msg *types.Msg) (bool, error) {
	switch rule.T {
	case "else":
		return !matched, nil
	case "true":
		return prop == true, nil
	case "false":
		return prop == false, nil
	case "null":
		return prop == nil, nil
	case "nnull":
		return prop != nil, nil
	case "expr":
		return evalCondition(x.programs[i], msg, x.Env())
	}
	vt := rule.Vt
	if vt == "" {
		vt = base.TypeStr
	}
	v, err := base.TypedValue(rule.V, vt, msg, x.Env())
	if err != nil {
		return false, err
	}
	switch rule.T {
	case "eq":
		return equal(prop, v), nil
	case "neq":
		return !equal(prop, v), nil
	case "cont":
		return prop != nil && strings.Contains(str.ToString(prop), str.ToString(v)), nil
	}
	a, errA := cast.ToFloat64E(prop)
	b, errB := cast.ToFloat64E(v)
	if errA != nil || errB != nil {
		return false, nil
	}
	switch rule.T {
	case "lt":
		return a < b, nil
	case "lte":
		return a <= b, nil
	case "gt":
		return a > b, nil
	case "gte":
		return a >= b, nil
	}
	return false, nil
}

// equal compares numbers by value and everything else by its text form, the way
// an editor-entered rule value is meant to match.
func equal(a, b interface{}) bool {
	if fa, err := cast.ToFloat64E(a); err == nil {
		if fb, err := cast.ToFloat64E(b); err == nil {
			return fa == fb
		}
	}
	if isScalar(a) && isScalar(b) {
		return str.ToString(a) == str.ToString(b)
	}
	return reflect.DeepEqual(a, b)
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool, float64, int, int64:
		return true
	}
	return false
}
