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
//  "id": "c1",
//  "type": "change",
//  "z": "flow1",
//  "rules": [
//    {"t": "set", "p": "payload.unit", "to": "celsius", "tot": "str"},
//    {"t": "change", "p": "topic", "from": "raw/", "fromt": "str", "to": "clean/", "tot": "str"},
//    {"t": "move", "p": "payload.value", "to": "value"},
//    {"t": "delete", "p": "payload.debug"}
//  ],
//  "wires": [["n2"]]
//}
import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/maps"
	"github.com/edgelinkgo/edgelink/utils/propex"
	"github.com/edgelinkgo/edgelink/utils/str"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("change", types.PIPE, newChangeNode))
}

// Change rule types.
const (
	RuleSet    = "set"
	RuleChange = "change"
	RuleDelete = "delete"
	RuleMove   = "move"
)

// typeRegex marks a "from" value of a change rule as a regular expression.
const typeRegex = "re"

// ChangeRule is one step of a change node.
type ChangeRule struct {
	// T is the rule type.
	T string
	// P is the property expression the rule works on.
	P string
	// To is the new value, or the destination property of a move.
	To interface{}
	// Tot is the value type of To.
	Tot string
	// From is the value replaced by a change rule.
	From interface{}
	// Fromt is the value type of From, "re" for a regular expression.
	Fromt string
}

// ChangeNodeConfiguration node configuration
type ChangeNodeConfiguration struct {
	Rules []ChangeRule
}

type compiledRule struct {
	ChangeRule
	path   propex.Path
	toPath propex.Path
	re     *regexp.Regexp
}

// ChangeNode applies its rules to each message in order, then forwards it.
type ChangeNode struct {
	base.FlowNode
	Config ChangeNodeConfiguration
	rules  []compiledRule
}

func newChangeNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &ChangeNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	for i, rule := range node.Config.Rules {
		compiled, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("%w: change %s rule %d: %v", types.ErrBadConfig, id, i, err)
		}
		node.rules = append(node.rules, compiled)
	}
	return node, nil
}

func compileRule(rule ChangeRule) (compiledRule, error) {
	compiled := compiledRule{ChangeRule: rule}
	var err error
	if compiled.path, err = propex.Parse(rule.P); err != nil {
		return compiled, err
	}
	switch rule.T {
	case RuleSet, RuleDelete:
	case RuleChange:
		if rule.Fromt == typeRegex {
			if compiled.re, err = regexp.Compile(str.ToString(rule.From)); err != nil {
				return compiled, err
			}
		}
	case RuleMove:
		if compiled.toPath, err = propex.Parse(str.ToString(rule.To)); err != nil {
			return compiled, err
		}
	default:
		return compiled, fmt.Errorf("unknown rule type %q", rule.T)
	}
	return compiled, nil
}

func (x *ChangeNode) Receive(ctx context.Context, msg *types.Msg) error {
	for i := range x.rules {
		if err := x.apply(&x.rules[i], msg); err != nil {
			return fmt.Errorf("change %s rule %d: %w", x.Id(), i, err)
		}
	}
	return x.SendToOnlyPort(ctx, msg)
}

func (x *ChangeNode) apply(rule *compiledRule, msg *types.Msg) error {
	switch rule.T {
	case RuleSet:
		v, err := x.value(rule.To, rule.Tot, msg)
		if err != nil {
			return err
		}
		return msg.SetPath(rule.path, v)
	case RuleDelete:
		if err := msg.DeleteAt(rule.P); err != nil && !errors.Is(err, propex.ErrLookup) {
			return err
		}
		return nil
	case RuleMove:
		v, err := msg.GetPath(rule.path)
		if errors.Is(err, propex.ErrLookup) {
			return nil
		} else if err != nil {
			return err
		}
		if err = msg.DeleteAt(rule.P); err != nil {
			return err
		}
		return msg.SetPath(rule.toPath, v)
	case RuleChange:
		current, err := msg.GetPath(rule.path)
		if errors.Is(err, propex.ErrLookup) {
			return nil
		} else if err != nil {
			return err
		}
		to, err := x.value(rule.To, rule.Tot, msg)
		if err != nil {
			return err
		}
		if rule.re != nil {
			if s, ok := current.(string); ok {
				return msg.SetPath(rule.path, rule.re.ReplaceAllString(s, str.ToString(to)))
			}
			return nil
		}
		from, err := x.value(rule.From, rule.Fromt, msg)
		if err != nil {
			return err
		}
		if s, ok := current.(string); ok {
			if f, ok := from.(string); ok && f != "" {
				// a whole match to a non-string value keeps the value's type
				if _, isStr := to.(string); !isStr && s == f {
					return msg.SetPath(rule.path, to)
				}
				return msg.SetPath(rule.path, strings.ReplaceAll(s, f, str.ToString(to)))
			}
		}
		if reflect.DeepEqual(current, from) {
			return msg.SetPath(rule.path, to)
		}
		return nil
	}
	return nil
}

// value resolves a typed rule value. Values read from the message are copied so
// the two properties do not share nested objects.
func (x *ChangeNode) value(v interface{}, vt string, msg *types.Msg) (interface{}, error) {
	if vt == "" {
		vt = base.TypeStr
	}
	out, err := base.TypedValue(v, vt, msg, x.Env())
	if err != nil {
		return nil, err
	}
	if vt == base.TypeMsg {
		return maps.DeepCopy(out), nil
	}
	return out, nil
}
