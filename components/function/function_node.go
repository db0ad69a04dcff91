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
//  "id": "fn1",
//  "type": "function",
//  "z": "flow1",
//  "func": "var n = (context.get('n') || 0) + 1;\ncontext.set('n', n);\nif (msg.payload > 50) { return [msg, null]; }\nreturn [null, msg];",
//  "outputs": 2,
//  "wires": [["n2"], ["n3"]]
//}
import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/cache"
	"github.com/edgelinkgo/edgelink/utils/cast"
	"github.com/edgelinkgo/edgelink/utils/js"
	"github.com/edgelinkgo/edgelink/utils/maps"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("function", types.PIPE, newFunctionNode))
}

const (
	// FuncName is the name the function body is wrapped in.
	FuncName = "edgelinkFunction"
	// JsFuncTemplate wraps the user's function body.
	JsFuncTemplate = "function %s(msg) { %s \n}"
)

// FunctionNodeConfiguration node configuration
type FunctionNodeConfiguration struct {
	// Func is the JavaScript function body. It sees the message as msg and
	// returns what to send:
	//   - null or nothing: send nothing
	//   - a message: send it on port 0
	//   - an array: element i is sent on port i and may itself be an array of
	//     messages, sent one after the other
	// context, flow and global give access to the node, flow and global context
	// through get(key), set(key, value) and keys().
	Func string
	// Outputs is the number of ports, defaulting to 1. A node without ports
	// drops whatever the script returns.
	Outputs int
}

// FunctionNode runs JavaScript against each message.
type FunctionNode struct {
	base.FlowNode
	Config   FunctionNodeConfiguration
	jsEngine *js.GojaJsEngine
}

func newFunctionNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &FunctionNode{
		FlowNode: base.NewFlowNode(desc, id, record, outputs, flow),
		Config:   FunctionNodeConfiguration{Outputs: 1},
	}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	var config types.Config
	if env := node.Env(); env != nil {
		config = env.Config()
	}
	logger := node.Logger()
	vars := map[string]interface{}{
		"node": map[string]interface{}{
			"id":   id,
			"name": node.Name(),
			"log": func(args ...interface{}) {
				logger.Printf("function %s: %s", id, fmt.Sprint(args...))
			},
		},
		"context": contextObject(node.NodeContext(), nil),
		"flow":    contextObject(node.FlowContext(), nil),
		"global":  contextObject(node.GlobalContext(), config.Properties),
	}
	jsEngine, err := js.NewGojaJsEngine(config, fmt.Sprintf(JsFuncTemplate, FuncName, node.Config.Func), vars)
	if err != nil {
		return nil, fmt.Errorf("%w: function %s: %v", types.ErrBadConfig, id, err)
	}
	node.jsEngine = jsEngine
	return node, nil
}

// contextObject exposes a context scope to scripts as get, set and keys. get
// falls back to defaults for keys never set.
func contextObject(store *cache.NamespaceCache, defaults map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"get": func(key string) interface{} {
			if v := store.Get(key); v != nil {
				return v
			}
			if v, ok := defaults[key]; ok {
				return v
			}
			return nil
		},
		"set": func(key string, value interface{}) error {
			if value == nil {
				return store.Delete(key)
			}
			return store.Set(key, value, "")
		},
		"keys": func() []interface{} {
			keys := store.Keys()
			sort.Strings(keys)
			out := make([]interface{}, len(keys))
			for i, k := range keys {
				out[i] = k
			}
			return out
		},
	}
}

func (x *FunctionNode) Receive(ctx context.Context, msg *types.Msg) error {
	out, err := x.jsEngine.Execute(FuncName, msg.ToMap())
	if err != nil {
		return fmt.Errorf("function %s: %w", x.Id(), err)
	}
	ports, err := x.toPorts(out)
	if err != nil {
		return fmt.Errorf("function %s: %w", x.Id(), err)
	}
	// port i sends its k-th message in round k
	for round := 0; ; round++ {
		var msgs []*types.Msg
		for i, port := range ports {
			if round < len(port) {
				if msgs == nil {
					msgs = make([]*types.Msg, len(ports))
				}
				msgs[i] = port[round]
			}
		}
		if msgs == nil {
			return nil
		}
		if err = x.SendMany(ctx, msgs...); err != nil {
			return err
		}
	}
}

// toPorts converts the value returned by the script into messages per port.
func (x *FunctionNode) toPorts(out interface{}) ([][]*types.Msg, error) {
	if len(x.Outputs()) == 0 {
		return nil, nil
	}
	seen := make(map[uintptr]bool)
	switch v := out.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return [][]*types.Msg{{x.toMsg(v, seen)}}, nil
	case []interface{}:
		n := len(v)
		if outputs := len(x.Outputs()); n > outputs {
			n = outputs
		}
		ports := make([][]*types.Msg, n)
		for i := 0; i < n; i++ {
			switch item := v[i].(type) {
			case nil:
			case map[string]interface{}:
				ports[i] = []*types.Msg{x.toMsg(item, seen)}
			case []interface{}:
				for _, element := range item {
					if element == nil {
						continue
					}
					m, ok := element.(map[string]interface{})
					if !ok {
						return nil, fmt.Errorf("%w: port %d got %T, want a message", types.ErrInvalidOperation, i, element)
					}
					ports[i] = append(ports[i], x.toMsg(m, seen))
				}
			default:
				return nil, fmt.Errorf("%w: port %d got %T, want a message", types.ErrInvalidOperation, i, item)
			}
		}
		return ports, nil
	default:
		return nil, fmt.Errorf("%w: function returned %T, want a message, an array or null", types.ErrInvalidOperation, out)
	}
}

// toMsg turns a returned object into a message. An object returned more than once
// is copied so each message owns its fields. A missing _msgid draws a new id.
func (x *FunctionNode) toMsg(data map[string]interface{}, seen map[uintptr]bool) *types.Msg {
	ptr := reflect.ValueOf(data).Pointer()
	if seen[ptr] {
		data = maps.CopyMap(data)
	} else {
		seen[ptr] = true
	}
	if raw, ok := data[types.MsgIdKey]; ok {
		if id, err := cast.ToFloat64E(raw); err == nil && id >= 0 {
			return types.NewMsgWithData(uint64(id), data)
		}
	}
	return types.NewMsgWithData(x.NewMsg().Id(), data)
}
