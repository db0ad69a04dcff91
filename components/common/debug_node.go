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

package common

//Node configuration example:
//{
//  "id": "n2",
//  "type": "debug",
//  "z": "f1",
//  "active": true,
//  "complete": "payload.temperature",
//  "wires": []
//}
import (
	"context"
	"sync/atomic"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/str"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("debug", types.SINK, newDebugNode))
}

// DebugNodeConfiguration node configuration
type DebugNodeConfiguration struct {
	// Active turns output on or off, defaulting to true.
	Active *bool
	// Complete selects what is logged: "false" or empty for msg.payload, "true"
	// for the whole message, anything else is a property expression.
	Complete interface{}
}

// DebugNode logs the messages it receives.
type DebugNode struct {
	base.FlowNode
	Config DebugNodeConfiguration
	count  atomic.Int64
}

func newDebugNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &DebugNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	return node, nil
}

func (x *DebugNode) Receive(ctx context.Context, msg *types.Msg) error {
	x.count.Add(1)
	if x.Config.Active != nil && !*x.Config.Active {
		return nil
	}
	var out interface{}
	switch complete := str.ToString(x.Config.Complete); complete {
	case "", "false":
		out = msg.Payload()
	case "true":
		out = msg
	default:
		v, err := msg.GetAt(complete)
		if err != nil {
			x.Logger().Printf("debug %s msgId=%d: %s undefined", x.Id(), msg.Id(), complete)
			return nil
		}
		out = v
	}
	x.Logger().Printf("debug %s msgId=%d: %s", x.Id(), msg.Id(), str.ToString(out))
	return nil
}

// Count returns the number of messages received, logged or not.
func (x *DebugNode) Count() int64 {
	return x.count.Load()
}
