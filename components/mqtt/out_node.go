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

package mqtt

//Node configuration example:
//{
//  "id": "mo1",
//  "type": "mqtt out",
//  "z": "f1",
//  "broker": "b1",
//  "topic": "alerts",
//  "qos": "0",
//  "retain": "false",
//  "wires": []
//}
import (
	"context"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/str"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("mqtt out", types.SINK, newOutNode))
}

// OutNodeConfiguration node configuration
type OutNodeConfiguration struct {
	// Broker is the id of the mqtt-broker node.
	Broker string
	// Topic defaults to msg.topic when empty.
	Topic  string
	Qos    int
	Retain bool
}

// OutNode publishes msg.payload. Strings and byte slices are sent as they are,
// other values as JSON.
type OutNode struct {
	base.FlowNode
	Config OutNodeConfiguration
}

func newOutNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &OutNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if node.Config.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt out %s has no broker", types.ErrBadConfig, id)
	}
	if node.Config.Qos < 0 || node.Config.Qos > 2 {
		return nil, fmt.Errorf("%w: mqtt out %s: invalid qos %d", types.ErrBadConfig, id, node.Config.Qos)
	}
	return node, nil
}

func (x *OutNode) Receive(ctx context.Context, msg *types.Msg) error {
	pub, err := types.LookupCapability[Publisher](x.Env(), x.Config.Broker)
	if err != nil {
		return fmt.Errorf("mqtt out %s: %w", x.Id(), err)
	}
	topic := x.Config.Topic
	if topic == "" {
		topic = msg.Topic()
	}
	if topic == "" {
		return fmt.Errorf("%w: mqtt out %s: no topic", types.ErrInvalidOperation, x.Id())
	}
	var payload []byte
	switch v := msg.Payload().(type) {
	case []byte:
		payload = v
	default:
		s, err := str.ToStringMaybeErr(v)
		if err != nil {
			return fmt.Errorf("mqtt out %s: %w", x.Id(), err)
		}
		payload = []byte(s)
	}
	if err = pub.Publish(topic, byte(x.Config.Qos), x.Config.Retain, payload); err != nil {
		return fmt.Errorf("%w: mqtt out %s: %v", types.ErrResource, x.Id(), err)
	}
	return nil
}
