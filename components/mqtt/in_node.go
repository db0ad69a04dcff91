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
//  "id": "mi1",
//  "type": "mqtt in",
//  "z": "f1",
//  "broker": "b1",
//  "topic": "sensors/+/temperature",
//  "qos": "1",
//  "datatype": "json",
//  "wires": [["n2"]]
//}
import (
	"context"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/json"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("mqtt in", types.SOURCE, newInNode))
}

// Payload data types of mqtt in.
const (
	DataTypeAuto   = "auto"
	DataTypeUtf8   = "utf8"
	DataTypeBuffer = "buffer"
	DataTypeJson   = "json"
)

// InNodeConfiguration node configuration
type InNodeConfiguration struct {
	// Broker is the id of the mqtt-broker node.
	Broker string
	// Topic is a topic filter and may use + and # wildcards.
	Topic string
	Qos   int
	// Datatype selects the payload type: utf8 or auto for a string, buffer for
	// raw bytes, json for the decoded value.
	Datatype string
}

// InNode emits a message for each publication received on its topic filter.
type InNode struct {
	base.SourceNode
	Config InNodeConfiguration
	sub    Subscriber
}

func newInNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &InNode{SourceNode: base.NewSourceNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if node.Config.Topic == "" || node.Config.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt in %s needs broker and topic", types.ErrBadConfig, id)
	}
	if node.Config.Qos < 0 || node.Config.Qos > 2 {
		return nil, fmt.Errorf("%w: mqtt in %s: invalid qos %d", types.ErrBadConfig, id, node.Config.Qos)
	}
	switch node.Config.Datatype {
	case "", DataTypeAuto, DataTypeUtf8, DataTypeBuffer, DataTypeJson:
	default:
		return nil, fmt.Errorf("%w: mqtt in %s: unknown datatype %q", types.ErrBadConfig, id, node.Config.Datatype)
	}
	node.Bind(node)
	return node, nil
}

// Start subscribes on the broker node, then starts the source loop.
func (x *InNode) Start(ctx context.Context) error {
	sub, err := types.LookupCapability[Subscriber](x.Env(), x.Config.Broker)
	if err != nil {
		return fmt.Errorf("mqtt in %s: %w", x.Id(), err)
	}
	if err = x.SourceNode.Start(ctx); err != nil {
		return err
	}
	x.sub = sub
	if err = sub.Subscribe(x.Id(), x.Config.Topic, byte(x.Config.Qos), x.handle); err != nil {
		_ = x.SourceNode.Stop(ctx)
		return fmt.Errorf("%w: mqtt in %s: %v", types.ErrResource, x.Id(), err)
	}
	return nil
}

func (x *InNode) Stop(ctx context.Context) error {
	var err error
	if x.sub != nil {
		err = x.sub.Unsubscribe(x.Id(), x.Config.Topic)
	}
	if stopErr := x.SourceNode.Stop(ctx); stopErr != nil {
		return stopErr
	}
	return err
}

// Run idles: messages are pushed by the broker's callbacks.
func (x *InNode) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (x *InNode) handle(topic string, payload []byte, qos byte, retained bool) {
	if x.State() != types.StateRunning {
		return
	}
	msg := x.NewMsg()
	switch x.Config.Datatype {
	case DataTypeBuffer:
		msg.SetPayload(append([]byte(nil), payload...))
	case DataTypeJson:
		var v interface{}
		if err := json.Unmarshal(payload, &v); err != nil {
			x.Logger().Printf("mqtt in %s: invalid json on %s: %v", x.Id(), topic, err)
			return
		}
		msg.SetPayload(v)
	default:
		msg.SetPayload(string(payload))
	}
	data := msg.Data()
	data[types.TopicKey] = topic
	data["qos"] = int(qos)
	data["retain"] = retained
	if err := x.SendToOnlyPort(context.Background(), msg); err != nil {
		x.Logger().Printf("mqtt in %s msgId=%d: %v", x.Id(), msg.Id(), err)
	}
}
