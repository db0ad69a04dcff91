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
//  "id": "n1",
//  "type": "inject",
//  "z": "f1",
//  "props": [{"p":"payload"},{"p":"topic","vt":"str"},{"p":"site","v":"site","vt":"global"}],
//  "repeat": "5",
//  "crontab": "",
//  "once": true,
//  "onceDelay": 0.1,
//  "topic": "sensors",
//  "payload": "",
//  "payloadType": "date",
//  "wires": [["n2"]]
//}
import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/cast"
	"github.com/robfig/cron/v3"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("inject", types.SOURCE, newInjectNode))
}

// cronParser accepts standard five field expressions, an optional leading
// seconds field and descriptors such as @every 1m.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// InjectProp is one property written on each injected message.
type InjectProp struct {
	// P is the property expression to set.
	P string
	// V is the value. For "payload" and "topic" an empty V uses the node's
	// Payload and Topic fields.
	V interface{}
	// Vt is the value type, see base.TypedValue.
	Vt string
}

// InjectNodeConfiguration node configuration
type InjectNodeConfiguration struct {
	Props       []InjectProp
	Repeat      interface{}
	Crontab     string
	Once        bool
	OnceDelay   interface{}
	Topic       string
	Payload     interface{}
	PayloadType string
}

// InjectNode emits a message on a schedule: every Repeat seconds, on a crontab,
// and optionally once OnceDelay seconds after start.
type InjectNode struct {
	base.SourceNode
	Config    InjectNodeConfiguration
	repeat    time.Duration
	onceDelay time.Duration
	schedule  cron.Schedule
	// onceDone is reset when the node starts.
	onceDone bool
	mu       sync.Mutex
}

func newInjectNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &InjectNode{SourceNode: base.NewSourceNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if err := node.init(); err != nil {
		return nil, fmt.Errorf("%w: inject %s: %v", types.ErrBadConfig, id, err)
	}
	node.Bind(node)
	return node, nil
}

func (x *InjectNode) init() error {
	var err error
	if x.repeat, err = cast.ToDurationE(x.Config.Repeat, time.Second); err != nil {
		return fmt.Errorf("invalid repeat %v", x.Config.Repeat)
	}
	if x.repeat < 0 {
		return fmt.Errorf("invalid repeat %v", x.Config.Repeat)
	}
	if x.onceDelay, err = cast.ToDurationE(x.Config.OnceDelay, time.Second); err != nil {
		return fmt.Errorf("invalid onceDelay %v", x.Config.OnceDelay)
	}
	if x.Config.Crontab != "" {
		if x.repeat > 0 {
			return fmt.Errorf("repeat and crontab are exclusive")
		}
		if x.schedule, err = cronParser.Parse(x.Config.Crontab); err != nil {
			return fmt.Errorf("invalid crontab %q: %v", x.Config.Crontab, err)
		}
	}
	if len(x.Config.Props) == 0 {
		x.Config.Props = []InjectProp{{P: "payload"}, {P: "topic", Vt: base.TypeStr}}
	}
	if x.Config.PayloadType == "" {
		x.Config.PayloadType = base.TypeDate
	}
	return nil
}

func (x *InjectNode) Start(ctx context.Context) error {
	x.mu.Lock()
	x.onceDone = false
	x.mu.Unlock()
	return x.SourceNode.Start(ctx)
}

// next returns how long to wait for the next message, false when nothing else
// is scheduled.
func (x *InjectNode) next(now time.Time) (time.Duration, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Config.Once && !x.onceDone {
		x.onceDone = true
		return x.onceDelay, true
	}
	if x.repeat > 0 {
		return x.repeat, true
	}
	if x.schedule != nil {
		return x.schedule.Next(now).Sub(now), true
	}
	return 0, false
}

// Run waits for the next scheduled time, then injects one message.
func (x *InjectNode) Run(ctx context.Context) error {
	wait, ok := x.next(time.Now())
	if !ok {
		<-ctx.Done()
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}
	return x.Trigger(ctx)
}

// Trigger injects one message immediately, like the editor's inject button.
func (x *InjectNode) Trigger(ctx context.Context) error {
	msg, err := x.build()
	if err != nil {
		return err
	}
	return x.SendToOnlyPort(ctx, msg)
}

func (x *InjectNode) build() (*types.Msg, error) {
	msg := x.NewMsg()
	for _, prop := range x.Config.Props {
		v, vt := prop.V, prop.Vt
		switch {
		case prop.P == types.PayloadKey && v == nil:
			v, vt = x.Config.Payload, x.Config.PayloadType
		case prop.P == types.TopicKey && v == nil:
			v, vt = x.Config.Topic, base.TypeStr
		}
		value, err := base.TypedValue(v, vt, msg, x.Env())
		if err != nil {
			return nil, fmt.Errorf("inject %s property %s: %w", x.Id(), prop.P, err)
		}
		if err = msg.SetAt(prop.P, value); err != nil {
			return nil, err
		}
	}
	return msg, nil
}
