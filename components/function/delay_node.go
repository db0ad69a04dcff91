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
//  "id": "d1",
//  "type": "delay",
//  "z": "flow1",
//  "pauseType": "delay",
//  "timeout": "5",
//  "timeoutUnits": "seconds",
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
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("delay", types.PIPE, newDelayNode))
}

var delayUnits = map[string]time.Duration{
	"":             time.Second,
	"milliseconds": time.Millisecond,
	"seconds":      time.Second,
	"minutes":      time.Minute,
	"hours":        time.Hour,
	"days":         24 * time.Hour,
}

// DelayNodeConfiguration node configuration
type DelayNodeConfiguration struct {
	Timeout      interface{}
	TimeoutUnits string
}

// DelayNode forwards each message once its delay elapsed. Receive returns
// immediately; pending messages are dropped when the node stops.
type DelayNode struct {
	base.FlowNode
	Config DelayNodeConfiguration
	delay  time.Duration
	ctx    context.Context
	timers map[*time.Timer]struct{}
	mu     sync.Mutex
}

func newDelayNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &DelayNode{
		FlowNode: base.NewFlowNode(desc, id, record, outputs, flow),
		timers:   make(map[*time.Timer]struct{}),
	}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	unit, ok := delayUnits[node.Config.TimeoutUnits]
	if !ok {
		return nil, fmt.Errorf("%w: delay %s: unknown unit %q", types.ErrBadConfig, id, node.Config.TimeoutUnits)
	}
	delay, err := cast.ToDurationE(node.Config.Timeout, unit)
	if err != nil || delay < 0 {
		return nil, fmt.Errorf("%w: delay %s: invalid timeout %v", types.ErrBadConfig, id, node.Config.Timeout)
	}
	node.delay = delay
	return node, nil
}

func (x *DelayNode) Start(ctx context.Context) error {
	x.mu.Lock()
	x.ctx = ctx
	x.mu.Unlock()
	return x.FlowNode.Start(ctx)
}

func (x *DelayNode) Stop(ctx context.Context) error {
	if n := x.Pending(); n > 0 {
		x.Logger().Printf("delay %s: dropping %d pending messages", x.Id(), n)
	}
	x.mu.Lock()
	for timer := range x.timers {
		timer.Stop()
	}
	x.timers = make(map[*time.Timer]struct{})
	x.mu.Unlock()
	return x.FlowNode.Stop(ctx)
}

func (x *DelayNode) Receive(ctx context.Context, msg *types.Msg) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	sendCtx := x.ctx
	if sendCtx == nil {
		sendCtx = context.WithoutCancel(ctx)
	}
	var timer *time.Timer
	timer = time.AfterFunc(x.delay, func() {
		x.mu.Lock()
		_, pending := x.timers[timer]
		delete(x.timers, timer)
		x.mu.Unlock()
		if !pending || sendCtx.Err() != nil {
			return
		}
		if err := x.SendToOnlyPort(sendCtx, msg); err != nil {
			x.Logger().Printf("delay %s msgId=%d: %v", x.Id(), msg.Id(), err)
		}
	})
	x.timers[timer] = struct{}{}
	return nil
}

// Pending returns the number of messages waiting.
func (x *DelayNode) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.timers)
}
