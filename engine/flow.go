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

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/runtime"
)

// Flow is one group of wired nodes built from a "tab" record. It owns its nodes
// in an arena indexed by types.NodeHandle and routes messages between them.
//
// Delivery from a SOURCE node runs as one detached task on the engine pool, so
// the source loop never waits for downstream nodes and the messages of one batch
// keep their order. Every other origin delivers synchronously on the sender's
// goroutine, which gives upstream nodes natural backpressure.
type Flow struct {
	id       string
	label    string
	disabled bool
	engine   *Engine
	nodes    []types.FlowNode
	index    map[string]types.NodeHandle
	started  []bool

	onSend      []types.OnSendAspect
	preRoute    []types.PreRouteAspect
	preDeliver  []types.PreDeliverAspect
	postDeliver []types.PostDeliverAspect

	cancel context.CancelFunc
	mu     sync.Mutex
}

func newFlow(e *Engine, record types.Record) *Flow {
	f := &Flow{
		id:       record.Id(),
		label:    record.Label(),
		disabled: record.Disabled(),
		engine:   e,
		index:    make(map[string]types.NodeHandle),
	}
	f.onSend, f.preRoute, f.preDeliver, f.postDeliver = e.config.Aspects.RoutingAspects()
	return f
}

func (f *Flow) Id() string {
	return f.id
}

func (f *Flow) Label() string {
	return f.label
}

func (f *Flow) Disabled() bool {
	return f.disabled
}

func (f *Flow) Env() types.Environment {
	return f.engine
}

func (f *Flow) Nodes() []types.FlowNode {
	return append([]types.FlowNode(nil), f.nodes...)
}

func (f *Flow) GetNode(id string) (types.FlowNode, bool) {
	if handle, ok := f.index[id]; ok {
		return f.nodes[handle], true
	}
	return nil, false
}

func (f *Flow) NodeByHandle(handle types.NodeHandle) (types.FlowNode, bool) {
	if handle < 0 || int(handle) >= len(f.nodes) {
		return nil, false
	}
	return f.nodes[handle], true
}

func (f *Flow) handle(id string) (types.NodeHandle, bool) {
	handle, ok := f.index[id]
	return handle, ok
}

// add appends node to the arena. Nodes are only added while building.
func (f *Flow) add(node types.FlowNode) types.NodeHandle {
	handle := types.NodeHandle(len(f.nodes))
	f.nodes = append(f.nodes, node)
	f.index[node.Id()] = handle
	return handle
}

// Start starts the nodes in construction order under one cancellation context.
// Disabled nodes stay constructed. If a node fails to start, the nodes already
// started are stopped again.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return fmt.Errorf("%w: flow %s", types.ErrEngineStarted, f.id)
	}
	flowCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.started = make([]bool, len(f.nodes))
	for i, node := range f.nodes {
		if node.Disabled() {
			continue
		}
		if err := node.Start(flowCtx); err != nil {
			f.stopLocked(ctx)
			return fmt.Errorf("flow %s: start node %s: %w", f.id, node.Id(), err)
		}
		f.started[i] = true
	}
	return nil
}

// Stop cancels the flow context, then stops started nodes one by one in reverse
// construction order.
func (f *Flow) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel == nil {
		return nil
	}
	return f.stopLocked(ctx)
}

func (f *Flow) stopLocked(ctx context.Context) error {
	f.cancel()
	f.cancel = nil
	var errs []error
	for i := len(f.nodes) - 1; i >= 0; i-- {
		if !f.started[i] {
			continue
		}
		f.started[i] = false
		if err := f.nodes[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flow %s: stop node %s: %w", f.id, f.nodes[i].Id(), err))
		}
	}
	return errors.Join(errs...)
}

// SendMany routes msgs[i] to every wire of from's output port i. The first wire
// of a port receives the message itself, every further wire a deep copy with the
// same id.
func (f *Flow) SendMany(ctx context.Context, from types.FlowNode, msgs []*types.Msg) error {
	outputs := from.Outputs()
	if len(msgs) > len(outputs) {
		return fmt.Errorf("%w: node %s sent %d messages but has %d output ports", types.ErrInvalidOperation, from.Id(), len(msgs), len(outputs))
	}
	var envelopes []*types.Envelope
	for port, msg := range msgs {
		if msg == nil {
			continue
		}
		output := outputs[port]
		for j := 0; j < output.Len(); j++ {
			to := output.Wire(j)
			toId := ""
			if node, ok := f.NodeByHandle(to); ok {
				toId = node.Id()
			}
			envelopes = append(envelopes, &types.Envelope{
				Msg:      msg,
				Clone:    j > 0,
				FromId:   from.Id(),
				FromPort: port,
				To:       to,
				ToId:     toId,
			})
		}
	}
	if len(envelopes) == 0 {
		return nil
	}
	for _, aspect := range f.onSend {
		aspect.OnSend(f, from, envelopes)
	}

	if from.Descriptor().Kind() == types.SOURCE {
		if err := f.engine.pool().Submit(func() {
			_ = f.route(ctx, envelopes)
		}); err != nil {
			f.engine.logger().Printf("flow %s: node %s: cannot schedule delivery: %v", f.id, from.Id(), err)
			return fmt.Errorf("%w: %v", types.ErrResource, err)
		}
		return nil
	}
	return f.route(ctx, envelopes)
}

// Deliver routes msg to node toId as if it arrived on a wire from fromId.
func (f *Flow) Deliver(ctx context.Context, fromId string, toId string, msg *types.Msg) error {
	handle, ok := f.handle(toId)
	if !ok {
		return &types.DeliveryError{FlowId: f.id, MsgId: msg.Id(), FromId: fromId, ToId: toId,
			Err: fmt.Errorf("%w: %s", types.ErrDestinationNotFound, toId)}
	}
	return f.route(ctx, []*types.Envelope{{Msg: msg, FromId: fromId, To: handle, ToId: toId}})
}

// route materializes clones for every envelope before the first delivery, so a
// destination mutating its message never affects a sibling branch.
func (f *Flow) route(ctx context.Context, envelopes []*types.Envelope) error {
	for _, envelope := range envelopes {
		for _, aspect := range f.preRoute {
			aspect.PreRoute(f, envelope)
		}
		if envelope.Clone {
			envelope.Msg = envelope.Msg.Clone(nil)
		}
	}
	var errs []error
	for _, envelope := range envelopes {
		if err := f.deliver(ctx, envelope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Flow) deliver(ctx context.Context, envelope *types.Envelope) error {
	to, ok := f.NodeByHandle(envelope.To)
	if !ok {
		return f.fail(envelope, fmt.Errorf("%w: handle %d", types.ErrDestinationNotFound, envelope.To), true)
	}
	receiver, ok := to.(types.Receiver)
	if kind := to.Descriptor().Kind(); !kind.CanReceive() || !ok {
		return f.fail(envelope, fmt.Errorf("%w: node %s of kind %s cannot receive messages", types.ErrInvalidOperation, to.Id(), kind), true)
	}
	if to.Disabled() {
		return nil
	}
	for _, aspect := range f.preDeliver {
		aspect.PreDeliver(f, envelope, to)
	}
	err := receive(ctx, receiver, envelope.Msg)
	for _, aspect := range f.postDeliver {
		aspect.PostDeliver(f, envelope, to, err)
	}
	if err != nil {
		var nested *types.DeliveryError
		// a failure further down the chain was logged where it happened
		return f.fail(envelope, err, !errors.As(err, &nested))
	}
	return nil
}

// receive calls Receive and turns a panic into an error carrying the stack.
func receive(ctx context.Context, receiver types.Receiver, msg *types.Msg) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("%w: %v\n%s", types.ErrNodePanic, e, runtime.Stack())
		}
	}()
	return receiver.Receive(ctx, msg)
}

func (f *Flow) fail(envelope *types.Envelope, err error, log bool) error {
	deliveryErr := &types.DeliveryError{
		FlowId: f.id,
		MsgId:  envelope.Msg.Id(),
		FromId: envelope.FromId,
		ToId:   envelope.ToId,
		Err:    err,
	}
	if log {
		f.engine.logger().Printf("%v", deliveryErr)
	}
	return deliveryErr
}
