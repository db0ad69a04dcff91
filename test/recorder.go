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

package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
)

// Received is one message accepted by a recording node.
type Received struct {
	NodeId string
	Msg    *types.Msg
}

// Recorder collects lifecycle events and received messages of recording nodes.
type Recorder struct {
	events   []string
	received []Received
	signal   chan struct{}
	// Gate, when set, makes every Receive wait for a value or for cancellation.
	Gate chan struct{}
	sync.Mutex
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 1)}
}

func (r *Recorder) event(e string) {
	r.Lock()
	r.events = append(r.events, e)
	r.Unlock()
}

func (r *Recorder) receive(id string, msg *types.Msg) {
	r.Lock()
	r.events = append(r.events, "receive:"+id)
	r.received = append(r.received, Received{NodeId: id, Msg: msg})
	r.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Events returns lifecycle and receive events such as "start:n1" or "stop:n1".
func (r *Recorder) Events() []string {
	r.Lock()
	defer r.Unlock()
	return append([]string(nil), r.events...)
}

// Received returns every received message in arrival order.
func (r *Recorder) Received() []Received {
	r.Lock()
	defer r.Unlock()
	return append([]Received(nil), r.received...)
}

// ReceivedBy returns the messages received by node id.
func (r *Recorder) ReceivedBy(id string) []*types.Msg {
	var out []*types.Msg
	for _, item := range r.Received() {
		if item.NodeId == id {
			out = append(out, item.Msg)
		}
	}
	return out
}

// WaitReceived blocks until n messages were received or timeout elapses.
func (r *Recorder) WaitReceived(n int, timeout time.Duration) []Received {
	deadline := time.After(timeout)
	for {
		if received := r.Received(); len(received) >= n {
			return received
		}
		select {
		case <-r.signal:
		case <-deadline:
			return r.Received()
		}
	}
}

// Node records lifecycle calls and received messages, then forwards each message
// to its first output port. A record field "fail" set to true makes Receive fail,
// "failStart" makes Start fail and "panic" makes Receive panic.
type Node struct {
	base.FlowNode
	rec       *Recorder
	fail      bool
	failStart bool
	panics    bool
}

// NewNodeProvider creates a provider of recording nodes with the given kind.
func NewNodeProvider(typeName string, kind types.NodeKind, rec *Recorder) types.FlowNodeProvider {
	return types.NewFlowNodeProvider(typeName, kind, func(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
		fail, _ := record["fail"].(bool)
		failStart, _ := record["failStart"].(bool)
		panics, _ := record["panic"].(bool)
		return &Node{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow), rec: rec, fail: fail, failStart: failStart, panics: panics}, nil
	})
}

func (n *Node) Start(ctx context.Context) error {
	n.rec.event("start:" + n.Id())
	if n.failStart {
		return fmt.Errorf("node %s refused to start", n.Id())
	}
	return n.FlowNode.Start(ctx)
}

func (n *Node) Stop(ctx context.Context) error {
	n.rec.event("stop:" + n.Id())
	return n.FlowNode.Stop(ctx)
}

func (n *Node) Receive(ctx context.Context, msg *types.Msg) error {
	if gate := n.rec.Gate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.rec.receive(n.Id(), msg)
	if n.panics {
		panic("node " + n.Id() + " panicked on purpose")
	}
	if n.fail {
		return fmt.Errorf("node %s failed on purpose", n.Id())
	}
	if len(n.Outputs()) == 0 {
		return nil
	}
	return n.SendMany(ctx, msg)
}

// SourceNode is a recording source whose messages are pushed by the test with Emit.
type SourceNode struct {
	base.SourceNode
	rec *Recorder
}

// NewSourceProvider creates a provider of recording source nodes.
func NewSourceProvider(typeName string, rec *Recorder) types.FlowNodeProvider {
	return types.NewFlowNodeProvider(typeName, types.SOURCE, func(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
		node := &SourceNode{SourceNode: base.NewSourceNode(desc, id, record, outputs, flow), rec: rec}
		node.Bind(node)
		return node, nil
	})
}

func (n *SourceNode) Start(ctx context.Context) error {
	n.rec.event("start:" + n.Id())
	return n.SourceNode.Start(ctx)
}

func (n *SourceNode) Stop(ctx context.Context) error {
	n.rec.event("stop:" + n.Id())
	return n.SourceNode.Stop(ctx)
}

// Run idles until cancelled.
func (n *SourceNode) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Emit sends msgs[i] on port i, as the source loop would.
func (n *SourceNode) Emit(ctx context.Context, msgs ...*types.Msg) error {
	return n.SendMany(ctx, msgs...)
}

// Aspect records every routing hook as "hook:nodeId".
type Aspect struct {
	order  int
	events []string
	sync.Mutex
}

// NewAspect creates a recording aspect with the given order.
func NewAspect(order int) *Aspect {
	return &Aspect{order: order}
}

func (a *Aspect) Order() int {
	return a.order
}

func (a *Aspect) add(e string) {
	a.Lock()
	defer a.Unlock()
	a.events = append(a.events, e)
}

func (a *Aspect) OnSend(flow types.Flow, from types.FlowNode, envelopes []*types.Envelope) {
	a.add(fmt.Sprintf("onSend:%s:%d", from.Id(), len(envelopes)))
}

func (a *Aspect) PreRoute(flow types.Flow, envelope *types.Envelope) {
	a.add("preRoute:" + envelope.ToId)
}

func (a *Aspect) PreDeliver(flow types.Flow, envelope *types.Envelope, to types.FlowNode) {
	a.add("preDeliver:" + to.Id())
}

func (a *Aspect) PostDeliver(flow types.Flow, envelope *types.Envelope, to types.FlowNode, err error) {
	if err != nil {
		a.add("postDeliver:" + to.Id() + ":error")
		return
	}
	a.add("postDeliver:" + to.Id())
}

// Events returns the recorded hook events.
func (a *Aspect) Events() []string {
	a.Lock()
	defer a.Unlock()
	return append([]string(nil), a.events...)
}

// Greeter is the capability exposed by recording standalone nodes.
type Greeter interface {
	Greet(name string) string
}

// StandaloneNode records lifecycle calls and exposes the Greeter capability.
type StandaloneNode struct {
	base.StandaloneNode
	rec *Recorder
}

// NewStandaloneProvider creates a provider of recording standalone nodes.
func NewStandaloneProvider(typeName string, rec *Recorder) types.StandaloneNodeProvider {
	return types.NewStandaloneNodeProvider(typeName, func(desc *types.NodeDescriptor, id string, record types.Record, env types.Environment) (types.StandaloneNode, error) {
		return &StandaloneNode{StandaloneNode: base.NewStandaloneNode(desc, id, record, env), rec: rec}, nil
	})
}

func (n *StandaloneNode) Start(ctx context.Context) error {
	n.rec.event("start:" + n.Id())
	return n.StandaloneNode.Start(ctx)
}

func (n *StandaloneNode) Stop(ctx context.Context) error {
	n.rec.event("stop:" + n.Id())
	return n.StandaloneNode.Stop(ctx)
}

func (n *StandaloneNode) Greet(name string) string {
	return "hello " + name + " from " + n.Id()
}
