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

// Package base provides the building blocks node implementations embed: identity,
// lifecycle state, output ports and sending for flow nodes, the background loop of
// source nodes and the identity of standalone nodes.
package base

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/cache"
)

var (
	// ErrNotInFlow is returned when a node is used without a flow.
	ErrNotInFlow = errors.New("node is not attached to a flow")
	// ErrClientNotInit is returned when a node's external client is not connected.
	ErrClientNotInit = errors.New("client not init")
)

// SourceRetryDelay is how long a source waits before calling Run again after an error.
var SourceRetryDelay = time.Second

// FlowNode implements the parts of types.FlowNode every node shares. Node types
// embed it and add Receive or Run.
type FlowNode struct {
	desc     *types.NodeDescriptor
	id       string
	name     string
	disabled bool
	outputs  []types.OutputPort
	flow     types.Flow
	state    types.AtomicState
}

// NewFlowNode initializes the embedded part of a flow node from its record.
func NewFlowNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) FlowNode {
	return FlowNode{
		desc:     desc,
		id:       id,
		name:     record.Name(),
		disabled: record.Disabled(),
		outputs:  outputs,
		flow:     flow,
	}
}

func (n *FlowNode) Id() string {
	return n.id
}

func (n *FlowNode) Name() string {
	return n.name
}

func (n *FlowNode) Type() string {
	return n.desc.Type()
}

func (n *FlowNode) Descriptor() *types.NodeDescriptor {
	return n.desc
}

func (n *FlowNode) Disabled() bool {
	return n.disabled
}

func (n *FlowNode) State() types.NodeState {
	return n.state.Load()
}

// SetState moves the node to state. Nodes overriding Start or Stop use it to keep
// the lifecycle observable.
func (n *FlowNode) SetState(state types.NodeState) {
	n.state.Store(state)
}

func (n *FlowNode) Flow() types.Flow {
	return n.flow
}

func (n *FlowNode) Outputs() []types.OutputPort {
	return n.outputs
}

// Start marks the node running. Nodes holding resources override it.
func (n *FlowNode) Start(ctx context.Context) error {
	n.state.Store(types.StateStarting)
	n.state.Store(types.StateRunning)
	return nil
}

// Stop marks the node stopped.
func (n *FlowNode) Stop(ctx context.Context) error {
	n.state.Store(types.StateStopping)
	n.state.Store(types.StateStopped)
	return nil
}

// Env returns the engine environment of the node's flow.
func (n *FlowNode) Env() types.Environment {
	if n.flow == nil {
		return nil
	}
	return n.flow.Env()
}

// Logger returns the engine logger, or the default logger outside an engine.
func (n *FlowNode) Logger() types.Logger {
	if env := n.Env(); env != nil {
		return types.NewLogger(env.Config().Logger)
	}
	return types.DefaultLogger()
}

// NewMsg creates an empty message with an id from the engine's generator.
func (n *FlowNode) NewMsg() *types.Msg {
	if env := n.Env(); env != nil && env.Config().IdGenerator != nil {
		return types.NewMsg(env.Config().IdGenerator)
	}
	return types.NewMsg(fallbackIds)
}

var fallbackIds = types.NewIdGenerator(0)

func (n *FlowNode) contextCache() types.Cache {
	if env := n.Env(); env != nil {
		return env.Cache()
	}
	return nil
}

// NodeContext returns the context private to this node. Outside an engine the
// returned view is nil, which reads as empty and refuses writes.
func (n *FlowNode) NodeContext() *cache.NamespaceCache {
	flowId := ""
	if n.flow != nil {
		flowId = n.flow.Id()
	}
	return cache.NewNamespaceCache(n.contextCache(), cache.NodeNamespace(flowId, n.id))
}

// FlowContext returns the context shared by the nodes of this node's flow.
func (n *FlowNode) FlowContext() *cache.NamespaceCache {
	flowId := ""
	if n.flow != nil {
		flowId = n.flow.Id()
	}
	return cache.NewNamespaceCache(n.contextCache(), cache.FlowNamespace(flowId))
}

// GlobalContext returns the context shared by every flow of the engine.
func (n *FlowNode) GlobalContext() *cache.NamespaceCache {
	return cache.NewNamespaceCache(n.contextCache(), cache.GlobalNamespace())
}

// SendMany routes msgs[i] to every wire of output port i. A nil entry sends
// nothing on that port.
func (n *FlowNode) SendMany(ctx context.Context, msgs ...*types.Msg) error {
	if n.flow == nil {
		return ErrNotInFlow
	}
	return n.flow.SendMany(ctx, n, msgs)
}

// SendToOnlyPort sends msg on the node's single output port. Nodes with zero or
// several ports log the call and send nothing.
func (n *FlowNode) SendToOnlyPort(ctx context.Context, msg *types.Msg) error {
	if len(n.outputs) != 1 {
		n.Logger().Printf("node %s: %v: SendToOnlyPort needs exactly one output port, has %d", n.id, types.ErrInvalidOperation, len(n.outputs))
		return nil
	}
	return n.SendMany(ctx, msg)
}

// SourceNode runs a types.SourceRunner in a background loop for as long as the
// node is started. Node types embed it and pass themselves as the runner.
type SourceNode struct {
	FlowNode
	runner types.SourceRunner
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewSourceNode initializes the embedded part of a source node.
func NewSourceNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) SourceNode {
	return SourceNode{FlowNode: NewFlowNode(desc, id, record, outputs, flow)}
}

// Bind sets the runner driven by the loop. It must be called before Start.
func (n *SourceNode) Bind(runner types.SourceRunner) {
	n.runner = runner
}

// Start spawns the loop. The loop stops when ctx or Stop cancels it.
func (n *SourceNode) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.runner == nil {
		return fmt.Errorf("%w: source %s has no runner", types.ErrInvalidOperation, n.id)
	}
	if n.cancel != nil {
		return nil
	}
	n.state.Store(types.StateStarting)
	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.loop(loopCtx, n.done)
	n.state.Store(types.StateRunning)
	return nil
}

func (n *SourceNode) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		err := n.runner.Run(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		n.Logger().Printf("source node %s run error: %v", n.id, err)
		select {
		case <-ctx.Done():
		case <-time.After(SourceRetryDelay):
		}
	}
}

// Stop cancels the loop and returns without waiting for it to exit.
func (n *SourceNode) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Store(types.StateStopping)
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.state.Store(types.StateStopped)
	return nil
}

// Done is closed once the most recently started loop has exited.
func (n *SourceNode) Done() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return n.done
}

// StandaloneNode implements types.StandaloneNode for nodes owning shared resources.
type StandaloneNode struct {
	desc     *types.NodeDescriptor
	id       string
	name     string
	disabled bool
	env      types.Environment
	state    types.AtomicState
}

// NewStandaloneNode initializes the embedded part of a standalone node.
func NewStandaloneNode(desc *types.NodeDescriptor, id string, record types.Record, env types.Environment) StandaloneNode {
	return StandaloneNode{
		desc:     desc,
		id:       id,
		name:     record.Name(),
		disabled: record.Disabled(),
		env:      env,
	}
}

func (n *StandaloneNode) Id() string {
	return n.id
}

func (n *StandaloneNode) Name() string {
	return n.name
}

func (n *StandaloneNode) Type() string {
	return n.desc.Type()
}

func (n *StandaloneNode) Descriptor() *types.NodeDescriptor {
	return n.desc
}

func (n *StandaloneNode) Disabled() bool {
	return n.disabled
}

func (n *StandaloneNode) State() types.NodeState {
	return n.state.Load()
}

func (n *StandaloneNode) SetState(state types.NodeState) {
	n.state.Store(state)
}

func (n *StandaloneNode) Env() types.Environment {
	return n.env
}

func (n *StandaloneNode) Logger() types.Logger {
	if n.env != nil {
		return types.NewLogger(n.env.Config().Logger)
	}
	return types.DefaultLogger()
}

func (n *StandaloneNode) Start(ctx context.Context) error {
	n.state.Store(types.StateStarting)
	n.state.Store(types.StateRunning)
	return nil
}

func (n *StandaloneNode) Stop(ctx context.Context) error {
	n.state.Store(types.StateStopping)
	n.state.Store(types.StateStopped)
	return nil
}
