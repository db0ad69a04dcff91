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

// Package test provides helpers for testing nodes and flows: a Flow that records
// what nodes send, recording node providers and a recording aspect.
package test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/cache"
	"github.com/edgelinkgo/edgelink/utils/json"
)

// Sent is one message a node sent on one of its ports.
type Sent struct {
	Port int
	Msg  *types.Msg
}

// Delivered is one message passed to Flow.Deliver.
type Delivered struct {
	FromId string
	ToId   string
	Msg    *types.Msg
}

// Env is an Environment backed by maps, for nodes tested outside an engine.
type Env struct {
	config       types.Config
	standalone   map[string]types.StandaloneNode
	flowNodes    map[string]types.FlowNode
	capabilities *types.Capabilities
	sync.RWMutex
}

// NewEnv creates an environment. A missing IdGenerator is filled in.
func NewEnv(config types.Config) *Env {
	if config.IdGenerator == nil {
		config.IdGenerator = types.NewIdGenerator(0)
	}
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	if config.Cache == nil {
		config.Cache = cache.NewMemoryCache(0)
	}
	return &Env{
		config:       config,
		standalone:   make(map[string]types.StandaloneNode),
		flowNodes:    make(map[string]types.FlowNode),
		capabilities: types.NewCapabilities(),
	}
}

func (e *Env) Config() types.Config {
	return e.config
}

// AddStandaloneNode makes node visible to GetStandaloneNode and registers it as
// its own capability.
func (e *Env) AddStandaloneNode(node types.StandaloneNode) {
	e.Lock()
	e.standalone[node.Id()] = node
	e.Unlock()
	e.capabilities.Register(node.Id(), node)
	if p, ok := node.(types.CapabilityProvider); ok {
		e.capabilities.Register(node.Id(), p.Capabilities()...)
	}
}

// AddFlowNode makes node visible to FindFlowNode.
func (e *Env) AddFlowNode(node types.FlowNode) {
	e.Lock()
	defer e.Unlock()
	e.flowNodes[node.Id()] = node
}

func (e *Env) GetStandaloneNode(id string) (types.StandaloneNode, bool) {
	e.RLock()
	defer e.RUnlock()
	node, ok := e.standalone[id]
	return node, ok
}

func (e *Env) FindFlowNode(id string) (types.FlowNode, bool) {
	e.RLock()
	defer e.RUnlock()
	node, ok := e.flowNodes[id]
	return node, ok
}

func (e *Env) Cache() types.Cache {
	return e.config.Cache
}

func (e *Env) Capabilities() *types.Capabilities {
	return e.capabilities
}

// Flow is a types.Flow that records sends and deliveries instead of routing them.
type Flow struct {
	id        string
	env       *Env
	nodes     []types.FlowNode
	sent      []Sent
	delivered []Delivered
	signal    chan struct{}
	sync.Mutex
}

// NewFlow creates a recording flow in a fresh environment.
func NewFlow(config types.Config) *Flow {
	return NewFlowInEnv(NewEnv(config))
}

// NewFlowInEnv creates a recording flow sharing env.
func NewFlowInEnv(env *Env) *Flow {
	return &Flow{id: "test-flow", env: env, signal: make(chan struct{}, 1)}
}

func (f *Flow) Id() string {
	return f.id
}

func (f *Flow) Label() string {
	return f.id
}

func (f *Flow) Disabled() bool {
	return false
}

func (f *Flow) Env() types.Environment {
	return f.env
}

// TestEnv returns the concrete environment.
func (f *Flow) TestEnv() *Env {
	return f.env
}

// Add registers a node built on this flow.
func (f *Flow) Add(node types.FlowNode) {
	f.Lock()
	f.nodes = append(f.nodes, node)
	f.Unlock()
	f.env.AddFlowNode(node)
}

func (f *Flow) Nodes() []types.FlowNode {
	f.Lock()
	defer f.Unlock()
	return append([]types.FlowNode(nil), f.nodes...)
}

func (f *Flow) GetNode(id string) (types.FlowNode, bool) {
	f.Lock()
	defer f.Unlock()
	for _, node := range f.nodes {
		if node.Id() == id {
			return node, true
		}
	}
	return nil, false
}

func (f *Flow) NodeByHandle(handle types.NodeHandle) (types.FlowNode, bool) {
	f.Lock()
	defer f.Unlock()
	if handle < 0 || int(handle) >= len(f.nodes) {
		return nil, false
	}
	return f.nodes[handle], true
}

// SendMany records msgs[i] as sent on port i.
func (f *Flow) SendMany(ctx context.Context, from types.FlowNode, msgs []*types.Msg) error {
	if len(msgs) > len(from.Outputs()) {
		return fmt.Errorf("%w: node %s sent %d messages to %d ports", types.ErrInvalidOperation, from.Id(), len(msgs), len(from.Outputs()))
	}
	f.Lock()
	for i, msg := range msgs {
		if msg != nil {
			f.sent = append(f.sent, Sent{Port: i, Msg: msg})
		}
	}
	f.Unlock()
	f.notify()
	return nil
}

// Deliver records the delivery.
func (f *Flow) Deliver(ctx context.Context, fromId string, toId string, msg *types.Msg) error {
	f.Lock()
	f.delivered = append(f.delivered, Delivered{FromId: fromId, ToId: toId, Msg: msg})
	f.Unlock()
	f.notify()
	return nil
}

func (f *Flow) notify() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *Flow) Start(ctx context.Context) error {
	return nil
}

func (f *Flow) Stop(ctx context.Context) error {
	return nil
}

// Sent returns the recorded sends.
func (f *Flow) Sent() []Sent {
	f.Lock()
	defer f.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Delivered returns the recorded deliveries.
func (f *Flow) Delivered() []Delivered {
	f.Lock()
	defer f.Unlock()
	return append([]Delivered(nil), f.delivered...)
}

// WaitSent blocks until at least n sends were recorded or timeout elapses.
func (f *Flow) WaitSent(n int, timeout time.Duration) []Sent {
	deadline := time.After(timeout)
	for {
		if sent := f.Sent(); len(sent) >= n {
			return sent
		}
		select {
		case <-f.signal:
		case <-deadline:
			return f.Sent()
		}
	}
}

// Ports creates n output ports with one placeholder wire each.
func Ports(n int) []types.OutputPort {
	ports := make([]types.OutputPort, n)
	for i := range ports {
		ports[i] = types.NewOutputPort(types.NodeHandle(i))
	}
	return ports
}

// Records decodes a JSON flows document, failing the test on error.
func Records(t testing.TB, dsl string) []types.Record {
	t.Helper()
	var records []types.Record
	if err := json.Unmarshal([]byte(dsl), &records); err != nil {
		t.Fatalf("invalid flows document: %v", err)
	}
	return records
}

// Record decodes a single JSON record, failing the test on error.
func Record(t testing.TB, dsl string) types.Record {
	t.Helper()
	var record types.Record
	if err := json.Unmarshal([]byte(dsl), &record); err != nil {
		t.Fatalf("invalid record: %v", err)
	}
	return record
}

// Msg creates a message with the given payload.
func Msg(payload interface{}) *types.Msg {
	msg := types.NewMsg(ids)
	msg.SetPayload(payload)
	return msg
}

var ids = types.NewIdGenerator(0)
