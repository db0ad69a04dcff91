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

package types

import (
	"context"
	"sync/atomic"
)

// NodeKind classifies what a node type does in a flow graph.
type NodeKind int

const (
	// JUNCTION forwards messages without processing them.
	JUNCTION NodeKind = iota
	// STANDALONE nodes are not part of any flow; they own shared resources.
	STANDALONE
	// SOURCE nodes produce messages from a background loop and never receive.
	SOURCE
	// SINK nodes consume messages.
	SINK
	// PIPE nodes receive, transform and send onward.
	PIPE
	// FILTER nodes are pipes that may drop messages.
	FILTER
)

func (k NodeKind) String() string {
	switch k {
	case JUNCTION:
		return "JUNCTION"
	case STANDALONE:
		return "STANDALONE"
	case SOURCE:
		return "SOURCE"
	case SINK:
		return "SINK"
	case PIPE:
		return "PIPE"
	case FILTER:
		return "FILTER"
	default:
		return "UNKNOWN"
	}
}

// CanReceive reports whether nodes of this kind may be the destination of a wire.
func (k NodeKind) CanReceive() bool {
	switch k {
	case JUNCTION, PIPE, FILTER, SINK:
		return true
	default:
		return false
	}
}

// NodeState is the lifecycle state of a node.
// CONSTRUCTED -> STARTING -> RUNNING -> STOPPING -> STOPPED
type NodeState int32

const (
	StateConstructed NodeState = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s NodeState) String() string {
	switch s {
	case StateConstructed:
		return "CONSTRUCTED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// AtomicState is a NodeState safe for concurrent reads and writes.
type AtomicState struct {
	v atomic.Int32
}

func (s *AtomicState) Load() NodeState {
	return NodeState(s.v.Load())
}

func (s *AtomicState) Store(state NodeState) {
	s.v.Store(int32(state))
}

// CompareAndSwap moves from old to new if the current state is old.
func (s *AtomicState) CompareAndSwap(old, new NodeState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// NodeDescriptor describes a registered node type. One descriptor is created per
// provider and shared by every node instance of that type.
type NodeDescriptor struct {
	typeName string
	kind     NodeKind
	provider interface{}
}

// NewNodeDescriptor creates a descriptor. provider is the factory owning the
// descriptor and may be nil for descriptors not backed by a registry entry.
func NewNodeDescriptor(typeName string, kind NodeKind, provider interface{}) *NodeDescriptor {
	return &NodeDescriptor{typeName: typeName, kind: kind, provider: provider}
}

func (d *NodeDescriptor) Type() string {
	return d.typeName
}

func (d *NodeDescriptor) Kind() NodeKind {
	return d.kind
}

// Provider returns the factory the descriptor belongs to.
func (d *NodeDescriptor) Provider() interface{} {
	return d.provider
}

// NodeHandle is the stable index of a node inside its flow's node arena.
type NodeHandle int

// InvalidHandle never refers to a node.
const InvalidHandle NodeHandle = -1

// OutputPort is the fixed list of wires leaving one output of a node.
// Ports are immutable once built; rewiring means rebuilding the node.
type OutputPort struct {
	wires []NodeHandle
}

// NewOutputPort creates a port wired to the given destinations in order.
func NewOutputPort(wires ...NodeHandle) OutputPort {
	return OutputPort{wires: append([]NodeHandle(nil), wires...)}
}

// Len returns the number of wires attached to the port.
func (p OutputPort) Len() int {
	return len(p.wires)
}

// Wire returns the i-th destination handle.
func (p OutputPort) Wire(i int) NodeHandle {
	return p.wires[i]
}

// Wires returns a copy of the destination handles.
func (p OutputPort) Wires() []NodeHandle {
	return append([]NodeHandle(nil), p.wires...)
}

// Node is the identity and lifecycle shared by flow nodes and standalone nodes.
type Node interface {
	Id() string
	Name() string
	Type() string
	Descriptor() *NodeDescriptor
	Disabled() bool
	State() NodeState
	// Start moves the node to RUNNING. ctx is cancelled when the owner stops.
	Start(ctx context.Context) error
	// Stop releases the node's resources and moves it to STOPPED.
	Stop(ctx context.Context) error
}

// FlowNode is a node that belongs to a flow and owns output ports.
type FlowNode interface {
	Node
	Flow() Flow
	Outputs() []OutputPort
}

// Receiver is implemented by nodes that accept messages from the routing layer:
// JUNCTION, PIPE, FILTER and SINK kinds.
type Receiver interface {
	Receive(ctx context.Context, msg *Msg) error
}

// ReceiverNode is a flow node able to receive.
type ReceiverNode interface {
	FlowNode
	Receiver
}

// SourceRunner executes one iteration of a source loop. It is called repeatedly
// until ctx is cancelled and should block on its timer or I/O while idle.
type SourceRunner interface {
	Run(ctx context.Context) error
}

// SourceNode is a flow node that produces messages.
type SourceNode interface {
	FlowNode
	SourceRunner
}

// StandaloneNode owns a resource shared across flows, such as a broker
// connection. It is owned by the engine and has no ports.
type StandaloneNode interface {
	Node
}

// Flow is one independently startable group of wired nodes.
type Flow interface {
	Id() string
	Label() string
	Disabled() bool
	// Env returns the engine services available to nodes.
	Env() Environment
	// Nodes returns the nodes in construction order.
	Nodes() []FlowNode
	// GetNode returns the node with the given id.
	GetNode(id string) (FlowNode, bool)
	// NodeByHandle dereferences a wire.
	NodeByHandle(handle NodeHandle) (FlowNode, bool)
	// SendMany routes msgs[i] to every wire of from's port i.
	SendMany(ctx context.Context, from FlowNode, msgs []*Msg) error
	// Deliver routes a single message to the node named by id, as if it arrived
	// on a wire. Used by link nodes and by callers injecting into the flow.
	Deliver(ctx context.Context, fromId string, toId string, msg *Msg) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Environment exposes engine services to nodes.
type Environment interface {
	Config() Config
	// GetStandaloneNode returns a standalone node by id.
	GetStandaloneNode(id string) (StandaloneNode, bool)
	// FindFlowNode searches every flow for a node id.
	FindFlowNode(id string) (FlowNode, bool)
	// Capabilities returns the registry of capabilities exposed by standalone nodes.
	Capabilities() *Capabilities
	// Cache returns the store backing node, flow and global context.
	Cache() Cache
}

// Pool runs tasks asynchronously.
type Pool interface {
	// Submit schedules task. It returns an error when the pool cannot accept it.
	Submit(task func()) error
	// Release stops the pool.
	Release()
}

// Parser decodes a flows document into its flat list of records.
type Parser interface {
	Decode(dsl []byte) ([]Record, error)
	Encode(records []Record) ([]byte, error)
}
