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
	"sync"
)

// FlowNodeProvider is the factory registered under a flow node type name.
type FlowNodeProvider interface {
	Descriptor() *NodeDescriptor
	// Create builds a node. outputs are already resolved against nodes built
	// earlier in the same flow.
	Create(id string, record Record, outputs []OutputPort, flow Flow) (FlowNode, error)
}

// StandaloneNodeProvider is the factory registered under a standalone node type name.
type StandaloneNodeProvider interface {
	Descriptor() *NodeDescriptor
	Create(id string, record Record, env Environment) (StandaloneNode, error)
}

// FlowNodeCreateFunc builds a flow node for a provider.
type FlowNodeCreateFunc func(desc *NodeDescriptor, id string, record Record, outputs []OutputPort, flow Flow) (FlowNode, error)

// StandaloneNodeCreateFunc builds a standalone node for a provider.
type StandaloneNodeCreateFunc func(desc *NodeDescriptor, id string, record Record, env Environment) (StandaloneNode, error)

type flowNodeProvider struct {
	desc   *NodeDescriptor
	create FlowNodeCreateFunc
}

// NewFlowNodeProvider creates a provider from a create function.
func NewFlowNodeProvider(typeName string, kind NodeKind, create FlowNodeCreateFunc) FlowNodeProvider {
	p := &flowNodeProvider{create: create}
	p.desc = NewNodeDescriptor(typeName, kind, p)
	return p
}

func (p *flowNodeProvider) Descriptor() *NodeDescriptor {
	return p.desc
}

func (p *flowNodeProvider) Create(id string, record Record, outputs []OutputPort, flow Flow) (FlowNode, error) {
	return p.create(p.desc, id, record, outputs, flow)
}

type standaloneNodeProvider struct {
	desc   *NodeDescriptor
	create StandaloneNodeCreateFunc
}

// NewStandaloneNodeProvider creates a standalone provider from a create function.
func NewStandaloneNodeProvider(typeName string, create StandaloneNodeCreateFunc) StandaloneNodeProvider {
	p := &standaloneNodeProvider{create: create}
	p.desc = NewNodeDescriptor(typeName, STANDALONE, p)
	return p
}

func (p *standaloneNodeProvider) Descriptor() *NodeDescriptor {
	return p.desc
}

func (p *standaloneNodeProvider) Create(id string, record Record, env Environment) (StandaloneNode, error) {
	return p.create(p.desc, id, record, env)
}

// Registry maps type names to node providers.
type Registry interface {
	// RegisterFlowNode adds a flow node provider, failing if the type exists.
	RegisterFlowNode(provider FlowNodeProvider) error
	// RegisterStandaloneNode adds a standalone node provider, failing if the type exists.
	RegisterStandaloneNode(provider StandaloneNodeProvider) error
	// RegisterPlugin loads providers from a Go plugin file.
	RegisterPlugin(name string, file string) error
	// Unregister removes a type, or every type loaded by the named plugin.
	Unregister(typeName string) error
	GetFlowNodeProvider(typeName string) (FlowNodeProvider, error)
	GetStandaloneNodeProvider(typeName string) (StandaloneNodeProvider, error)
	// Descriptors lists every registered type.
	Descriptors() []*NodeDescriptor
}

// PluginRegistry is the symbol a Go plugin exports to contribute node types.
//
//	package main
//	var Plugins MyPlugins
//	type MyPlugins struct{}
//	func (p *MyPlugins) Init() error { return nil }
//	func (p *MyPlugins) FlowNodeProviders() []types.FlowNodeProvider { ... }
//	func (p *MyPlugins) StandaloneNodeProviders() []types.StandaloneNodeProvider { return nil }
//
// go build -buildmode=plugin -o plugin.so plugin.go
type PluginRegistry interface {
	Init() error
	FlowNodeProviders() []FlowNodeProvider
	StandaloneNodeProviders() []StandaloneNodeProvider
}

// SafeProviderSlice collects the providers of one component package.
type SafeProviderSlice struct {
	flowNodes       []FlowNodeProvider
	standaloneNodes []StandaloneNodeProvider
	sync.Mutex
}

// AddFlowNode appends flow node providers.
func (p *SafeProviderSlice) AddFlowNode(providers ...FlowNodeProvider) {
	p.Lock()
	defer p.Unlock()
	p.flowNodes = append(p.flowNodes, providers...)
}

// AddStandaloneNode appends standalone node providers.
func (p *SafeProviderSlice) AddStandaloneNode(providers ...StandaloneNodeProvider) {
	p.Lock()
	defer p.Unlock()
	p.standaloneNodes = append(p.standaloneNodes, providers...)
}

// FlowNodeProviders returns the collected flow node providers.
func (p *SafeProviderSlice) FlowNodeProviders() []FlowNodeProvider {
	p.Lock()
	defer p.Unlock()
	return append([]FlowNodeProvider(nil), p.flowNodes...)
}

// StandaloneNodeProviders returns the collected standalone node providers.
func (p *SafeProviderSlice) StandaloneNodeProviders() []StandaloneNodeProvider {
	p.Lock()
	defer p.Unlock()
	return append([]StandaloneNodeProvider(nil), p.standaloneNodes...)
}
