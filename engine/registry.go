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
	"errors"
	"fmt"
	"plugin"
	"sort"
	"sync"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/common"
	"github.com/edgelinkgo/edgelink/components/function"
	"github.com/edgelinkgo/edgelink/components/mqtt"
	"github.com/edgelinkgo/edgelink/components/network"
	"github.com/edgelinkgo/edgelink/components/storage"
)

// PluginsSymbol is the symbol used to identify plugins in a Go plugin file.
const PluginsSymbol = "Plugins"

// Registry is the default registry of node types.
var Registry = new(NodeTypeRegistry)

// init registers the built-in node types to the default registry.
func init() {
	for _, slice := range []*types.SafeProviderSlice{common.Registry, function.Registry, mqtt.Registry, network.Registry, storage.Registry} {
		for _, provider := range slice.FlowNodeProviders() {
			_ = Registry.RegisterFlowNode(provider)
		}
		for _, provider := range slice.StandaloneNodeProviders() {
			_ = Registry.RegisterStandaloneNode(provider)
		}
	}
}

// NodeTypeRegistry maps node type names to their providers.
type NodeTypeRegistry struct {
	flowNodes       map[string]types.FlowNodeProvider
	standaloneNodes map[string]types.StandaloneNodeProvider
	// plugins maps a plugin name to the type names it contributed.
	plugins map[string][]string
	sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *NodeTypeRegistry {
	return new(NodeTypeRegistry)
}

func (r *NodeTypeRegistry) init() {
	if r.flowNodes == nil {
		r.flowNodes = make(map[string]types.FlowNodeProvider)
	}
	if r.standaloneNodes == nil {
		r.standaloneNodes = make(map[string]types.StandaloneNodeProvider)
	}
	if r.plugins == nil {
		r.plugins = make(map[string][]string)
	}
}

func (r *NodeTypeRegistry) exists(typeName string) bool {
	_, flowOk := r.flowNodes[typeName]
	_, standaloneOk := r.standaloneNodes[typeName]
	return flowOk || standaloneOk
}

// RegisterFlowNode adds a flow node provider.
func (r *NodeTypeRegistry) RegisterFlowNode(provider types.FlowNodeProvider) error {
	r.Lock()
	defer r.Unlock()
	r.init()
	typeName := provider.Descriptor().Type()
	if r.exists(typeName) {
		return fmt.Errorf("%w. nodeType=%s", types.ErrComponentExists, typeName)
	}
	r.flowNodes[typeName] = provider
	return nil
}

// RegisterStandaloneNode adds a standalone node provider.
func (r *NodeTypeRegistry) RegisterStandaloneNode(provider types.StandaloneNodeProvider) error {
	r.Lock()
	defer r.Unlock()
	r.init()
	typeName := provider.Descriptor().Type()
	if r.exists(typeName) {
		return fmt.Errorf("%w. nodeType=%s", types.ErrComponentExists, typeName)
	}
	r.standaloneNodes[typeName] = provider
	return nil
}

// RegisterPlugin adds the node types exported by a Go plugin file.
func (r *NodeTypeRegistry) RegisterPlugin(name string, file string) error {
	registry, err := loadPlugin(file)
	if err != nil {
		return err
	}
	return r.registerPluginRegistry(name, registry)
}

func (r *NodeTypeRegistry) registerPluginRegistry(name string, registry types.PluginRegistry) error {
	if err := registry.Init(); err != nil {
		return err
	}
	flowNodes := registry.FlowNodeProviders()
	standaloneNodes := registry.StandaloneNodeProviders()

	r.Lock()
	defer r.Unlock()
	r.init()
	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("%w. plugin=%s", types.ErrComponentExists, name)
	}
	var typeNames []string
	for _, p := range flowNodes {
		typeNames = append(typeNames, p.Descriptor().Type())
	}
	for _, p := range standaloneNodes {
		typeNames = append(typeNames, p.Descriptor().Type())
	}
	for _, typeName := range typeNames {
		if r.exists(typeName) {
			return fmt.Errorf("%w. nodeType=%s", types.ErrComponentExists, typeName)
		}
	}
	for _, p := range flowNodes {
		r.flowNodes[p.Descriptor().Type()] = p
	}
	for _, p := range standaloneNodes {
		r.standaloneNodes[p.Descriptor().Type()] = p
	}
	r.plugins[name] = typeNames
	return nil
}

// Unregister removes a node type, or every node type of the named plugin.
func (r *NodeTypeRegistry) Unregister(typeName string) error {
	r.Lock()
	defer r.Unlock()
	removed := false
	if typeNames, ok := r.plugins[typeName]; ok {
		for _, item := range typeNames {
			delete(r.flowNodes, item)
			delete(r.standaloneNodes, item)
		}
		delete(r.plugins, typeName)
		removed = true
	}
	if r.exists(typeName) {
		delete(r.flowNodes, typeName)
		delete(r.standaloneNodes, typeName)
		removed = true
	}
	if !removed {
		return fmt.Errorf("%w. nodeType=%s", types.ErrUnknownNodeType, typeName)
	}
	return nil
}

// GetFlowNodeProvider returns the provider of a flow node type.
func (r *NodeTypeRegistry) GetFlowNodeProvider(typeName string) (types.FlowNodeProvider, error) {
	r.RLock()
	defer r.RUnlock()
	if p, ok := r.flowNodes[typeName]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w. nodeType=%s", types.ErrUnknownNodeType, typeName)
}

// GetStandaloneNodeProvider returns the provider of a standalone node type.
func (r *NodeTypeRegistry) GetStandaloneNodeProvider(typeName string) (types.StandaloneNodeProvider, error) {
	r.RLock()
	defer r.RUnlock()
	if p, ok := r.standaloneNodes[typeName]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w. nodeType=%s", types.ErrUnknownNodeType, typeName)
}

// Descriptors returns every registered descriptor sorted by type name.
func (r *NodeTypeRegistry) Descriptors() []*types.NodeDescriptor {
	r.RLock()
	defer r.RUnlock()
	out := make([]*types.NodeDescriptor, 0, len(r.flowNodes)+len(r.standaloneNodes))
	for _, p := range r.flowNodes {
		out = append(out, p.Descriptor())
	}
	for _, p := range r.standaloneNodes {
		out = append(out, p.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type() < out[j].Type()
	})
	return out
}

// loadPlugin opens a plugin file and looks up its exported registry.
func loadPlugin(file string) (types.PluginRegistry, error) {
	p, err := plugin.Open(file)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(PluginsSymbol)
	if err != nil {
		return nil, err
	}
	registry, ok := sym.(types.PluginRegistry)
	if !ok {
		return nil, errors.New("invalid plugin")
	}
	return registry, nil
}
