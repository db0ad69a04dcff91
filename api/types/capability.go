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
	"fmt"
	"sync"
)

// Capabilities is the registry of narrow interfaces that standalone nodes expose
// to flow nodes, for example an MQTT publisher. Callers must not assume exclusive
// access: a capability shared by several nodes is responsible for its own
// concurrency safety.
type Capabilities struct {
	entries map[string][]interface{}
	sync.RWMutex
}

// NewCapabilities creates an empty registry.
func NewCapabilities() *Capabilities {
	return &Capabilities{entries: make(map[string][]interface{})}
}

// Register publishes capability values under a standalone node id.
func (c *Capabilities) Register(id string, capabilities ...interface{}) {
	c.Lock()
	defer c.Unlock()
	c.entries[id] = append(c.entries[id], capabilities...)
}

// Remove drops every capability of id.
func (c *Capabilities) Remove(id string) {
	c.Lock()
	defer c.Unlock()
	delete(c.entries, id)
}

func (c *Capabilities) get(id string) ([]interface{}, bool) {
	c.RLock()
	defer c.RUnlock()
	list, ok := c.entries[id]
	return list, ok
}

// CapabilityProvider is implemented by standalone nodes that expose capabilities
// other than themselves.
type CapabilityProvider interface {
	Capabilities() []interface{}
}

// LookupCapability returns the capability T registered under id. It returns
// ErrCapabilityNotAvailable when id is unknown or provides no T.
func LookupCapability[T any](env Environment, id string) (T, error) {
	var zero T
	if env == nil || env.Capabilities() == nil {
		return zero, fmt.Errorf("%w: no environment", ErrCapabilityNotAvailable)
	}
	list, ok := env.Capabilities().get(id)
	if !ok {
		return zero, fmt.Errorf("%w: node %s not found", ErrCapabilityNotAvailable, id)
	}
	for _, item := range list {
		if capability, ok := item.(T); ok {
			return capability, nil
		}
	}
	return zero, fmt.Errorf("%w: node %s does not provide %T", ErrCapabilityNotAvailable, id, (*T)(nil))
}
