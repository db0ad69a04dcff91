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

package cache

import (
	"strings"

	"github.com/edgelinkgo/edgelink/api/types"
)

var _ types.Cache = (*NamespaceCache)(nil)

// NamespaceCache prefixes every key with Namespace, isolating one context scope
// inside a shared cache.
type NamespaceCache struct {
	Cache     types.Cache
	Namespace string
}

// NewNamespaceCache creates a view of cache under namespace. It returns nil for
// a nil cache; every method of a nil view is safe to call.
func NewNamespaceCache(cache types.Cache, namespace string) *NamespaceCache {
	if cache == nil {
		return nil
	}
	return &NamespaceCache{Cache: cache, Namespace: namespace}
}

// GlobalNamespace is the scope shared by every flow.
func GlobalNamespace() string {
	return "global:"
}

// FlowNamespace is the scope of one flow.
func FlowNamespace(flowId string) string {
	return "flow:" + flowId + ":"
}

// NodeNamespace is the scope of one node.
func NodeNamespace(flowId, nodeId string) string {
	return "node:" + flowId + ":" + nodeId + ":"
}

func (c *NamespaceCache) Set(key string, value interface{}, ttl string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.Set(c.Namespace+key, value, ttl)
}

func (c *NamespaceCache) Get(key string) interface{} {
	if c == nil || c.Cache == nil {
		return nil
	}
	return c.Cache.Get(c.Namespace + key)
}

func (c *NamespaceCache) Has(key string) bool {
	if c == nil || c.Cache == nil {
		return false
	}
	return c.Cache.Has(c.Namespace + key)
}

func (c *NamespaceCache) Delete(key string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.Delete(c.Namespace + key)
}

func (c *NamespaceCache) DeleteByPrefix(prefix string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.DeleteByPrefix(c.Namespace + prefix)
}

// GetByPrefix returns matching entries with the namespace stripped from the keys.
func (c *NamespaceCache) GetByPrefix(prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	if c == nil || c.Cache == nil {
		return result
	}
	for k, v := range c.Cache.GetByPrefix(c.Namespace + prefix) {
		result[strings.TrimPrefix(k, c.Namespace)] = v
	}
	return result
}

// Keys returns the keys of the scope.
func (c *NamespaceCache) Keys() []string {
	entries := c.GetByPrefix("")
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return keys
}
