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

// Package cache provides the in-memory store behind node, flow and global
// context, and namespaced views over it.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
)

// DefaultGCInterval is how often expired entries are swept.
const DefaultGCInterval = 5 * time.Minute

var _ types.Cache = (*MemoryCache)(nil)

type item struct {
	value interface{}
	// expiration is a Unix nano timestamp, zero for entries that never expire.
	expiration int64
}

func (it item) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

// MemoryCache is a concurrent map with optional per-entry expiry. The sweeper
// goroutine only runs while expirable entries exist.
type MemoryCache struct {
	items      map[string]item
	gcInterval time.Duration
	stopGc     chan struct{}
	mu         sync.RWMutex
}

// NewMemoryCache creates an empty cache. A non-positive interval uses
// DefaultGCInterval.
func NewMemoryCache(gcInterval time.Duration) *MemoryCache {
	if gcInterval <= 0 {
		gcInterval = DefaultGCInterval
	}
	return &MemoryCache{items: make(map[string]item), gcInterval: gcInterval}
}

func (c *MemoryCache) Set(key string, value interface{}, ttl string) error {
	var expiration int64
	if ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return err
		}
		if d > 0 {
			expiration = time.Now().Add(d).UnixNano()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiration: expiration}
	if expiration > 0 && c.stopGc == nil {
		c.startGcLocked()
	}
	return nil
}

func (c *MemoryCache) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok || it.expired(time.Now().UnixNano()) {
		return nil
	}
	return it.value
}

func (c *MemoryCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	return ok && !it.expired(time.Now().UnixNano())
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) DeleteByPrefix(prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

func (c *MemoryCache) GetByPrefix(prefix string) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now().UnixNano()
	result := make(map[string]interface{})
	for k, it := range c.items {
		if strings.HasPrefix(k, prefix) && !it.expired(now) {
			result[k] = it.value
		}
	}
	return result
}

// StopGC stops the sweeper. Expired entries are still hidden from readers, and
// the next Set with a ttl starts it again.
func (c *MemoryCache) StopGC() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopGc != nil {
		close(c.stopGc)
		c.stopGc = nil
	}
}

func (c *MemoryCache) startGcLocked() {
	stop := make(chan struct{})
	c.stopGc = stop
	ticker := time.NewTicker(c.gcInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !c.deleteExpired(stop) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// deleteExpired sweeps expired entries and reports whether the sweeper should
// keep running.
func (c *MemoryCache) deleteExpired(stop chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopGc != stop {
		return false
	}
	now := time.Now().UnixNano()
	remaining := false
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		} else if it.expiration > 0 {
			remaining = true
		}
	}
	if !remaining {
		close(c.stopGc)
		c.stopGc = nil
	}
	return remaining
}
