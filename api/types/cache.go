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

import "errors"

// ErrCacheNotInitialized is returned by namespace views without a backing cache.
var ErrCacheNotInitialized = errors.New("cache not initialized")

// Cache is the key/value store behind node, flow and global context. Values are
// kept in memory as given; ttl is a duration string such as "10m", empty for
// no expiry.
type Cache interface {
	Set(key string, value interface{}, ttl string) error
	// Get returns the value, or nil when absent or expired.
	Get(key string) interface{}
	Has(key string) bool
	Delete(key string) error
	DeleteByPrefix(prefix string) error
	// GetByPrefix returns the live entries whose key starts with prefix.
	GetByPrefix(prefix string) map[string]interface{}
}
