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
	"math"
	"time"

	"github.com/edgelinkgo/edgelink/utils/pool"
)

// Config defines the configuration of an engine and is handed to every node
// through its flow's Environment.
type Config struct {
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Pool runs detached deliveries of SOURCE nodes. If not configured, a
	// `pool.WorkerPool` is created when the engine starts.
	Pool Pool
	// Registry resolves node type names, defaulting to `engine.Registry`.
	Registry Registry
	// Parser decodes flows documents, defaulting to `engine.JsonParser`.
	Parser Parser
	// IdGenerator hands out message ids. Each engine gets its own generator
	// unless one is configured.
	IdGenerator IdGenerator
	// Properties are global properties in key-value format.
	// String fields of node records can reference them with ${global.propertyKey};
	// replacement happens once, when the node is built.
	Properties map[string]string
	// Aspects instrument message routing.
	Aspects AspectList
	// Cache backs node, flow and global context. Each engine creates an
	// in-memory cache unless one is configured.
	Cache Cache
	// ScriptMaxExecutionTime bounds a single function node invocation, defaulting
	// to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 DefaultLogger(),
		Properties:             make(map[string]string),
	}
	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}

// DefaultPool provides a started worker pool.
func DefaultPool() Pool {
	wp := &pool.WorkerPool{MaxWorkersCount: math.MaxInt32}
	wp.Start()
	return wp
}
