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

// Package engine builds flow graphs from flows documents and runs them.
//
// A flows document is a flat list of records. Records of type "tab" open a flow,
// records with a "z" field belong to that flow, and records without "z" describe
// standalone nodes owned by the engine, for example a broker connection:
//
//	[
//	  {"id":"f1","type":"tab","label":"Flow 1"},
//	  {"id":"b1","type":"mqtt-broker","broker":"127.0.0.1","port":"1883"},
//	  {"id":"n1","type":"inject","z":"f1","repeat":"5","wires":[["n2"]]},
//	  {"id":"n2","type":"mqtt out","z":"f1","broker":"b1","topic":"demo"}
//	]
//
// Usage:
//
//	e := engine.New(engine.NewConfig())
//	if err := e.Load(dsl); err != nil { ... }
//	if err := e.Start(ctx); err != nil { ... }
//	defer e.Stop(context.Background())
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/cache"
	"github.com/edgelinkgo/edgelink/utils/pool"
	"github.com/gofrs/uuid/v5"
)

// NewConfig creates a config with the default registry and parser and applies opts.
func NewConfig(opts ...types.Option) types.Config {
	c := types.NewConfig(opts...)
	if c.Registry == nil {
		c.Registry = Registry
	}
	if c.Parser == nil {
		c.Parser = &JsonParser{}
	}
	return c
}

// Engine owns the standalone nodes and flows built from one flows document.
// It implements types.Environment for the nodes it builds.
type Engine struct {
	id           string
	config       types.Config
	records      []types.Record
	standalone   []types.StandaloneNode
	standaloneId map[string]types.StandaloneNode
	flows        []*Flow
	flowId       map[string]*Flow
	capabilities *types.Capabilities
	startedNodes int
	startedFlows int
	built        bool
	started      bool
	sync.RWMutex

	// runPool serves detached deliveries while the engine runs.
	runPool types.Pool
	ownPool bool
	poolMu  sync.RWMutex
}

// New creates an engine. opts are applied on top of config.
func New(config types.Config, opts ...types.Option) *Engine {
	for _, opt := range opts {
		_ = opt(&config)
	}
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	if config.Registry == nil {
		config.Registry = Registry
	}
	if config.Parser == nil {
		config.Parser = &JsonParser{}
	}
	if config.IdGenerator == nil {
		config.IdGenerator = types.NewIdGenerator(0)
	}
	if config.Cache == nil {
		config.Cache = cache.NewMemoryCache(0)
	}
	id := ""
	if v, err := uuid.NewV4(); err == nil {
		id = v.String()
	}
	return &Engine{id: id, config: config, capabilities: types.NewCapabilities()}
}

// Id returns the engine instance id.
func (e *Engine) Id() string {
	return e.id
}

// Config returns the engine configuration.
func (e *Engine) Config() types.Config {
	return e.config
}

// Load parses a flows document with the configured parser.
func (e *Engine) Load(dsl []byte) error {
	records, err := e.config.Parser.Decode(dsl)
	if err != nil {
		return err
	}
	return e.LoadRecords(records)
}

// LoadRecords replaces the configuration. The engine must not be running.
func (e *Engine) LoadRecords(records []types.Record) error {
	e.Lock()
	defer e.Unlock()
	if e.started {
		return types.ErrEngineStarted
	}
	e.records = records
	e.built = false
	return nil
}

// Build constructs every standalone node and flow without starting them. Start
// builds implicitly; calling Build first only validates the configuration.
func (e *Engine) Build() error {
	e.Lock()
	defer e.Unlock()
	if e.started {
		return types.ErrEngineStarted
	}
	return e.build()
}

// build either constructs the whole graph or leaves the engine empty.
func (e *Engine) build() error {
	e.reset()
	l, err := split(e.records)
	if err != nil {
		return err
	}
	for _, r := range l.globals {
		record := substitute(r, e.config.Properties)
		provider, err := e.config.Registry.GetStandaloneNodeProvider(record.Type())
		if err != nil {
			e.reset()
			return fmt.Errorf("standalone node %s: %w", record.Id(), err)
		}
		node, err := provider.Create(record.Id(), record, e)
		if err != nil {
			e.reset()
			return fmt.Errorf("standalone node %s (%s): %w", record.Id(), record.Type(), err)
		}
		e.standalone = append(e.standalone, node)
		e.standaloneId[node.Id()] = node
		e.capabilities.Register(node.Id(), node)
		if p, ok := node.(types.CapabilityProvider); ok {
			e.capabilities.Register(node.Id(), p.Capabilities()...)
		}
	}
	for _, r := range l.flows {
		if r.Disabled() {
			e.logger().Printf("flow %s is disabled", r.Id())
			continue
		}
		f, err := buildFlow(e, r, l.members[r.Id()])
		if err != nil {
			e.reset()
			return err
		}
		e.flows = append(e.flows, f)
		e.flowId[f.Id()] = f
	}
	e.built = true
	return nil
}

func (e *Engine) reset() {
	for _, node := range e.standalone {
		e.capabilities.Remove(node.Id())
	}
	e.standalone = nil
	e.standaloneId = make(map[string]types.StandaloneNode)
	e.flows = nil
	e.flowId = make(map[string]*Flow)
	e.built = false
}

// Start builds the graph, then starts the standalone nodes and the flows in
// document order. Nothing is left running when an error is returned.
func (e *Engine) Start(ctx context.Context) error {
	e.Lock()
	defer e.Unlock()
	if e.started {
		return types.ErrEngineStarted
	}
	if !e.built {
		if err := e.build(); err != nil {
			return err
		}
	}
	e.poolMu.Lock()
	e.runPool, e.ownPool = e.config.Pool, false
	if e.runPool == nil {
		e.runPool, e.ownPool = e.newPool(), true
	}
	e.poolMu.Unlock()
	for _, node := range e.standalone {
		if node.Disabled() {
			e.startedNodes++
			continue
		}
		if err := node.Start(ctx); err != nil {
			e.shutdown(ctx)
			return fmt.Errorf("start standalone node %s: %w", node.Id(), err)
		}
		e.startedNodes++
	}
	for _, f := range e.flows {
		if err := f.Start(ctx); err != nil {
			e.shutdown(ctx)
			return err
		}
		e.startedFlows++
	}
	e.started = true
	return nil
}

// Stop stops the flows in reverse order, then the standalone nodes. The stopped
// graph stays inspectable until the next Start, which builds it again.
func (e *Engine) Stop(ctx context.Context) error {
	e.Lock()
	defer e.Unlock()
	if !e.started {
		return types.ErrEngineNotStarted
	}
	err := e.shutdown(ctx)
	e.started = false
	return err
}

func (e *Engine) shutdown(ctx context.Context) error {
	var errs []error
	for i := e.startedFlows - 1; i >= 0; i-- {
		if err := e.flows[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := e.startedNodes - 1; i >= 0; i-- {
		node := e.standalone[i]
		if node.Disabled() {
			continue
		}
		if err := node.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop standalone node %s: %w", node.Id(), err))
		}
	}
	e.startedFlows, e.startedNodes = 0, 0
	e.built = false

	e.poolMu.Lock()
	p, own := e.runPool, e.ownPool
	e.runPool, e.ownPool = nil, false
	e.poolMu.Unlock()
	if own {
		p.Release()
	}
	// the store outlives the run, its sweeper does not
	if c, ok := e.config.Cache.(interface{ StopGC() }); ok {
		c.StopGC()
	}
	if err := errors.Join(errs...); err != nil {
		e.logger().Printf("engine %s stop: %v", e.id, err)
		return err
	}
	return nil
}

// Reload stops a running engine, loads dsl and starts again.
func (e *Engine) Reload(ctx context.Context, dsl []byte) error {
	if e.Started() {
		if err := e.Stop(ctx); err != nil {
			return err
		}
	}
	if err := e.Load(dsl); err != nil {
		return err
	}
	return e.Start(ctx)
}

// Started reports whether the engine is running.
func (e *Engine) Started() bool {
	e.RLock()
	defer e.RUnlock()
	return e.started
}

// Flows returns the built flows in document order.
func (e *Engine) Flows() []types.Flow {
	e.RLock()
	defer e.RUnlock()
	out := make([]types.Flow, len(e.flows))
	for i, f := range e.flows {
		out[i] = f
	}
	return out
}

// GetFlow returns a built flow by id.
func (e *Engine) GetFlow(id string) (types.Flow, bool) {
	e.RLock()
	defer e.RUnlock()
	f, ok := e.flowId[id]
	if !ok {
		return nil, false
	}
	return f, true
}

// GetStandaloneNode returns a built standalone node by id. Lookups do not lock:
// nodes call them from Create while the engine is building, and the graph does
// not change while it runs.
func (e *Engine) GetStandaloneNode(id string) (types.StandaloneNode, bool) {
	node, ok := e.standaloneId[id]
	return node, ok
}

// FindFlowNode searches every flow for a node id.
func (e *Engine) FindFlowNode(id string) (types.FlowNode, bool) {
	for _, f := range e.flows {
		if node, ok := f.GetNode(id); ok {
			return node, true
		}
	}
	return nil, false
}

// Cache returns the context store. Context survives Stop and Reload.
func (e *Engine) Cache() types.Cache {
	return e.config.Cache
}

// Capabilities returns the capabilities exposed by standalone nodes.
func (e *Engine) Capabilities() *types.Capabilities {
	return e.capabilities
}

func (e *Engine) pool() types.Pool {
	e.poolMu.RLock()
	defer e.poolMu.RUnlock()
	if e.runPool != nil {
		return e.runPool
	}
	return stoppedPool{}
}

// newPool creates the engine's own worker pool, logging panics of detached
// deliveries.
func (e *Engine) newPool() types.Pool {
	wp := &pool.WorkerPool{
		MaxWorkersCount: math.MaxInt32,
		PanicHandler: func(recovered interface{}, stack string) {
			e.logger().Printf("engine %s: delivery panicked: %v\n%s", e.id, recovered, stack)
		},
	}
	wp.Start()
	return wp
}

func (e *Engine) logger() types.Logger {
	return types.NewLogger(e.config.Logger)
}

// stoppedPool rejects tasks submitted while the engine is not running.
type stoppedPool struct{}

func (stoppedPool) Submit(func()) error {
	return types.ErrEngineNotStarted
}

func (stoppedPool) Release() {}
