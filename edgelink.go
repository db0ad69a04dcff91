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

// Package edgelink is a lightweight flow engine running Node-RED style flows
// documents.
//
// A flows document is a flat JSON or YAML list of node records. Records of type
// "tab" open a flow and records naming a flow in "z" belong to it:
//
//	[
//	  {"id":"f1","type":"tab","label":"Flow 1"},
//	  {"id":"n1","type":"inject","z":"f1","repeat":"5","payload":"hello","payloadType":"str","wires":[["n2"]]},
//	  {"id":"n2","type":"debug","z":"f1"}
//	]
//
// Create and start an engine:
//
//	e, err := edgelink.New("demo", dsl)
//	err = e.Start(ctx)
//
// Load every flows document of a folder, one engine per file:
//
//	err := edgelink.Load("./flows")
//	e, ok := edgelink.Get("flows1")
//
// The engine package holds the graph builder and the router, components hold
// the built-in node types.
package edgelink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/engine"
)

// Extensions lists the file extensions Load picks up.
var Extensions = []string{".json", ".yaml", ".yml"}

var DefaultEdgeLink = &EdgeLink{}

// EdgeLink is a pool of engines keyed by id.
type EdgeLink struct {
	engines sync.Map
}

// Load creates one engine per flows document found directly in folderPath. The
// engine id is the file name without extension. Engines are loaded, not started.
func (g *EdgeLink) Load(folderPath string, opts ...types.Option) error {
	if folderPath == "" {
		folderPath = "."
	}
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !isFlowsFile(ext) {
			continue
		}
		dsl, err := os.ReadFile(filepath.Join(folderPath, entry.Name()))
		if err != nil {
			return err
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		fileOpts := append([]types.Option{types.WithParser(engine.ParserFor(ext))}, opts...)
		if _, err = g.New(id, dsl, fileOpts...); err != nil {
			return fmt.Errorf("load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func isFlowsFile(ext string) bool {
	for _, item := range Extensions {
		if item == ext {
			return true
		}
	}
	return false
}

// New loads dsl into a new engine stored under id. If an engine with that id
// exists it is returned unchanged.
func (g *EdgeLink) New(id string, dsl []byte, opts ...types.Option) (*engine.Engine, error) {
	if v, ok := g.engines.Load(id); ok {
		return v.(*engine.Engine), nil
	}
	e := engine.New(engine.NewConfig(opts...))
	if err := e.Load(dsl); err != nil {
		return nil, err
	}
	if id == "" {
		id = e.Id()
	}
	actual, _ := g.engines.LoadOrStore(id, e)
	return actual.(*engine.Engine), nil
}

// Get returns the engine stored under id.
func (g *EdgeLink) Get(id string) (*engine.Engine, bool) {
	if v, ok := g.engines.Load(id); ok {
		return v.(*engine.Engine), true
	}
	return nil, false
}

// Ids returns the ids of the pooled engines, sorted.
func (g *EdgeLink) Ids() []string {
	var ids []string
	g.engines.Range(func(key, value any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Del stops the engine stored under id, if running, and removes it.
func (g *EdgeLink) Del(ctx context.Context, id string) error {
	v, ok := g.engines.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return stop(ctx, v.(*engine.Engine))
}

// Stop stops every running engine and empties the pool.
func (g *EdgeLink) Stop(ctx context.Context) error {
	var errs []error
	g.engines.Range(func(key, value any) bool {
		if err := stop(ctx, value.(*engine.Engine)); err != nil {
			errs = append(errs, fmt.Errorf("engine %s: %w", key, err))
		}
		g.engines.Delete(key)
		return true
	})
	return errors.Join(errs...)
}

func stop(ctx context.Context, e *engine.Engine) error {
	if !e.Started() {
		return nil
	}
	return e.Stop(ctx)
}

// Load loads every flows document of folderPath into the default pool.
func Load(folderPath string, opts ...types.Option) error {
	return DefaultEdgeLink.Load(folderPath, opts...)
}

// New creates an engine in the default pool.
func New(id string, dsl []byte, opts ...types.Option) (*engine.Engine, error) {
	return DefaultEdgeLink.New(id, dsl, opts...)
}

// Get returns an engine of the default pool.
func Get(id string) (*engine.Engine, bool) {
	return DefaultEdgeLink.Get(id)
}

// Del stops and removes an engine of the default pool.
func Del(ctx context.Context, id string) error {
	return DefaultEdgeLink.Del(ctx, id)
}

// Stop stops every engine of the default pool.
func Stop(ctx context.Context) error {
	return DefaultEdgeLink.Stop(ctx)
}
