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
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/str"
)

// globalPrefix is the placeholder namespace of Config.Properties: ${global.key}.
const globalPrefix = "global."

// layout is a configuration split into flows, flow members and global records.
type layout struct {
	flows   []types.Record
	members map[string][]types.Record
	globals []types.Record
}

// split partitions records and validates ids. Records belonging to subflow
// definitions and group or comment records are not built.
func split(records []types.Record) (*layout, error) {
	if len(records) == 0 {
		return nil, types.ErrNoNodes
	}
	l := &layout{members: make(map[string][]types.Record)}
	seen := make(map[string]bool, len(records))
	flowIds := make(map[string]bool)
	subflowIds := make(map[string]bool)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.Id()] {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicateId, r.Id())
		}
		seen[r.Id()] = true
		switch {
		case r.IsFlow():
			flowIds[r.Id()] = true
			l.flows = append(l.flows, r)
		case r.Type() == types.RecordTypeSubflow:
			subflowIds[r.Id()] = true
		}
	}
	for _, r := range records {
		if r.IsFlow() || r.Type() == types.RecordTypeComment || r.Type() == types.RecordTypeGroup {
			continue
		}
		if r.IsGlobal() {
			l.globals = append(l.globals, r)
			continue
		}
		z := r.Z()
		if z == "" || subflowIds[z] {
			continue
		}
		if !flowIds[z] {
			return nil, fmt.Errorf("%w: node %s belongs to unknown flow %s", types.ErrMalformedRecord, r.Id(), z)
		}
		l.members[z] = append(l.members[z], r)
	}
	return l, nil
}

// idHeap is a min-heap of node ids, giving the ascending id tie-break.
type idHeap []string

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// constructionOrder sorts the nodes of one flow so that every wire destination
// comes before the node wiring to it. Among ready nodes the smallest id goes
// first. Wires to ids outside the flow do not constrain the order; they fail
// later, during port resolution. Nodes left unordered form or feed a cycle and
// are reported with ErrCycleDetected.
func constructionOrder(wires map[string][][]string) ([]string, error) {
	pending := make(map[string]int, len(wires))
	parents := make(map[string][]string, len(wires))
	for id, ports := range wires {
		dests := make(map[string]bool)
		for _, port := range ports {
			for _, dest := range port {
				if _, ok := wires[dest]; ok && !dests[dest] {
					dests[dest] = true
					parents[dest] = append(parents[dest], id)
				}
			}
		}
		pending[id] = len(dests)
	}

	ready := &idHeap{}
	for id, n := range pending {
		if n == 0 {
			*ready = append(*ready, id)
		}
	}
	heap.Init(ready)

	order := make([]string, 0, len(wires))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, parent := range parents[id] {
			pending[parent]--
			if pending[parent] == 0 {
				heap.Push(ready, parent)
			}
		}
	}

	if len(order) < len(wires) {
		var unordered []string
		for id, n := range pending {
			if n > 0 {
				unordered = append(unordered, id)
			}
		}
		sort.Strings(unordered)
		return order, fmt.Errorf("%w: nodes %s", types.ErrCycleDetected, strings.Join(unordered, ","))
	}
	return order, nil
}

// buildFlow creates a flow and all of its nodes, destinations first.
func buildFlow(e *Engine, flowRecord types.Record, members []types.Record) (*Flow, error) {
	f := newFlow(e, flowRecord)
	byId := make(map[string]types.Record, len(members))
	wires := make(map[string][][]string, len(members))
	for _, r := range members {
		w, err := r.Wires()
		if err != nil {
			return nil, err
		}
		byId[r.Id()] = r
		wires[r.Id()] = w
	}

	order, err := constructionOrder(wires)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", f.Id(), err)
	}

	for _, id := range order {
		record := substitute(byId[id], e.config.Properties)
		outputs := make([]types.OutputPort, len(wires[id]))
		for i, port := range wires[id] {
			handles := make([]types.NodeHandle, 0, len(port))
			for _, dest := range port {
				handle, ok := f.handle(dest)
				if !ok {
					return nil, fmt.Errorf("%w: flow %s node %s wires to %s", types.ErrDestinationNotFound, f.Id(), id, dest)
				}
				handles = append(handles, handle)
			}
			outputs[i] = types.NewOutputPort(handles...)
		}
		provider, err := e.config.Registry.GetFlowNodeProvider(record.Type())
		if err != nil {
			return nil, fmt.Errorf("flow %s node %s: %w", f.Id(), id, err)
		}
		node, err := provider.Create(id, record, outputs, f)
		if err != nil {
			return nil, fmt.Errorf("flow %s node %s (%s): %w", f.Id(), id, record.Type(), err)
		}
		f.add(node)
	}
	return f, nil
}

// substitute returns a copy of record with ${global.key} placeholders in string
// values replaced from properties.
func substitute(record types.Record, properties map[string]string) types.Record {
	if len(properties) == 0 {
		return record
	}
	dict := make(map[string]string, len(properties))
	for k, v := range properties {
		dict[globalPrefix+k] = v
	}
	return types.Record(substituteValue(map[string]interface{}(record), dict).(map[string]interface{}))
}

func substituteValue(v interface{}, dict map[string]string) interface{} {
	switch item := v.(type) {
	case string:
		return str.SprintfDict(item, dict)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(item))
		for k, child := range item {
			out[k] = substituteValue(child, dict)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(item))
		for i, child := range item {
			out[i] = substituteValue(child, dict)
		}
		return out
	default:
		return v
	}
}
