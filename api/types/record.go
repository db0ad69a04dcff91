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

	"github.com/edgelinkgo/edgelink/utils/maps"
)

// Record types with special meaning to the graph builder.
const (
	RecordTypeTab     = "tab"
	RecordTypeFlow    = "flow"
	RecordTypeComment = "comment"
	RecordTypeGroup   = "group"
	RecordTypeSubflow = "subflow"
)

// Record is one flat element of a flows document, for example:
//
//	{"id":"n1","type":"inject","z":"f1","repeat":"5","wires":[["n2"]]}
type Record map[string]interface{}

// Id returns the record id.
func (r Record) Id() string {
	return r.GetString("id")
}

// Type returns the node type name.
func (r Record) Type() string {
	return r.GetString("type")
}

// Z returns the id of the owning flow, empty for global records.
func (r Record) Z() string {
	return r.GetString("z")
}

// Name returns the optional display name.
func (r Record) Name() string {
	return r.GetString("name")
}

// Label returns the label of a flow record.
func (r Record) Label() string {
	return r.GetString("label")
}

// Disabled reports the "d" flag of nodes or the "disabled" flag of flows.
func (r Record) Disabled() bool {
	return r.getBool("d") || r.getBool("disabled")
}

// IsFlow reports whether the record opens a flow.
func (r Record) IsFlow() bool {
	t := r.Type()
	return t == RecordTypeTab || t == RecordTypeFlow
}

// IsGlobal reports whether the record describes a standalone node: it has no
// owning flow and is not a flow, comment, group or subflow definition.
func (r Record) IsGlobal() bool {
	if r.Z() != "" {
		return false
	}
	switch r.Type() {
	case RecordTypeTab, RecordTypeFlow, RecordTypeComment, RecordTypeGroup, RecordTypeSubflow:
		return false
	default:
		return true
	}
}

// GetString returns a string field, or "" when missing or of another type.
func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r Record) getBool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// Wires returns the destination ids per output port.
func (r Record) Wires() ([][]string, error) {
	switch raw := r["wires"].(type) {
	case nil:
		return nil, nil
	case [][]string:
		return raw, nil
	case []interface{}:
		wires := make([][]string, len(raw))
		for i, port := range raw {
			switch ids := port.(type) {
			case nil:
			case []string:
				wires[i] = ids
			case []interface{}:
				wires[i] = make([]string, 0, len(ids))
				for _, id := range ids {
					s, ok := id.(string)
					if !ok {
						return nil, fmt.Errorf("%w: node %s has a non-string wire %v", ErrMalformedRecord, r.Id(), id)
					}
					wires[i] = append(wires[i], s)
				}
			default:
				return nil, fmt.Errorf("%w: node %s port %d is not a list", ErrMalformedRecord, r.Id(), i)
			}
		}
		return wires, nil
	default:
		return nil, fmt.Errorf("%w: node %s has malformed wires", ErrMalformedRecord, r.Id())
	}
}

// Validate checks the fields every record must carry.
func (r Record) Validate() error {
	if r.Id() == "" {
		return fmt.Errorf("%w: record without id (type=%q)", ErrMalformedRecord, r.Type())
	}
	if r.Type() == "" {
		return fmt.Errorf("%w: record %s without type", ErrMalformedRecord, r.Id())
	}
	return nil
}

// Decode fills the node configuration struct out from the record.
func (r Record) Decode(out interface{}) error {
	if err := maps.Map2Struct(map[string]interface{}(r), out); err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrMalformedRecord, r.Id(), err)
	}
	return nil
}
