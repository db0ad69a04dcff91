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
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/edgelinkgo/edgelink/utils/json"
	"github.com/edgelinkgo/edgelink/utils/maps"
	"github.com/edgelinkgo/edgelink/utils/propex"
)

const (
	// MsgIdKey is the wire name of the message id.
	MsgIdKey = "_msgid"
	// PayloadKey is the conventional field carrying the message body.
	PayloadKey = "payload"
	// TopicKey is the conventional field carrying the message topic.
	TopicKey = "topic"
)

// MaxMsgId is the ceiling of generated message ids. It is the largest integer a
// JSON number keeps exact, so ids survive scripting and transport unchanged.
const MaxMsgId uint64 = 1<<53 - 1

// IdGenerator hands out message ids.
type IdGenerator interface {
	NextId() uint64
}

// AtomicIdGenerator is a lock-free monotonic id generator that wraps back to zero
// after its ceiling.
type AtomicIdGenerator struct {
	last    atomic.Uint64
	ceiling uint64
}

// NewIdGenerator creates a generator wrapping after ceiling. A zero ceiling means MaxMsgId.
func NewIdGenerator(ceiling uint64) *AtomicIdGenerator {
	if ceiling == 0 {
		ceiling = MaxMsgId
	}
	return &AtomicIdGenerator{ceiling: ceiling}
}

// NextId returns the next id.
func (g *AtomicIdGenerator) NextId() uint64 {
	ceiling := g.ceiling
	if ceiling == 0 {
		ceiling = MaxMsgId
	}
	for {
		cur := g.last.Load()
		next := cur + 1
		if cur >= ceiling {
			next = 0
		}
		if g.last.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Msg is the unit of data moving through a flow: an immutable id plus a mutable
// JSON-compatible value tree. A message is owned by the node currently holding
// it; routing hands independent clones to sibling branches.
type Msg struct {
	id   uint64
	data map[string]interface{}
}

// NewMsg creates an empty message with an id drawn from gen.
func NewMsg(gen IdGenerator) *Msg {
	return &Msg{id: gen.NextId(), data: make(map[string]interface{})}
}

// NewMsgWithData creates a message with the given id and fields. data is used
// directly, not copied.
func NewMsgWithData(id uint64, data map[string]interface{}) *Msg {
	if data == nil {
		data = make(map[string]interface{})
	}
	delete(data, MsgIdKey)
	return &Msg{id: id, data: data}
}

// Id returns the message id.
func (m *Msg) Id() uint64 {
	return m.id
}

// Data returns the root object of the value tree. Mutations are visible to the
// message.
func (m *Msg) Data() map[string]interface{} {
	return m.data
}

// Payload returns the payload field, or nil when absent.
func (m *Msg) Payload() interface{} {
	return m.data[PayloadKey]
}

// SetPayload replaces the payload field.
func (m *Msg) SetPayload(v interface{}) {
	m.data[PayloadKey] = v
}

// Topic returns the topic field as string.
func (m *Msg) Topic() string {
	if v, ok := m.data[TopicKey].(string); ok {
		return v
	}
	return ""
}

// GetAt resolves a property expression such as "payload.hostInfo.memoryUsage".
func (m *Msg) GetAt(expr string) (interface{}, error) {
	path, err := propex.Parse(expr)
	if err != nil {
		return nil, err
	}
	return m.GetPath(path)
}

// GetPath resolves a parsed property expression.
func (m *Msg) GetPath(path propex.Path) (interface{}, error) {
	if len(path) == 1 && !path[0].IsIndex && path[0].Key == MsgIdKey {
		return m.id, nil
	}
	return propex.Get(m.data, path)
}

// SetAt writes v at the location named by a property expression.
func (m *Msg) SetAt(expr string, v interface{}) error {
	path, err := propex.Parse(expr)
	if err != nil {
		return err
	}
	return m.SetPath(path, v)
}

// SetPath writes v at a parsed location.
func (m *Msg) SetPath(path propex.Path, v interface{}) error {
	if len(path) > 0 && !path[0].IsIndex && path[0].Key == MsgIdKey {
		return fmt.Errorf("%w: %s is immutable", ErrInvalidOperation, MsgIdKey)
	}
	return propex.Set(m.data, path, v)
}

// DeleteAt removes the location named by a property expression.
func (m *Msg) DeleteAt(expr string) error {
	path, err := propex.Parse(expr)
	if err != nil {
		return err
	}
	if !path[0].IsIndex && path[0].Key == MsgIdKey {
		return fmt.Errorf("%w: %s is immutable", ErrInvalidOperation, MsgIdKey)
	}
	return propex.Delete(m.data, path)
}

// Clone returns an independent deep copy. A nil gen keeps the id, which is what
// routing does on fan-out; otherwise a fresh id is drawn.
func (m *Msg) Clone(gen IdGenerator) *Msg {
	id := m.id
	if gen != nil {
		id = gen.NextId()
	}
	return &Msg{id: id, data: maps.CopyMap(m.data)}
}

// ToMap returns a deep copy of the message as a plain object including _msgid.
func (m *Msg) ToMap() map[string]interface{} {
	out := maps.CopyMap(m.data)
	out[MsgIdKey] = m.id
	return out
}

// MarshalJSON encodes the message as a flat object with a numeric _msgid.
func (m *Msg) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.data)+1)
	for k, v := range m.data {
		out[k] = v
	}
	out[MsgIdKey] = m.id
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat object. A missing _msgid leaves id zero.
func (m *Msg) UnmarshalJSON(b []byte) error {
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	if data == nil {
		return errors.New("message must be a JSON object")
	}
	var id uint64
	if raw, ok := data[MsgIdKey]; ok {
		f, ok := raw.(float64)
		if !ok || f < 0 {
			return fmt.Errorf("invalid %s %v", MsgIdKey, raw)
		}
		id = uint64(f)
	}
	delete(data, MsgIdKey)
	m.id = id
	m.data = data
	return nil
}

func (m *Msg) String() string {
	b, err := m.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("{\"%s\":%d}", MsgIdKey, m.id)
	}
	return string(b)
}
