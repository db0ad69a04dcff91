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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdGenerator(t *testing.T) {
	gen := NewIdGenerator(0)
	assert.Equal(t, uint64(1), gen.NextId())
	assert.Equal(t, uint64(2), gen.NextId())

	wrapping := NewIdGenerator(3)
	var ids []uint64
	for i := 0; i < 6; i++ {
		ids = append(ids, wrapping.NextId())
	}
	assert.Equal(t, []uint64{1, 2, 3, 0, 1, 2}, ids)

	var zero AtomicIdGenerator
	assert.Equal(t, uint64(1), zero.NextId())
}

func TestIdGeneratorConcurrent(t *testing.T) {
	gen := NewIdGenerator(0)
	var seen sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_, dup := seen.LoadOrStore(gen.NextId(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
}

func TestMsgPath(t *testing.T) {
	msg := NewMsg(NewIdGenerator(0))
	assert.Nil(t, msg.SetAt("payload.hostInfo.memoryUsage", 100))
	v, err := msg.GetAt("payload.hostInfo.memoryUsage")
	assert.Nil(t, err)
	assert.Equal(t, 100, v)

	id, err := msg.GetAt("_msgid")
	assert.Nil(t, err)
	assert.Equal(t, msg.Id(), id)
	assert.True(t, errors.Is(msg.SetAt("_msgid", 5), ErrInvalidOperation))
	assert.True(t, errors.Is(msg.DeleteAt("_msgid"), ErrInvalidOperation))

	assert.Nil(t, msg.DeleteAt("payload.hostInfo"))
	_, err = msg.GetAt("payload.hostInfo")
	assert.NotNil(t, err)

	_, err = msg.GetAt("payload..x")
	assert.NotNil(t, err)

	msg.SetPayload("hello")
	assert.Equal(t, "hello", msg.Payload())
	msg.Data()[TopicKey] = "t/1"
	assert.Equal(t, "t/1", msg.Topic())
}

func TestMsgClone(t *testing.T) {
	gen := NewIdGenerator(0)
	msg := NewMsg(gen)
	msg.SetPayload(map[string]interface{}{"list": []interface{}{1, 2}})

	routed := msg.Clone(nil)
	assert.Equal(t, msg.Id(), routed.Id())
	assert.Equal(t, msg.Data(), routed.Data())

	assert.Nil(t, routed.SetAt("payload.list[0]", 99))
	v, _ := msg.GetAt("payload.list[0]")
	assert.Equal(t, 1, v)

	fresh := msg.Clone(gen)
	assert.NotEqual(t, msg.Id(), fresh.Id())
}

func TestMsgJSON(t *testing.T) {
	msg := NewMsgWithData(42, map[string]interface{}{"payload": "<v>", "topic": "a"})
	b, err := msg.MarshalJSON()
	assert.Nil(t, err)
	assert.JSONEq(t, `{"_msgid":42,"payload":"<v>","topic":"a"}`, string(b))
	assert.JSONEq(t, `{"_msgid":42,"payload":"<v>","topic":"a"}`, msg.String())

	var decoded Msg
	assert.Nil(t, decoded.UnmarshalJSON(b))
	assert.Equal(t, uint64(42), decoded.Id())
	assert.Equal(t, "<v>", decoded.Payload())
	_, hasId := decoded.Data()[MsgIdKey]
	assert.False(t, hasId)

	assert.NotNil(t, decoded.UnmarshalJSON([]byte(`{"_msgid":"x"}`)))
	assert.NotNil(t, decoded.UnmarshalJSON([]byte(`null`)))
	assert.NotNil(t, decoded.UnmarshalJSON([]byte(`[1]`)))

	m := msg.ToMap()
	assert.Equal(t, uint64(42), m[MsgIdKey])
}
