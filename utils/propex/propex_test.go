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

package propex

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func values(path Path) []interface{} {
	var out []interface{}
	for _, seg := range path {
		out = append(out, seg.Value())
	}
	return out
}

func mustParse(t *testing.T, expr string) Path {
	t.Helper()
	path, err := Parse(expr)
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	return path
}

func TestParse(t *testing.T) {
	t.Run("mixedAccessors", func(t *testing.T) {
		path, err := Parse("test1[100].hello['aaa'][42].world[99]['bbb'].name_of[100]")
		assert.Nil(t, err)
		assert.Equal(t, 10, len(path))
		assert.Equal(t, []interface{}{"test1", 100, "hello", "aaa", 42, "world", 99, "bbb", "name_of", 100}, values(path))
		assert.True(t, path[1].IsIndex)
		assert.False(t, path[3].IsIndex)
	})

	t.Run("simple", func(t *testing.T) {
		path, err := Parse("payload.hostInfo.memoryUsage")
		assert.Nil(t, err)
		assert.Equal(t, []interface{}{"payload", "hostInfo", "memoryUsage"}, values(path))
	})

	t.Run("whitespace", func(t *testing.T) {
		path, err := Parse("  a . b [ 0 ] [ \"k y\" ] ")
		assert.Nil(t, err)
		assert.Equal(t, []interface{}{"a", "b", 0, "k y"}, values(path))
	})

	t.Run("quotedKeyNoEscape", func(t *testing.T) {
		path, err := Parse(`a["it's"]['x.y']`)
		assert.Nil(t, err)
		assert.Equal(t, []interface{}{"a", "it's", "x.y"}, values(path))
	})

	t.Run("errors", func(t *testing.T) {
		for _, expr := range []string{"", "   ", "[0].a", "a.", "a..b", "a[", "a[x]", "a['x]", "a[1", "1abc", "a b", "a.[0]"} {
			_, err := Parse(expr)
			assert.True(t, errors.Is(err, ErrParse), expr)
		}
	})

	t.Run("segmentBound", func(t *testing.T) {
		_, err := Parse("a" + strings.Repeat("[0]", MaxSegments-1))
		assert.Nil(t, err)
		_, err = Parse("a" + strings.Repeat("[0]", MaxSegments))
		assert.True(t, errors.Is(err, ErrParse))
		_, err = Parse(strings.Repeat("a.", MaxSegments) + "a")
		assert.True(t, errors.Is(err, ErrParse))
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "a[0].k.b", mustParse(t, "a[0]['k'].b").String())
	})
}

func TestGet(t *testing.T) {
	root := map[string]interface{}{
		"a": []interface{}{map[string]interface{}{"k": "v"}},
		"payload": map[string]interface{}{
			"hostInfo": map[string]interface{}{"memoryUsage": 12},
		},
		"headers": map[string]string{"h": "x"},
		"nums":    []int{1, 2, 3},
	}

	v, err := GetString(root, "a[0]['k']")
	assert.Nil(t, err)
	assert.Equal(t, "v", v)

	v, err = GetString(root, "payload.hostInfo.memoryUsage")
	assert.Nil(t, err)
	assert.Equal(t, 12, v)

	v, err = GetString(root, "headers.h")
	assert.Nil(t, err)
	assert.Equal(t, "x", v)

	v, err = GetString(root, "nums[2]")
	assert.Nil(t, err)
	assert.Equal(t, 3, v)

	_, err = GetString(root, "payload.missing")
	assert.True(t, errors.Is(err, ErrLookup))
	_, err = GetString(root, "a[5]")
	assert.True(t, errors.Is(err, ErrLookup))
	_, err = GetString(root, "payload[0]")
	assert.True(t, errors.Is(err, ErrLookup))

	_, err = Get(root, Path{IndexSegment(0)})
	assert.True(t, errors.Is(err, ErrParse))
}

func TestSet(t *testing.T) {
	t.Run("createIntermediate", func(t *testing.T) {
		root := map[string]interface{}{}
		assert.Nil(t, SetString(root, "payload.hostInfo.memoryUsage", 100))
		v, err := GetString(root, "payload.hostInfo.memoryUsage")
		assert.Nil(t, err)
		assert.Equal(t, 100, v)
	})

	t.Run("overwrite", func(t *testing.T) {
		root := map[string]interface{}{"payload": "old"}
		assert.Nil(t, SetString(root, "payload", "new"))
		assert.Equal(t, "new", root["payload"])
	})

	t.Run("arrays", func(t *testing.T) {
		root := map[string]interface{}{"list": []interface{}{1, 2}}
		assert.Nil(t, SetString(root, "list[1]", 20))
		assert.Nil(t, SetString(root, "list[2]", 30))
		assert.Equal(t, []interface{}{1, 20, 30}, root["list"])

		err := SetString(root, "list[9]", 1)
		assert.True(t, errors.Is(err, ErrLookup))

		assert.Nil(t, SetString(root, "fresh[1].name", "x"))
		assert.Equal(t, []interface{}{nil, map[string]interface{}{"name": "x"}}, root["fresh"])
	})

	t.Run("scalarParent", func(t *testing.T) {
		root := map[string]interface{}{"payload": "text"}
		err := SetString(root, "payload.field", 1)
		assert.True(t, errors.Is(err, ErrLookup))
	})
}

func TestDelete(t *testing.T) {
	root := map[string]interface{}{
		"payload": map[string]interface{}{"a": 1, "b": 2},
		"list":    []interface{}{"x", "y", "z"},
	}
	assert.Nil(t, Delete(root, mustParse(t, "payload.a")))
	assert.Equal(t, map[string]interface{}{"b": 2}, root["payload"])

	assert.Nil(t, Delete(root, mustParse(t, "list[1]")))
	assert.Equal(t, []interface{}{"x", "z"}, root["list"])

	assert.True(t, errors.Is(Delete(root, mustParse(t, "payload.zzz")), ErrLookup))
	assert.True(t, errors.Is(Delete(root, mustParse(t, "list[7]")), ErrLookup))
}
