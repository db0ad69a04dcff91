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

package cast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	v, err := ToFloat64E("1.5")
	assert.Nil(t, err)
	assert.Equal(t, 1.5, v)
	v, err = ToFloat64E(7)
	assert.Nil(t, err)
	assert.Equal(t, float64(7), v)
	_, err = ToFloat64E("abc")
	assert.NotNil(t, err)
}

func TestToBool(t *testing.T) {
	for _, c := range []struct {
		in   interface{}
		want bool
	}{{"true", true}, {1, true}, {0.0, false}, {nil, false}} {
		got, err := ToBoolE(c.in)
		assert.Nil(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
	_, err := ToBoolE(map[string]interface{}{})
	assert.NotNil(t, err)
}

func TestToDuration(t *testing.T) {
	d, err := ToDurationE("5", time.Second)
	assert.Nil(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ToDurationE(0.5, time.Second)
	assert.Nil(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	d, err = ToDurationE("1m30s", time.Second)
	assert.Nil(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ToDurationE("soon", time.Second)
	assert.NotNil(t, err)
}
