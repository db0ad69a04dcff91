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

package base_test

import (
	"errors"
	"testing"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/test"
	"github.com/stretchr/testify/assert"
)

func TestTypedValue(t *testing.T) {
	env := test.NewEnv(types.NewConfig(types.WithProperties(map[string]string{"site": "plant7"})))
	msg := test.Msg(map[string]interface{}{"temp": 21.5})

	cases := []struct {
		v        interface{}
		vt       string
		expected interface{}
	}{
		{"abc", base.TypeStr, "abc"},
		{12, base.TypeStr, "12"},
		{"1.5", base.TypeNum, 1.5},
		{"true", base.TypeBool, true},
		{`{"a":[1]}`, base.TypeJson, map[string]interface{}{"a": []interface{}{float64(1)}}},
		{"payload.temp", base.TypeMsg, 21.5},
		{"site", base.TypeGlobal, "plant7"},
		{"raw", "", "raw"},
	}
	for _, c := range cases {
		v, err := base.TypedValue(c.v, c.vt, msg, env)
		assert.Nil(t, err, c.vt)
		assert.Equal(t, c.expected, v, c.vt)
	}

	v, err := base.TypedValue("", base.TypeDate, msg, env)
	assert.Nil(t, err)
	assert.InDelta(t, time.Now().UnixMilli(), v.(int64), 5000)

	t.Setenv("EDGELINK_TYPED_TEST", "on")
	v, err = base.TypedValue("EDGELINK_TYPED_TEST", base.TypeEnv, msg, env)
	assert.Nil(t, err)
	assert.Equal(t, "on", v)

	_, err = base.TypedValue("{", base.TypeJson, msg, env)
	assert.NotNil(t, err)
	_, err = base.TypedValue("payload.none", base.TypeMsg, msg, env)
	assert.NotNil(t, err)
	// the global context shadows the engine properties
	assert.Nil(t, env.Cache().Set("global:site", "plant9", ""))
	v, err = base.TypedValue("site", base.TypeGlobal, msg, env)
	assert.Nil(t, err)
	assert.Equal(t, "plant9", v)
	assert.Nil(t, env.Cache().Set("global:counter", 3, ""))
	v, err = base.TypedValue("counter", base.TypeGlobal, msg, env)
	assert.Nil(t, err)
	assert.Equal(t, 3, v)
	_, err = base.TypedValue("nothing", base.TypeGlobal, msg, env)
	assert.NotNil(t, err)

	_, err = base.TypedValue("x", "flow", msg, env)
	assert.True(t, errors.Is(err, types.ErrBadConfig))
}
