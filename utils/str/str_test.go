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

package str

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSprintfDict(t *testing.T) {
	dict := map[string]string{"global.host": "10.0.0.1", "global.port": "1883"}
	assert.Equal(t, "tcp://10.0.0.1:1883", SprintfDict("tcp://${global.host}:${ global.port }", dict))
	assert.Equal(t, "keep ${global.missing}", SprintfDict("keep ${global.missing}", dict))
	assert.Equal(t, "plain", SprintfDict("plain", dict))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "aa", ToString("aa"))
	assert.Equal(t, "1.5", ToString(1.5))
	assert.Equal(t, "12", ToString(12))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "boom", ToString(errors.New("boom")))
	assert.Equal(t, `{"a":1}`, ToString(map[string]interface{}{"a": 1}))
	assert.Equal(t, `[1,"x"]`, ToString([]interface{}{1, "x"}))
}

func TestConvertDollarPlaceholder(t *testing.T) {
	sql := "insert into t(a,b) values(?,?)"
	assert.Equal(t, "insert into t(a,b) values($1,$2)", ConvertDollarPlaceholder(sql, "postgres"))
	assert.Equal(t, sql, ConvertDollarPlaceholder(sql, "mysql"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains(nil, "b"))
}
