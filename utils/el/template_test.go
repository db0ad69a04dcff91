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

package el

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplate(t *testing.T) {
	data := map[string]any{
		"payload": map[string]any{"room": "kitchen", "value": 20, "tags": []any{"a", "b"}},
		"topic":   "sensors",
	}
	tests := []struct {
		name     string
		tmpl     string
		expected string
	}{
		{name: "plain", tmpl: "no placeholders", expected: "no placeholders"},
		{name: "simple", tmpl: "{{topic}}", expected: "sensors"},
		{name: "nested", tmpl: "room={{ payload.room }}!", expected: "room=kitchen!"},
		{name: "arithmetic", tmpl: "{{payload.value * 2}}", expected: "40"},
		{name: "triple", tmpl: "{{{payload.room}}}/{{topic}}", expected: "kitchen/sensors"},
		{name: "map", tmpl: "{{payload.tags}}", expected: `["a","b"]`},
		{name: "undefined", tmpl: "[{{missing}}]", expected: "[]"},
		{name: "empty", tmpl: "", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Compile(tt.tmpl)
			assert.Nil(t, err)
			out, err := tmpl.Execute(data)
			assert.Nil(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func mustCompile(t *testing.T, tmpl string) *Template {
	t.Helper()
	out, err := Compile(tmpl)
	if err != nil {
		t.Fatalf("compile %q: %v", tmpl, err)
	}
	return out
}

func TestTemplateHasVar(t *testing.T) {
	assert.False(t, mustCompile(t, "text only").HasVar())
	assert.True(t, mustCompile(t, "a {{b}}").HasVar())
}

func TestTemplateErrors(t *testing.T) {
	for _, tmpl := range []string{"{{payload", "{{ }}", "{{{a}}", "{{1 +}}"} {
		_, err := Compile(tmpl)
		assert.True(t, errors.Is(err, ErrTemplate), tmpl)
	}
	tmpl := mustCompile(t, "{{payload.value.field}}")
	_, err := tmpl.Execute(map[string]any{"payload": map[string]any{"value": 1}})
	assert.True(t, errors.Is(err, ErrTemplate))
}
