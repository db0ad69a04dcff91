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

// Package el renders text templates whose placeholders are expr expressions.
//
// A placeholder is written {{ expression }} or {{{ expression }}}; both forms
// insert the value unescaped. Variables not present in the data render as the
// empty string:
//
//	t, err := el.Compile("Temperature of {{payload.room}} is {{payload.value * 1.8 + 32}}F")
//	out, err := t.Execute(map[string]any{"payload": ...})
package el

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edgelinkgo/edgelink/utils/str"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrTemplate is returned for malformed templates.
var ErrTemplate = errors.New("template error")

type part struct {
	text    string
	program *vm.Program
}

// Template is a compiled template. It is safe for concurrent use.
type Template struct {
	Tmpl  string
	parts []part
}

// Compile parses tmpl and compiles every placeholder.
func Compile(tmpl string) (*Template, error) {
	t := &Template{Tmpl: tmpl}
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			t.appendText(rest)
			return t, nil
		}
		t.appendText(rest[:start])
		open, closing := "{{", "}}"
		if strings.HasPrefix(rest[start:], "{{{") {
			open, closing = "{{{", "}}}"
		}
		body := rest[start+len(open):]
		end := strings.Index(body, closing)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated %s at offset %d", ErrTemplate, open, len(tmpl)-len(rest)+start)
		}
		code := strings.TrimSpace(body[:end])
		if code == "" {
			return nil, fmt.Errorf("%w: empty placeholder at offset %d", ErrTemplate, len(tmpl)-len(rest)+start)
		}
		program, err := expr.Compile(code, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplate, code, err)
		}
		t.parts = append(t.parts, part{program: program})
		rest = body[end+len(closing):]
	}
}

func (t *Template) appendText(text string) {
	if text != "" {
		t.parts = append(t.parts, part{text: text})
	}
}

// HasVar reports whether the template contains a placeholder.
func (t *Template) HasVar() bool {
	for _, p := range t.parts {
		if p.program != nil {
			return true
		}
	}
	return false
}

// Execute renders the template against data.
func (t *Template) Execute(data map[string]any) (string, error) {
	var sb strings.Builder
	var machine vm.VM
	for _, p := range t.parts {
		if p.program == nil {
			sb.WriteString(p.text)
			continue
		}
		val, err := machine.Run(p.program, data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrTemplate, err)
		}
		if val != nil {
			sb.WriteString(str.ToString(val))
		}
	}
	return sb.String(), nil
}
