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

// Package json wraps encoding/json with the settings used for messages:
// no HTML escaping and no trailing newline.
package json

import (
	"bytes"
	"encoding/json"
)

// Marshal encodes v without escaping HTML characters, so payloads such as
// "<b>" or "a&b" reach brokers and logs unchanged.
func Marshal(v interface{}) ([]byte, error) {
	var byteBuf bytes.Buffer
	encoder := json.NewEncoder(&byteBuf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(byteBuf.Bytes(), []byte("\n")), nil
}

// Unmarshal decodes b into v.
func Unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}

// Format indents a JSON document with two spaces.
func Format(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
