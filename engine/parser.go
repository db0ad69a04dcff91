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

package engine

import (
	"bytes"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/json"
	"gopkg.in/yaml.v3"
)

// document is the wrapped form of a flows document: {"rev":"...","flows":[...]}.
type document struct {
	Rev   string         `json:"rev,omitempty" yaml:"rev,omitempty"`
	Flows []types.Record `json:"flows" yaml:"flows"`
}

// JsonParser reads flows documents in JSON, either a bare array of records or
// an object with a "flows" array.
type JsonParser struct {
}

func (p *JsonParser) Decode(dsl []byte) ([]types.Record, error) {
	trimmed := bytes.TrimSpace(dsl)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBadConfig, err)
		}
		return doc.Flows, nil
	}
	var records []types.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadConfig, err)
	}
	return records, nil
}

func (p *JsonParser) Encode(records []types.Record) ([]byte, error) {
	if v, err := json.Marshal(records); err != nil {
		return nil, err
	} else {
		return json.Format(v)
	}
}

// YamlParser reads flows documents in YAML with the same layout as JsonParser.
type YamlParser struct {
}

func (p *YamlParser) Decode(dsl []byte) ([]types.Record, error) {
	var raw interface{}
	if err := yaml.Unmarshal(dsl, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadConfig, err)
	}
	var items []interface{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		items = v
	case map[string]interface{}:
		flows, ok := v["flows"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: document has no flows list", types.ErrBadConfig)
		}
		items = flows
	default:
		return nil, fmt.Errorf("%w: unexpected document %T", types.ErrBadConfig, raw)
	}
	records := make([]types.Record, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not a record", types.ErrMalformedRecord, i)
		}
		records = append(records, types.Record(m))
	}
	return records, nil
}

func (p *YamlParser) Encode(records []types.Record) ([]byte, error) {
	plain := make([]map[string]interface{}, len(records))
	for i, r := range records {
		plain[i] = r
	}
	return yaml.Marshal(plain)
}

// ParserFor returns the parser matching a file extension, JSON by default.
func ParserFor(ext string) types.Parser {
	switch ext {
	case ".yaml", ".yml":
		return &YamlParser{}
	default:
		return &JsonParser{}
	}
}
