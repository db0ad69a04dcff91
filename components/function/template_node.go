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

package function

//Node configuration example:
//{
//  "id": "t1",
//  "type": "template",
//  "z": "flow1",
//  "field": "payload",
//  "fieldType": "msg",
//  "syntax": "mustache",
//  "template": "{\"room\":\"{{payload.room}}\",\"f\":{{payload.value * 1.8 + 32}}}",
//  "output": "json",
//  "wires": [["n2"]]
//}
import (
	"context"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/el"
	"github.com/edgelinkgo/edgelink/utils/json"
	"github.com/edgelinkgo/edgelink/utils/propex"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("template", types.PIPE, newTemplateNode))
}

// TemplateNodeConfiguration node configuration
type TemplateNodeConfiguration struct {
	// Field receives the rendered text, payload by default.
	Field string
	// FieldType must be msg.
	FieldType string
	// Syntax is mustache to render placeholders or plain to copy Template as is.
	Syntax   string
	Template string
	// Output is str, or json to parse the rendered text.
	Output string
}

// TemplateNode renders a text template against the message and writes the result
// into one of its fields. Placeholders see the message fields at top level, msg
// for the whole message and global for the engine properties.
type TemplateNode struct {
	base.FlowNode
	Config TemplateNodeConfiguration
	field  propex.Path
	tmpl   *el.Template
}

func newTemplateNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &TemplateNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	c := &node.Config
	if c.Field == "" {
		c.Field = types.PayloadKey
	}
	if c.FieldType == "" {
		c.FieldType = "msg"
	}
	if c.FieldType != "msg" {
		return nil, fmt.Errorf("%w: template %s: unsupported fieldType %q", types.ErrBadConfig, id, c.FieldType)
	}
	if c.Syntax == "" {
		c.Syntax = "mustache"
	}
	if c.Output == "" {
		c.Output = "str"
	}
	if c.Output != "str" && c.Output != "json" {
		return nil, fmt.Errorf("%w: template %s: unsupported output %q", types.ErrBadConfig, id, c.Output)
	}
	var err error
	if node.field, err = propex.Parse(c.Field); err != nil {
		return nil, fmt.Errorf("%w: template %s: %v", types.ErrBadConfig, id, err)
	}
	switch c.Syntax {
	case "mustache":
		if node.tmpl, err = el.Compile(c.Template); err != nil {
			return nil, fmt.Errorf("%w: template %s: %v", types.ErrBadConfig, id, err)
		}
		// text without placeholders is copied as is
		if !node.tmpl.HasVar() {
			node.tmpl = nil
		}
	case "plain":
	default:
		return nil, fmt.Errorf("%w: template %s: unsupported syntax %q", types.ErrBadConfig, id, c.Syntax)
	}
	return node, nil
}

func (x *TemplateNode) render(msg *types.Msg) (string, error) {
	if x.tmpl == nil {
		return x.Config.Template, nil
	}
	data := exprEnv(msg, x.Env())
	for k, v := range msg.Data() {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}
	return x.tmpl.Execute(data)
}

func (x *TemplateNode) Receive(ctx context.Context, msg *types.Msg) error {
	text, err := x.render(msg)
	if err != nil {
		return fmt.Errorf("template %s: %w", x.Id(), err)
	}
	var value interface{} = text
	if x.Config.Output == "json" {
		if err = json.Unmarshal([]byte(text), &value); err != nil {
			return fmt.Errorf("%w: template %s rendered invalid JSON: %v", types.ErrInvalidOperation, x.Id(), err)
		}
	}
	if err = msg.SetPath(x.field, value); err != nil {
		return fmt.Errorf("template %s: %w", x.Id(), err)
	}
	return x.SendToOnlyPort(ctx, msg)
}
