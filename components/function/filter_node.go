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
//  "id": "f1",
//  "type": "filter",
//  "z": "flow1",
//  "expr": "msg.payload.temperature > 50",
//  "wires": [["n2"]]
//}
import (
	"context"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/expr-lang/expr/vm"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("filter", types.FILTER, newFilterNode))
}

// FilterNodeConfiguration node configuration
type FilterNodeConfiguration struct {
	// Expr is a boolean expr-lang expression, for example `payload > 50`.
	Expr string
}

// FilterNode forwards the messages for which Expr is true and drops the others.
type FilterNode struct {
	base.FlowNode
	Config  FilterNodeConfiguration
	program *vm.Program
}

func newFilterNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &FilterNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if node.Config.Expr == "" {
		return nil, fmt.Errorf("%w: filter %s has no expr", types.ErrBadConfig, id)
	}
	program, err := compileCondition(node.Config.Expr)
	if err != nil {
		return nil, err
	}
	node.program = program
	return node, nil
}

func (x *FilterNode) Receive(ctx context.Context, msg *types.Msg) error {
	pass, err := evalCondition(x.program, msg, x.Env())
	if err != nil {
		return fmt.Errorf("filter %s: %w", x.Id(), err)
	}
	if !pass {
		return nil
	}
	return x.SendToOnlyPort(ctx, msg)
}
