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

package common

import (
	"context"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
)

func init() {
	Registry.AddFlowNode(
		types.NewFlowNodeProvider("junction", types.JUNCTION, newJunctionNode),
		types.NewFlowNodeProvider("link in", types.JUNCTION, newJunctionNode),
	)
}

// JunctionNode passes messages through unchanged. It backs the junction and
// link in types: a link in node is a junction that link out nodes deliver to.
type JunctionNode struct {
	base.FlowNode
}

func newJunctionNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	if len(outputs) > 1 {
		return nil, fmt.Errorf("%w: %s %s has %d outputs, at most 1 allowed", types.ErrBadConfig, desc.Type(), id, len(outputs))
	}
	return &JunctionNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}, nil
}

func (x *JunctionNode) Receive(ctx context.Context, msg *types.Msg) error {
	return x.SendToOnlyPort(ctx, msg)
}
