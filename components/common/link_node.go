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

//Node configuration example:
//{
//  "id": "lo1",
//  "type": "link out",
//  "z": "f1",
//  "mode": "link",
//  "links": ["li1", "li2"],
//  "wires": []
//}
import (
	"context"
	"errors"
	"fmt"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("link out", types.SINK, newLinkOutNode))
}

// LinkOutNodeConfiguration node configuration
type LinkOutNodeConfiguration struct {
	// Links are the ids of the link in nodes to deliver to, in any flow.
	Links []string
}

// LinkOutNode delivers every message to its link in targets through the
// target's own flow, so that flow's routing aspects apply.
type LinkOutNode struct {
	base.FlowNode
	Config LinkOutNodeConfiguration
}

func newLinkOutNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &LinkOutNode{FlowNode: base.NewFlowNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	return node, nil
}

func (x *LinkOutNode) Receive(ctx context.Context, msg *types.Msg) error {
	env := x.Env()
	if env == nil {
		return base.ErrNotInFlow
	}
	type target struct {
		node types.FlowNode
		msg  *types.Msg
	}
	targets := make([]target, 0, len(x.Config.Links))
	var errs []error
	for _, id := range x.Config.Links {
		node, ok := env.FindFlowNode(id)
		if !ok || node.Flow() == nil {
			errs = append(errs, fmt.Errorf("%w: link target %s", types.ErrDestinationNotFound, id))
			continue
		}
		out := msg
		if len(targets) > 0 {
			out = msg.Clone(nil)
		}
		targets = append(targets, target{node: node, msg: out})
	}
	for _, t := range targets {
		if err := t.node.Flow().Deliver(ctx, x.Id(), t.node.Id(), t.msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
