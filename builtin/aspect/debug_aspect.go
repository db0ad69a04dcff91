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

package aspect

import (
	"github.com/edgelinkgo/edgelink/api/types"
)

var (
	_ types.PreDeliverAspect  = (*Debug)(nil)
	_ types.PostDeliverAspect = (*Debug)(nil)
)

// Debug logs each message when it enters and leaves a destination node.
type Debug struct {
	// Logger receives the lines. A nil Logger uses the flow's configured logger.
	Logger types.Logger
}

// Order runs Debug after the other built-in aspects.
func (aspect *Debug) Order() int {
	return 900
}

func (aspect *Debug) PreDeliver(flow types.Flow, envelope *types.Envelope, to types.FlowNode) {
	aspect.logger(flow).Printf("flow=%s in msgId=%d from=%s[%d] to=%s clone=%t",
		flow.Id(), envelope.Msg.Id(), envelope.FromId, envelope.FromPort, to.Id(), envelope.Clone)
}

func (aspect *Debug) PostDeliver(flow types.Flow, envelope *types.Envelope, to types.FlowNode, err error) {
	if err != nil {
		aspect.logger(flow).Printf("flow=%s out msgId=%d from=%s to=%s err=%s",
			flow.Id(), envelope.Msg.Id(), envelope.FromId, to.Id(), err)
		return
	}
	aspect.logger(flow).Printf("flow=%s out msgId=%d from=%s to=%s",
		flow.Id(), envelope.Msg.Id(), envelope.FromId, to.Id())
}

func (aspect *Debug) logger(flow types.Flow) types.Logger {
	if aspect.Logger != nil {
		return aspect.Logger
	}
	return types.NewLogger(flow.Env().Config().Logger)
}
