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

package network

//Node configuration example:
//{
//  "id": "wo1",
//  "type": "websocket out",
//  "z": "f1",
//  "url": "ws://localhost:8080/events",
//  "wires": []
//}
import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/str"
	"github.com/gorilla/websocket"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("websocket out", types.SINK, newWebsocketOutNode))
}

// WebsocketOutNodeConfiguration node configuration
type WebsocketOutNodeConfiguration struct {
	// Url of the server, ws:// or wss://.
	Url string
	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration
	// WriteTimeout defaults to 10s.
	WriteTimeout time.Duration
}

// WebsocketOutNode writes msg.payload as a text frame: strings as they are,
// other values as JSON. It dials on the first message and redials once when a
// write fails.
type WebsocketOutNode struct {
	base.FlowNode
	Config WebsocketOutNodeConfiguration
	conn   *websocket.Conn
	mu     sync.Mutex
}

func newWebsocketOutNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &WebsocketOutNode{
		FlowNode: base.NewFlowNode(desc, id, record, outputs, flow),
		Config:   WebsocketOutNodeConfiguration{HandshakeTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
	}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(node.Config.Url, "ws://") && !strings.HasPrefix(node.Config.Url, "wss://") {
		return nil, fmt.Errorf("%w: websocket out %s: invalid url %q", types.ErrBadConfig, id, node.Config.Url)
	}
	return node, nil
}

func (x *WebsocketOutNode) Receive(ctx context.Context, msg *types.Msg) error {
	data, err := str.ToStringMaybeErr(msg.Payload())
	if err != nil {
		return fmt.Errorf("websocket out %s: %w", x.Id(), err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for attempt := 0; attempt < 2; attempt++ {
		if x.conn == nil {
			if err = x.dial(ctx); err != nil {
				continue
			}
		}
		_ = x.conn.SetWriteDeadline(time.Now().Add(x.Config.WriteTimeout))
		if err = x.conn.WriteMessage(websocket.TextMessage, []byte(data)); err == nil {
			return nil
		}
		_ = x.conn.Close()
		x.conn = nil
	}
	return fmt.Errorf("%w: websocket out %s: %v", types.ErrResource, x.Id(), err)
}

func (x *WebsocketOutNode) dial(ctx context.Context) error {
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: x.Config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, x.Config.Url, nil)
	if err != nil {
		return err
	}
	x.conn = conn
	return nil
}

// Stop closes the connection with a normal closure frame.
func (x *WebsocketOutNode) Stop(ctx context.Context) error {
	x.mu.Lock()
	if x.conn != nil {
		_ = x.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = x.conn.Close()
		x.conn = nil
	}
	x.mu.Unlock()
	return x.FlowNode.Stop(ctx)
}
