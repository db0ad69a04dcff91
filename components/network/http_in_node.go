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
//  "id": "hi1",
//  "type": "http in",
//  "z": "f1",
//  "server": "hs1",
//  "method": "post",
//  "url": "/sensors/:id",
//  "wires": [["n2"]]
//}
import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/utils/json"
	"github.com/gofrs/uuid/v5"
	"github.com/julienschmidt/httprouter"
)

func init() {
	Registry.AddFlowNode(types.NewFlowNodeProvider("http in", types.SOURCE, newHttpInNode))
}

// MaxBodySize caps the request bodies read by http in nodes.
const MaxBodySize = 10 << 20

// HttpInNodeConfiguration node configuration
type HttpInNodeConfiguration struct {
	// Server is the id of the http-server node.
	Server string
	// Method defaults to GET.
	Method string
	// Url is the route path and may hold parameters such as :id.
	Url string
}

// HttpInNode turns each request on its route into a message and answers 202
// with the message id. The message carries the body as payload (decoded when it
// is JSON, the query for GET requests) and the request details under req.
type HttpInNode struct {
	base.SourceNode
	Config    HttpInNodeConfiguration
	registrar RouteRegistrar
}

func newHttpInNode(desc *types.NodeDescriptor, id string, record types.Record, outputs []types.OutputPort, flow types.Flow) (types.FlowNode, error) {
	node := &HttpInNode{SourceNode: base.NewSourceNode(desc, id, record, outputs, flow)}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if node.Config.Server == "" || !strings.HasPrefix(node.Config.Url, "/") {
		return nil, fmt.Errorf("%w: http in %s needs server and an absolute url", types.ErrBadConfig, id)
	}
	node.Config.Method = strings.ToUpper(node.Config.Method)
	if node.Config.Method == "" {
		node.Config.Method = http.MethodGet
	}
	node.Bind(node)
	return node, nil
}

func (x *HttpInNode) Start(ctx context.Context) error {
	registrar, err := types.LookupCapability[RouteRegistrar](x.Env(), x.Config.Server)
	if err != nil {
		return fmt.Errorf("http in %s: %w", x.Id(), err)
	}
	if err = x.SourceNode.Start(ctx); err != nil {
		return err
	}
	if err = registrar.AddRoute(x.Config.Method, x.Config.Url, x); err != nil {
		_ = x.SourceNode.Stop(ctx)
		return err
	}
	x.registrar = registrar
	return nil
}

func (x *HttpInNode) Stop(ctx context.Context) error {
	if x.registrar != nil {
		x.registrar.RemoveRoute(x.Config.Method, x.Config.Url)
	}
	return x.SourceNode.Stop(ctx)
}

// Run idles: messages are pushed by the server's handlers.
func (x *HttpInNode) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (x *HttpInNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if x.State() != types.StateRunning {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	msg, err := x.toMsg(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// the request context ends with the response, long before delivery does
	if err = x.SendToOnlyPort(context.WithoutCancel(r.Context()), msg); err != nil {
		x.Logger().Printf("http in %s msgId=%d: %v", x.Id(), msg.Id(), err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, `{"%s":%d}`, types.MsgIdKey, msg.Id())
}

func (x *HttpInNode) toMsg(r *http.Request) (*types.Msg, error) {
	msg := x.NewMsg()
	query := make(map[string]interface{})
	for k, v := range r.URL.Query() {
		if len(v) == 1 {
			query[k] = v[0]
		} else {
			query[k] = toInterfaces(v)
		}
	}
	headers := make(map[string]interface{})
	for k, v := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ",")
	}
	params := make(map[string]interface{})
	for _, p := range httprouter.ParamsFromContext(r.Context()) {
		params[p.Key] = p.Value
	}
	reqId := ""
	if id, err := uuid.NewV4(); err == nil {
		reqId = id.String()
	}
	msg.Data()["req"] = map[string]interface{}{
		"id":      reqId,
		"method":  r.Method,
		"url":     r.URL.String(),
		"params":  params,
		"query":   query,
		"headers": headers,
	}

	if r.Method == http.MethodGet {
		msg.SetPayload(query)
		return msg, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		return nil, err
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" && len(body) > 0 {
		var v interface{}
		if err = json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
		msg.SetPayload(v)
	} else {
		msg.SetPayload(string(body))
	}
	return msg, nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
