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

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/test"
	"github.com/edgelinkgo/edgelink/utils/json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func startServer(t *testing.T, env *test.Env) *HttpServerNode {
	t.Helper()
	record := test.Record(t, `{"id":"hs1","type":"http-server","addr":"127.0.0.1:0"}`)
	node, err := newHttpServerNode(types.NewNodeDescriptor("http-server", types.STANDALONE, nil), "hs1", record, env)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	server := node.(*HttpServerNode)
	if err = server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop(context.Background()) })
	env.AddStandaloneNode(server)
	return server
}

func newHttpIn(t *testing.T, flow types.Flow, dsl string) *HttpInNode {
	t.Helper()
	record := test.Record(t, dsl)
	node, err := newHttpInNode(types.NewNodeDescriptor("http in", types.SOURCE, nil), record.Id(), record, test.Ports(1), flow)
	if err != nil {
		t.Fatalf("create http in: %v", err)
	}
	return node.(*HttpInNode)
}

func TestHttpServerRoutes(t *testing.T) {
	env := test.NewEnv(types.NewConfig())
	server := startServer(t, env)
	base := "http://" + server.Addr().String()

	hello := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello")
	})
	assert.Nil(t, server.AddRoute(http.MethodGet, "/hello", hello))
	assert.True(t, errors.Is(server.AddRoute(http.MethodGet, "/hello", hello), types.ErrBadConfig))
	assert.Nil(t, server.AddRoute(http.MethodGet, "/items/:id", hello))
	assert.True(t, errors.Is(server.AddRoute(http.MethodGet, "/items/:name", hello), types.ErrBadConfig))

	resp, err := http.Get(base + "/hello")
	assert.Nil(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hello", string(body))

	server.RemoveRoute(http.MethodGet, "/hello")
	resp, err = http.Get(base + "/hello")
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// a removed route can be attached again
	assert.Nil(t, server.AddRoute(http.MethodGet, "/hello", hello))
	resp, err = http.Get(base + "/hello")
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	registrar, err := types.LookupCapability[RouteRegistrar](env, "hs1")
	assert.Nil(t, err)
	assert.NotNil(t, registrar)
}

func TestHttpServerStartFailure(t *testing.T) {
	env := test.NewEnv(types.NewConfig())
	first := startServer(t, env)
	record := types.Record{"id": "hs2", "type": "http-server", "addr": first.Addr().String()}
	node, err := newHttpServerNode(types.NewNodeDescriptor("http-server", types.STANDALONE, nil), "hs2", record, env)
	assert.Nil(t, err)
	assert.True(t, errors.Is(node.Start(context.Background()), types.ErrResource))
}

func TestHttpInNode(t *testing.T) {
	ctx := context.Background()
	env := test.NewEnv(types.NewConfig())
	server := startServer(t, env)
	base := "http://" + server.Addr().String()
	flow := test.NewFlowInEnv(env)

	post := newHttpIn(t, flow, `{"id":"hi1","type":"http in","server":"hs1","method":"post","url":"/sensors/:id"}`)
	get := newHttpIn(t, flow, `{"id":"hi2","type":"http in","server":"hs1","url":"/status"}`)
	assert.Nil(t, post.Start(ctx))
	assert.Nil(t, get.Start(ctx))

	resp, err := http.Post(base+"/sensors/t1?unit=c", "application/json", strings.NewReader(`{"temperature":21}`))
	assert.Nil(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var reply map[string]interface{}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Nil(t, json.Unmarshal(body, &reply))

	sent := flow.WaitSent(1, time.Second)
	assert.Equal(t, 1, len(sent))
	msg := sent[0].Msg
	assert.Equal(t, float64(msg.Id()), reply["_msgid"])
	assert.Equal(t, map[string]interface{}{"temperature": float64(21)}, msg.Payload())
	v, _ := msg.GetAt("req.params.id")
	assert.Equal(t, "t1", v)
	v, _ = msg.GetAt("req.query.unit")
	assert.Equal(t, "c", v)
	v, _ = msg.GetAt("req.headers['content-type']")
	assert.Equal(t, "application/json", v)
	v, _ = msg.GetAt("req.id")
	assert.Equal(t, 36, len(v.(string)))

	resp, err = http.Get(base + "/status?verbose=1&tag=a&tag=b")
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	sent = flow.WaitSent(2, time.Second)
	assert.Equal(t, 2, len(sent))
	assert.Equal(t, map[string]interface{}{"verbose": "1", "tag": []interface{}{"a", "b"}}, sent[1].Msg.Payload())

	resp, err = http.Post(base+"/sensors/t1", "application/json", strings.NewReader(`{bad`))
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Nil(t, post.Stop(ctx))
	resp, err = http.Post(base+"/sensors/t1", "text/plain", strings.NewReader("x"))
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Nil(t, get.Stop(ctx))
	assert.Equal(t, 2, len(flow.Sent()))
}

func TestHttpInNodeConfig(t *testing.T) {
	flow := test.NewFlow(types.NewConfig())
	desc := types.NewNodeDescriptor("http in", types.SOURCE, nil)
	for _, dsl := range []string{
		`{"id":"hi1","type":"http in","url":"/a"}`,
		`{"id":"hi1","type":"http in","server":"hs1","url":"a"}`,
	} {
		_, err := newHttpInNode(desc, "hi1", test.Record(t, dsl), test.Ports(1), flow)
		assert.True(t, errors.Is(err, types.ErrBadConfig), dsl)
	}
	node := newHttpIn(t, flow, `{"id":"hi1","type":"http in","server":"missing","url":"/a"}`)
	assert.True(t, errors.Is(node.Start(context.Background()), types.ErrCapabilityNotAvailable))
}

type wsServer struct {
	*httptest.Server
	connections int
	messages    chan string
	sync.Mutex
}

func newWsServer(t *testing.T) *wsServer {
	s := &wsServer{messages: make(chan string, 16)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.Lock()
		s.connections++
		s.Unlock()
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.messages <- string(data)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) Connections() int {
	s.Lock()
	defer s.Unlock()
	return s.connections
}

func (s *wsServer) next(t *testing.T) string {
	t.Helper()
	select {
	case m := <-s.messages:
		return m
	case <-time.After(time.Second):
		t.Fatal("no websocket message")
		return ""
	}
}

func TestWebsocketOutNode(t *testing.T) {
	ctx := context.Background()
	server := newWsServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	flow := test.NewFlow(types.NewConfig())
	desc := types.NewNodeDescriptor("websocket out", types.SINK, nil)

	node, err := newWebsocketOutNode(desc, "wo1", types.Record{"id": "wo1", "type": "websocket out", "url": url}, nil, flow)
	assert.Nil(t, err)
	out := node.(*WebsocketOutNode)
	assert.Equal(t, 0, server.Connections())

	assert.Nil(t, out.Receive(ctx, test.Msg("hello")))
	assert.Equal(t, "hello", server.next(t))
	assert.Nil(t, out.Receive(ctx, test.Msg(map[string]interface{}{"a": 1})))
	assert.Equal(t, `{"a":1}`, server.next(t))
	assert.Equal(t, 1, server.Connections())

	// the connection is dialed again after a stop
	assert.Nil(t, out.Stop(ctx))
	assert.Nil(t, out.Receive(ctx, test.Msg(42)))
	assert.Equal(t, "42", server.next(t))
	assert.Equal(t, 2, server.Connections())
	assert.Nil(t, out.Stop(ctx))
}

func TestWebsocketOutNodeErrors(t *testing.T) {
	flow := test.NewFlow(types.NewConfig())
	desc := types.NewNodeDescriptor("websocket out", types.SINK, nil)
	_, err := newWebsocketOutNode(desc, "wo1", types.Record{"id": "wo1", "type": "websocket out", "url": "http://x"}, nil, flow)
	assert.True(t, errors.Is(err, types.ErrBadConfig))

	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()
	node, err := newWebsocketOutNode(desc, "wo2", types.Record{"id": "wo2", "type": "websocket out", "url": url}, nil, flow)
	assert.Nil(t, err)
	assert.True(t, errors.Is(node.(*WebsocketOutNode).Receive(context.Background(), test.Msg("x")), types.ErrResource))
}
