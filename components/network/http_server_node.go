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
//  "id": "hs1",
//  "type": "http-server",
//  "addr": ":1880",
//  "certFile": "",
//  "certKeyFile": ""
//}
import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/julienschmidt/httprouter"
)

func init() {
	Registry.AddStandaloneNode(types.NewStandaloneNodeProvider("http-server", newHttpServerNode))
}

// RouteRegistrar attaches handlers to an HTTP server.
type RouteRegistrar interface {
	// AddRoute serves handler on method and path. Path parameters such as
	// /sensors/:id are available through httprouter.ParamsFromContext.
	AddRoute(method string, path string, handler http.Handler) error
	// RemoveRoute makes the route answer 404 again.
	RemoveRoute(method string, path string)
}

// HttpServerNodeConfiguration node configuration
type HttpServerNodeConfiguration struct {
	// Addr is the listen address, defaulting to :1880.
	Addr        string
	CertFile    string
	CertKeyFile string
	// ReadTimeout of requests, defaulting to 30s.
	ReadTimeout time.Duration
}

// HttpServerNode is an HTTP listener shared by the http in nodes naming it.
type HttpServerNode struct {
	base.StandaloneNode
	Config   HttpServerNodeConfiguration
	router   *httprouter.Router
	routes   map[string]http.Handler
	server   *http.Server
	listener net.Listener
	mu       sync.RWMutex
}

func newHttpServerNode(desc *types.NodeDescriptor, id string, record types.Record, env types.Environment) (types.StandaloneNode, error) {
	node := &HttpServerNode{
		StandaloneNode: base.NewStandaloneNode(desc, id, record, env),
		Config:         HttpServerNodeConfiguration{Addr: ":1880", ReadTimeout: 30 * time.Second},
		router:         httprouter.New(),
		routes:         make(map[string]http.Handler),
	}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	return node, nil
}

// Capabilities exposes route registration.
func (x *HttpServerNode) Capabilities() []interface{} {
	return []interface{}{RouteRegistrar(x)}
}

func routeKey(method, path string) string {
	return method + " " + path
}

func (x *HttpServerNode) AddRoute(method string, path string, handler http.Handler) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	key := routeKey(method, path)
	if current, ok := x.routes[key]; ok {
		if current != nil {
			return fmt.Errorf("%w: http-server %s: route %s already in use", types.ErrBadConfig, x.Id(), key)
		}
		x.routes[key] = handler
		return nil
	}
	// httprouter panics on paths conflicting with registered ones
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("%w: http-server %s: route %s: %v", types.ErrBadConfig, x.Id(), key, e)
		}
	}()
	x.router.Handle(method, path, x.dispatch(key))
	x.routes[key] = handler
	return nil
}

// RemoveRoute detaches the handler. The route stays known to the router, which
// cannot forget routes, and answers 404 until it is added again.
func (x *HttpServerNode) RemoveRoute(method string, path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	key := routeKey(method, path)
	if _, ok := x.routes[key]; ok {
		x.routes[key] = nil
	}
}

func (x *HttpServerNode) dispatch(key string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		defer func() {
			if e := recover(); e != nil {
				x.Logger().Printf("http-server %s handler err: %v", x.Id(), e)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		x.mu.RLock()
		handler := x.routes[key]
		x.mu.RUnlock()
		if handler == nil {
			http.NotFound(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), httprouter.ParamsKey, params)
		handler.ServeHTTP(w, r.WithContext(ctx))
	}
}

// Start listens on Addr and serves in the background.
func (x *HttpServerNode) Start(ctx context.Context) error {
	x.SetState(types.StateStarting)
	listener, err := net.Listen("tcp", x.Config.Addr)
	if err != nil {
		x.SetState(types.StateStopped)
		return fmt.Errorf("%w: http-server %s: %v", types.ErrResource, x.Id(), err)
	}
	server := &http.Server{Handler: x.router, ReadTimeout: x.Config.ReadTimeout}
	x.mu.Lock()
	x.server, x.listener = server, listener
	x.mu.Unlock()
	tls := x.Config.CertFile != "" && x.Config.CertKeyFile != ""
	x.Logger().Printf("http-server %s starting on %s tls=%t", x.Id(), listener.Addr(), tls)
	go func() {
		var err error
		if tls {
			err = server.ServeTLS(listener, x.Config.CertFile, x.Config.CertKeyFile)
		} else {
			err = server.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			x.Logger().Printf("http-server %s stopped: %v", x.Id(), err)
		}
	}()
	x.SetState(types.StateRunning)
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests until ctx is done.
func (x *HttpServerNode) Stop(ctx context.Context) error {
	x.SetState(types.StateStopping)
	x.mu.Lock()
	server := x.server
	x.server, x.listener = nil, nil
	x.mu.Unlock()
	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	x.SetState(types.StateStopped)
	return err
}

// Addr returns the bound address, nil when not listening.
func (x *HttpServerNode) Addr() net.Addr {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.listener == nil {
		return nil
	}
	return x.listener.Addr()
}
