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

package mqtt

//Node configuration example:
//{
//  "id": "b1",
//  "type": "mqtt-broker",
//  "broker": "localhost",
//  "port": "1883",
//  "clientid": "",
//  "usetls": false,
//  "cleansession": true,
//  "credentials": {"user": "edge", "password": "secret"}
//}
import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	mqttclient "github.com/edgelinkgo/edgelink/utils/mqtt"
)

func init() {
	Registry.AddStandaloneNode(types.NewStandaloneNodeProvider("mqtt-broker", newBrokerNode))
}

// Credentials of a broker connection.
type Credentials struct {
	User     string
	Password string
}

// BrokerNodeConfiguration node configuration
type BrokerNodeConfiguration struct {
	// Broker is a host name or a full URL such as ssl://host:8883.
	Broker string
	Port   string
	// Clientid defaults to a random id.
	Clientid     string
	Usetls       bool
	Cleansession *bool
	Credentials  Credentials
	// ConnectTimeout bounds the first connection attempt, defaulting to 10s.
	ConnectTimeout time.Duration
	CAFile         string
	CertFile       string
	CertKeyFile    string
}

// Server returns the broker URL.
func (c BrokerNodeConfiguration) Server() string {
	if strings.Contains(c.Broker, "://") {
		return c.Broker
	}
	scheme, port := "tcp", c.Port
	if c.Usetls {
		scheme = "ssl"
	}
	if port == "" {
		port = "1883"
		if c.Usetls {
			port = "8883"
		}
	}
	return fmt.Sprintf("%s://%s:%s", scheme, c.Broker, port)
}

// client is the part of mqttclient.Client the broker node uses.
type client interface {
	RegisterHandler(handler mqttclient.Handler) error
	UnregisterHandler(topic string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close() error
}

// connect opens a client; replaced in tests.
var connect = func(ctx context.Context, conf mqttclient.Config) (client, error) {
	return mqttclient.NewClient(ctx, conf)
}

type subscription struct {
	qos      byte
	handlers map[string]MessageHandler
}

// BrokerNode owns one MQTT connection and shares it through the Publisher and
// Subscriber capabilities.
type BrokerNode struct {
	base.StandaloneNode
	Config BrokerNodeConfiguration
	client client
	subs   map[string]*subscription
	mu     sync.Mutex
}

func newBrokerNode(desc *types.NodeDescriptor, id string, record types.Record, env types.Environment) (types.StandaloneNode, error) {
	node := &BrokerNode{
		StandaloneNode: base.NewStandaloneNode(desc, id, record, env),
		Config:         BrokerNodeConfiguration{ConnectTimeout: 10 * time.Second},
		subs:           make(map[string]*subscription),
	}
	if err := record.Decode(&node.Config); err != nil {
		return nil, err
	}
	if node.Config.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt-broker %s has no broker", types.ErrBadConfig, id)
	}
	return node, nil
}

// Capabilities exposes the connection.
func (x *BrokerNode) Capabilities() []interface{} {
	return []interface{}{Publisher(x), Subscriber(x)}
}

// Start connects, giving up after ConnectTimeout.
func (x *BrokerNode) Start(ctx context.Context) error {
	x.SetState(types.StateStarting)
	cleanSession := x.Config.Cleansession == nil || *x.Config.Cleansession
	connectCtx, cancel := context.WithTimeout(ctx, x.Config.ConnectTimeout)
	defer cancel()
	c, err := connect(connectCtx, mqttclient.Config{
		Server:       x.Config.Server(),
		Username:     x.Config.Credentials.User,
		Password:     x.Config.Credentials.Password,
		ClientID:     x.Config.Clientid,
		CleanSession: cleanSession,
		CAFile:       x.Config.CAFile,
		CertFile:     x.Config.CertFile,
		CertKeyFile:  x.Config.CertKeyFile,
	})
	if err != nil {
		x.SetState(types.StateStopped)
		return fmt.Errorf("%w: mqtt-broker %s: %v", types.ErrResource, x.Id(), err)
	}
	x.mu.Lock()
	x.client = c
	x.mu.Unlock()
	x.Logger().Printf("mqtt-broker %s connected to %s", x.Id(), x.Config.Server())
	x.SetState(types.StateRunning)
	return nil
}

func (x *BrokerNode) Stop(ctx context.Context) error {
	x.SetState(types.StateStopping)
	x.mu.Lock()
	c := x.client
	x.client = nil
	x.subs = make(map[string]*subscription)
	x.mu.Unlock()
	var err error
	if c != nil {
		err = c.Close()
	}
	x.SetState(types.StateStopped)
	return err
}

func (x *BrokerNode) Publish(topic string, qos byte, retained bool, payload []byte) error {
	x.mu.Lock()
	c := x.client
	x.mu.Unlock()
	if c == nil {
		return fmt.Errorf("%w: mqtt-broker %s", base.ErrClientNotInit, x.Id())
	}
	return c.Publish(topic, qos, retained, payload)
}

// Subscribe adds handler under id. The first subscriber of a topic filter
// subscribes on the broker; later ones share that subscription.
func (x *BrokerNode) Subscribe(id string, topic string, qos byte, handler MessageHandler) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.client == nil {
		return fmt.Errorf("%w: mqtt-broker %s", base.ErrClientNotInit, x.Id())
	}
	if sub, ok := x.subs[topic]; ok {
		sub.handlers[id] = handler
		return nil
	}
	sub := &subscription{qos: qos, handlers: map[string]MessageHandler{id: handler}}
	x.subs[topic] = sub
	return x.client.RegisterHandler(mqttclient.Handler{
		Topic: topic,
		Qos:   qos,
		Handle: func(c paho.Client, m paho.Message) {
			x.dispatch(topic, m)
		},
	})
}

func (x *BrokerNode) dispatch(filter string, m paho.Message) {
	x.mu.Lock()
	sub, ok := x.subs[filter]
	var handlers []MessageHandler
	if ok {
		for _, handler := range sub.handlers {
			handlers = append(handlers, handler)
		}
	}
	x.mu.Unlock()
	for _, handler := range handlers {
		handler(m.Topic(), m.Payload(), m.Qos(), m.Retained())
	}
}

// Unsubscribe removes the handler of id. The last one leaving a topic filter
// unsubscribes on the broker.
func (x *BrokerNode) Unsubscribe(id string, topic string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	sub, ok := x.subs[topic]
	if !ok {
		return nil
	}
	delete(sub.handlers, id)
	if len(sub.handlers) > 0 {
		return nil
	}
	delete(x.subs, topic)
	if x.client == nil {
		return nil
	}
	return x.client.UnregisterHandler(topic)
}
