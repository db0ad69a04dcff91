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

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/components/base"
	"github.com/edgelinkgo/edgelink/test"
	mqttclient "github.com/edgelinkgo/edgelink/utils/mqtt"
	"github.com/stretchr/testify/assert"
)

type fakeMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type publication struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	config       mqttclient.Config
	handlers     map[string]mqttclient.Handler
	registered   []string
	unregistered []string
	published    []publication
	closed       bool
	sync.Mutex
}

func (c *fakeClient) RegisterHandler(handler mqttclient.Handler) error {
	c.Lock()
	defer c.Unlock()
	c.handlers[handler.Topic] = handler
	c.registered = append(c.registered, handler.Topic)
	return nil
}

func (c *fakeClient) UnregisterHandler(topic string) error {
	c.Lock()
	defer c.Unlock()
	delete(c.handlers, topic)
	c.unregistered = append(c.unregistered, topic)
	return nil
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	c.Lock()
	defer c.Unlock()
	c.published = append(c.published, publication{topic: topic, qos: qos, retained: retained, payload: string(payload)})
	return nil
}

func (c *fakeClient) Close() error {
	c.Lock()
	defer c.Unlock()
	c.closed = true
	return nil
}

// deliver simulates a publication matching the subscription filter.
func (c *fakeClient) deliver(filter string, m *fakeMessage) {
	c.Lock()
	handler := c.handlers[filter]
	c.Unlock()
	handler.Handle(nil, m)
}

func useFakeClient(t *testing.T) *fakeClient {
	fake := &fakeClient{handlers: make(map[string]mqttclient.Handler)}
	old := connect
	connect = func(ctx context.Context, conf mqttclient.Config) (client, error) {
		fake.config = conf
		return fake, nil
	}
	t.Cleanup(func() { connect = old })
	return fake
}

func newBroker(t *testing.T, env types.Environment, dsl string) *BrokerNode {
	t.Helper()
	record := test.Record(t, dsl)
	node, err := newBrokerNode(types.NewNodeDescriptor("mqtt-broker", types.STANDALONE, nil), record.Id(), record, env)
	if err != nil {
		t.Fatalf("create broker: %v", err)
	}
	return node.(*BrokerNode)
}

func TestBrokerServer(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", BrokerNodeConfiguration{Broker: "localhost"}.Server())
	assert.Equal(t, "ssl://host:8883", BrokerNodeConfiguration{Broker: "host", Usetls: true}.Server())
	assert.Equal(t, "tcp://host:1884", BrokerNodeConfiguration{Broker: "host", Port: "1884"}.Server())
	assert.Equal(t, "ws://host:9001/mqtt", BrokerNodeConfiguration{Broker: "ws://host:9001/mqtt"}.Server())
}

func TestBrokerNode(t *testing.T) {
	ctx := context.Background()
	env := test.NewEnv(types.NewConfig())

	_, err := newBrokerNode(types.NewNodeDescriptor("mqtt-broker", types.STANDALONE, nil), "b0", types.Record{"id": "b0", "type": "mqtt-broker"}, env)
	assert.True(t, errors.Is(err, types.ErrBadConfig))

	broker := newBroker(t, env, `{"id":"b1","type":"mqtt-broker","broker":"localhost","port":"1883","cleansession":false,"credentials":{"user":"u","password":"p"}}`)
	assert.True(t, errors.Is(broker.Publish("a", 0, false, nil), base.ErrClientNotInit))

	fake := useFakeClient(t)
	assert.Nil(t, broker.Start(ctx))
	assert.Equal(t, types.StateRunning, broker.State())
	assert.Equal(t, "tcp://localhost:1883", fake.config.Server)
	assert.Equal(t, "u", fake.config.Username)
	assert.False(t, fake.config.CleanSession)

	var mu sync.Mutex
	var got []string
	handler := func(name string) MessageHandler {
		return func(topic string, payload []byte, qos byte, retained bool) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+topic+":"+string(payload))
		}
	}
	assert.Nil(t, broker.Subscribe("n1", "sensors/#", 1, handler("n1")))
	assert.Nil(t, broker.Subscribe("n2", "sensors/#", 1, handler("n2")))
	assert.Equal(t, []string{"sensors/#"}, fake.registered)

	fake.deliver("sensors/#", &fakeMessage{topic: "sensors/a", payload: []byte("1")})
	assert.ElementsMatch(t, []string{"n1:sensors/a:1", "n2:sensors/a:1"}, got)

	assert.Nil(t, broker.Unsubscribe("n1", "sensors/#"))
	assert.Equal(t, 0, len(fake.unregistered))
	assert.Nil(t, broker.Unsubscribe("n2", "sensors/#"))
	assert.Equal(t, []string{"sensors/#"}, fake.unregistered)

	assert.Nil(t, broker.Publish("alerts", 1, true, []byte("x")))
	assert.Equal(t, []publication{{topic: "alerts", qos: 1, retained: true, payload: "x"}}, fake.published)

	assert.Nil(t, broker.Stop(ctx))
	assert.True(t, fake.closed)
	assert.Equal(t, types.StateStopped, broker.State())
}

func TestBrokerStartFailure(t *testing.T) {
	old := connect
	connect = func(ctx context.Context, conf mqttclient.Config) (client, error) {
		return nil, errors.New("connection refused")
	}
	defer func() { connect = old }()

	broker := newBroker(t, test.NewEnv(types.NewConfig()), `{"id":"b1","type":"mqtt-broker","broker":"localhost"}`)
	err := broker.Start(context.Background())
	assert.True(t, errors.Is(err, types.ErrResource))
	assert.Equal(t, types.StateStopped, broker.State())
}

func TestInNode(t *testing.T) {
	ctx := context.Background()
	fake := useFakeClient(t)
	env := test.NewEnv(types.NewConfig())
	broker := newBroker(t, env, `{"id":"b1","type":"mqtt-broker","broker":"localhost"}`)
	assert.Nil(t, broker.Start(ctx))
	env.AddStandaloneNode(broker)
	flow := test.NewFlowInEnv(env)

	record := test.Record(t, `{"id":"mi1","type":"mqtt in","broker":"b1","topic":"sensors/+","qos":"1","datatype":"json"}`)
	node, err := newInNode(types.NewNodeDescriptor("mqtt in", types.SOURCE, nil), "mi1", record, test.Ports(1), flow)
	assert.Nil(t, err)
	assert.Nil(t, node.Start(ctx))

	fake.deliver("sensors/+", &fakeMessage{topic: "sensors/t1", payload: []byte(`{"temperature":21}`), qos: 1, retained: true})
	fake.deliver("sensors/+", &fakeMessage{topic: "sensors/t1", payload: []byte(`not json`)})
	sent := flow.WaitSent(1, time.Second)
	assert.Equal(t, 1, len(sent))
	msg := sent[0].Msg
	assert.Equal(t, map[string]interface{}{"temperature": float64(21)}, msg.Payload())
	assert.Equal(t, "sensors/t1", msg.Topic())
	assert.Equal(t, 1, msg.Data()["qos"])
	assert.Equal(t, true, msg.Data()["retain"])

	assert.Nil(t, node.Stop(ctx))
	assert.Equal(t, []string{"sensors/+"}, fake.unregistered)
}

func TestInNodeConfig(t *testing.T) {
	flow := test.NewFlow(types.NewConfig())
	desc := types.NewNodeDescriptor("mqtt in", types.SOURCE, nil)
	for _, dsl := range []string{
		`{"id":"mi1","type":"mqtt in","topic":"a"}`,
		`{"id":"mi1","type":"mqtt in","broker":"b1"}`,
		`{"id":"mi1","type":"mqtt in","broker":"b1","topic":"a","qos":3}`,
		`{"id":"mi1","type":"mqtt in","broker":"b1","topic":"a","datatype":"xml"}`,
	} {
		_, err := newInNode(desc, "mi1", test.Record(t, dsl), test.Ports(1), flow)
		assert.True(t, errors.Is(err, types.ErrBadConfig), dsl)
	}

	node, err := newInNode(desc, "mi1", test.Record(t, `{"id":"mi1","type":"mqtt in","broker":"missing","topic":"a"}`), test.Ports(1), flow)
	assert.Nil(t, err)
	assert.True(t, errors.Is(node.Start(context.Background()), types.ErrCapabilityNotAvailable))
}

func TestOutNode(t *testing.T) {
	ctx := context.Background()
	fake := useFakeClient(t)
	env := test.NewEnv(types.NewConfig())
	broker := newBroker(t, env, `{"id":"b1","type":"mqtt-broker","broker":"localhost"}`)
	assert.Nil(t, broker.Start(ctx))
	env.AddStandaloneNode(broker)
	flow := test.NewFlowInEnv(env)
	desc := types.NewNodeDescriptor("mqtt out", types.SINK, nil)

	fixed, err := newOutNode(desc, "mo1", test.Record(t, `{"id":"mo1","type":"mqtt out","broker":"b1","topic":"alerts","qos":"1","retain":"true"}`), nil, flow)
	assert.Nil(t, err)
	assert.Nil(t, fixed.(*OutNode).Receive(ctx, test.Msg(map[string]interface{}{"level": 3})))

	dynamic, err := newOutNode(desc, "mo2", test.Record(t, `{"id":"mo2","type":"mqtt out","broker":"b1"}`), nil, flow)
	assert.Nil(t, err)
	msg := test.Msg("on")
	msg.Data()["topic"] = "lights/1"
	assert.Nil(t, dynamic.(*OutNode).Receive(ctx, msg))
	assert.True(t, errors.Is(dynamic.(*OutNode).Receive(ctx, test.Msg("x")), types.ErrInvalidOperation))

	assert.Equal(t, []publication{
		{topic: "alerts", qos: 1, retained: true, payload: `{"level":3}`},
		{topic: "lights/1", payload: "on"},
	}, fake.published)

	orphan, err := newOutNode(desc, "mo3", test.Record(t, `{"id":"mo3","type":"mqtt out","broker":"missing","topic":"a"}`), nil, flow)
	assert.Nil(t, err)
	assert.True(t, errors.Is(orphan.(*OutNode).Receive(ctx, test.Msg("x")), types.ErrCapabilityNotAvailable))

	_, err = newOutNode(desc, "mo4", test.Record(t, `{"id":"mo4","type":"mqtt out","topic":"a"}`), nil, flow)
	assert.True(t, errors.Is(err, types.ErrBadConfig))
}

var _ paho.Message = (*fakeMessage)(nil)
