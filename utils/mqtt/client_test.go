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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool {
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return true
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error {
	return t.err
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

// fakeClient is a paho.Client recording calls instead of talking to a broker.
type fakeClient struct {
	connectErrs  []error
	connects     int
	subscribeErr error
	publishErr   error
	connected    bool
	subscribed   map[string]paho.MessageHandler
	unsubscribed []string
	published    []published
	disconnected bool
	sync.Mutex
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: make(map[string]paho.MessageHandler), connected: true}
}

func (c *fakeClient) IsConnected() bool {
	c.Lock()
	defer c.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *fakeClient) Connect() paho.Token {
	c.Lock()
	defer c.Unlock()
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		return &fakeToken{err: err}
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.Lock()
	defer c.Unlock()
	c.disconnected = true
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.Lock()
	defer c.Unlock()
	if c.publishErr != nil {
		return &fakeToken{err: c.publishErr}
	}
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: payload})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.Lock()
	defer c.Unlock()
	if c.subscribeErr != nil {
		return &fakeToken{err: c.subscribeErr}
	}
	c.subscribed[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.Lock()
	defer c.Unlock()
	for _, topic := range topics {
		delete(c.subscribed, topic)
		c.unsubscribed = append(c.unsubscribed, topic)
	}
	return &fakeToken{}
}

func (c *fakeClient) AddRoute(string, paho.MessageHandler) {
}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

func TestNewClientConfig(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.True(t, errors.Is(err, ErrNoServer))

	_, err = NewClient(context.Background(), Config{Server: "tcp://localhost:1883", CAFile: "/nonexistent/ca.pem"})
	assert.NotNil(t, err)
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(Config{Server: "tcp://localhost:1883", Username: "u", ClientID: "c1"})
	assert.Nil(t, err)
	reader := paho.NewOptionsReader(opts)
	assert.Equal(t, "c1", reader.ClientID())
	assert.Equal(t, "u", reader.Username())
	assert.Equal(t, time.Second*60, reader.MaxReconnectInterval())
	assert.Nil(t, reader.TLSConfig())

	opts, err = clientOptions(Config{Server: "ssl://localhost:8883", InsecureSkipVerify: true})
	assert.Nil(t, err)
	reader = paho.NewOptionsReader(opts)
	assert.True(t, reader.TLSConfig().InsecureSkipVerify)
	assert.True(t, len(reader.ClientID()) > len("edgelink-"))
	assert.NotEqual(t, RandomClientId(), RandomClientId())
}

func TestNewTLSConfig(t *testing.T) {
	config, err := newTLSConfig("", "", "")
	assert.Nil(t, err)
	assert.Nil(t, config)

	_, err = newTLSConfig("/nonexistent/ca.pem", "", "")
	assert.NotNil(t, err)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	assert.Nil(t, os.WriteFile(caFile, []byte("not a certificate"), 0o600))
	_, err = newTLSConfig(caFile, "", "")
	assert.NotNil(t, err)
}

func TestConnect(t *testing.T) {
	old := ConnectRetryInterval
	ConnectRetryInterval = time.Millisecond
	defer func() { ConnectRetryInterval = old }()

	fake := newFakeClient()
	fake.connectErrs = []error{errors.New("refused"), errors.New("refused")}
	b := newClient(fake)
	assert.Nil(t, b.connect(context.Background()))
	assert.Equal(t, 3, fake.connects)

	fake = newFakeClient()
	refused := errors.New("refused")
	for i := 0; i < 1000; i++ {
		fake.connectErrs = append(fake.connectErrs, refused)
	}
	b = newClient(fake)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()
	err := b.connect(ctx)
	assert.True(t, errors.Is(err, refused))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHandlers(t *testing.T) {
	fake := newFakeClient()
	b := newClient(fake)
	var handled []string
	handle := func(c paho.Client, m paho.Message) {
		handled = append(handled, m.Topic())
	}

	assert.Nil(t, b.RegisterHandler(Handler{Topic: "sensors/#", Qos: 1, Handle: handle}))
	_, ok := fake.subscribed["sensors/#"]
	assert.True(t, ok)
	_, ok = registered(b, "sensors/#")
	assert.True(t, ok)

	// resubscribed after a reconnect
	fake.subscribed = make(map[string]paho.MessageHandler)
	b.onConnected(fake)
	_, ok = fake.subscribed["sensors/#"]
	assert.True(t, ok)

	fake.subscribeErr = errors.New("not authorized")
	assert.NotNil(t, b.RegisterHandler(Handler{Topic: "denied", Handle: handle}))
	_, ok = registered(b, "denied")
	assert.True(t, ok)

	assert.Nil(t, b.UnregisterHandler("sensors/#"))
	assert.Nil(t, b.UnregisterHandler("unknown"))
	assert.Equal(t, []string{"sensors/#"}, fake.unsubscribed)
	_, ok = registered(b, "sensors/#")
	assert.False(t, ok)

	assert.Nil(t, b.Close())
	assert.Equal(t, []string{"sensors/#", "denied"}, fake.unsubscribed)
	assert.True(t, fake.disconnected)
}

func TestPublish(t *testing.T) {
	fake := newFakeClient()
	b := newClient(fake)
	assert.Nil(t, b.Publish("a/b", 1, true, []byte("x")))
	assert.Equal(t, []published{{topic: "a/b", qos: 1, retained: true, payload: []byte("x")}}, fake.published)

	fake.publishErr = errors.New("closed")
	assert.Equal(t, fake.publishErr, b.Publish("a/b", 0, false, nil))
}

func registered(b *Client, topic string) (Handler, bool) {
	b.RLock()
	defer b.RUnlock()
	handler, ok := b.msgHandlerMap[topic]
	return handler, ok
}
