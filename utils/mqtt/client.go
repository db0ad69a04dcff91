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

// Package mqtt wraps the Paho MQTT client for the broker node: connecting with
// retries, TLS setup, and keeping subscriptions alive across reconnects.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid/v5"
)

// ConnectRetryInterval is the pause between connection attempts.
var ConnectRetryInterval = 2 * time.Second

// DisconnectQuiesce is how long Close waits for in-flight work, in milliseconds.
const DisconnectQuiesce = 500

// ErrNoServer is returned when Config.Server is empty.
var ErrNoServer = errors.New("mqtt server address is required")

// Handler is a subscription.
type Handler struct {
	Topic  string
	Qos    byte
	Handle paho.MessageHandler
}

// Config configures a client.
type Config struct {
	// Server is the broker URL, for example tcp://localhost:1883 or ssl://host:8883.
	Server   string
	Username string
	Password string
	// MaxReconnectInterval caps the automatic reconnect backoff, defaulting to 60s.
	MaxReconnectInterval time.Duration
	CleanSession         bool
	// ClientID defaults to a random id.
	ClientID    string
	CAFile      string
	CertFile    string
	CertKeyFile string
	// InsecureSkipVerify disables server certificate checks of TLS connections.
	InsecureSkipVerify bool
}

// Client is a connected MQTT client. Handlers registered on it are subscribed
// again each time the connection is re-established.
type Client struct {
	sync.RWMutex
	client paho.Client
	// msgHandlerMap maps topic filters to their handlers
	msgHandlerMap map[string]Handler
}

// NewClient connects to conf.Server, retrying until ctx is done.
func NewClient(ctx context.Context, conf Config) (*Client, error) {
	if conf.Server == "" {
		return nil, ErrNoServer
	}
	opts, err := clientOptions(conf)
	if err != nil {
		return nil, err
	}
	b := newClient(nil)
	opts.SetOnConnectHandler(b.onConnected)
	b.client = paho.NewClient(opts)
	if err = b.connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func newClient(client paho.Client) *Client {
	return &Client{client: client, msgHandlerMap: make(map[string]Handler)}
}

func clientOptions(conf Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	opts.SetAutoReconnect(true)
	if conf.ClientID == "" {
		conf.ClientID = RandomClientId()
	}
	opts.SetClientID(conf.ClientID)
	if conf.MaxReconnectInterval <= 0 {
		conf.MaxReconnectInterval = time.Second * 60
	}
	opts.SetMaxReconnectInterval(conf.MaxReconnectInterval)

	tlsConfig, err := newTLSConfig(conf.CAFile, conf.CertFile, conf.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("error loading mqtt certificate files,ca_cert=%s,tls_cert=%s,tls_key=%s: %w", conf.CAFile, conf.CertFile, conf.CertKeyFile, err)
	}
	if conf.InsecureSkipVerify {
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		tlsConfig.InsecureSkipVerify = true
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

// RandomClientId returns a client id unique to this process run.
func RandomClientId() string {
	return "edgelink-" + uuid.Must(uuid.NewV4()).String()[:8]
}

func (b *Client) connect(ctx context.Context) error {
	for {
		token := b.client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connect: %w", errors.Join(token.Error(), ctx.Err()))
		case <-time.After(ConnectRetryInterval):
		}
	}
}

// RegisterHandler subscribes handler, replacing any handler of the same topic.
// The handler stays registered when subscribing fails and is retried on the next
// reconnect.
func (b *Client) RegisterHandler(handler Handler) error {
	b.Lock()
	b.msgHandlerMap[handler.Topic] = handler
	b.Unlock()
	return b.subscribeHandler(handler)
}

// UnregisterHandler unsubscribes topic.
func (b *Client) UnregisterHandler(topic string) error {
	b.Lock()
	defer b.Unlock()
	if _, exists := b.msgHandlerMap[topic]; !exists {
		return nil
	}
	delete(b.msgHandlerMap, topic)
	if token := b.client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close unsubscribes every handler and disconnects.
func (b *Client) Close() error {
	b.Lock()
	topics := make([]string, 0, len(b.msgHandlerMap))
	for topic := range b.msgHandlerMap {
		topics = append(topics, topic)
	}
	b.msgHandlerMap = make(map[string]Handler)
	b.Unlock()

	if len(topics) > 0 && b.client.IsConnected() {
		b.client.Unsubscribe(topics...).WaitTimeout(time.Second)
	}
	b.client.Disconnect(DisconnectQuiesce)
	return nil
}

// Publish sends payload to topic and waits for the broker to accept it.
func (b *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if token := b.client.Publish(topic, qos, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
func (b *Client) IsConnected() bool {
	return b.client.IsConnected()
}

func (b *Client) onConnected(c paho.Client) {
	b.RLock()
	handlers := make([]Handler, 0, len(b.msgHandlerMap))
	for _, handler := range b.msgHandlerMap {
		handlers = append(handlers, handler)
	}
	b.RUnlock()

	for _, handler := range handlers {
		_ = b.subscribeHandler(handler)
	}
}

func (b *Client) subscribeHandler(handler Handler) error {
	token := b.client.Subscribe(handler.Topic, handler.Qos, handler.Handle)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if st, ok := token.(*paho.SubscribeToken); ok && is128Err(st, handler.Topic) {
		return fmt.Errorf("mqtt subscribe %s: rejected by broker", handler.Topic)
	}
	return nil
}

// is128Err reports the 0x80 failure code a broker returns for a refused
// subscription, typically an ACL denial.
func is128Err(token *paho.SubscribeToken, topic string) bool {
	result, ok := token.Result()[topic]
	return ok && result == 128
}

func newTLSConfig(caFile, certFile, certKeyFile string) (*tls.Config, error) {
	if caFile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}
	tlsConfig := &tls.Config{}
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", caFile)
		}
		tlsConfig.RootCAs = certPool
	}
	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}
	return tlsConfig, nil
}
