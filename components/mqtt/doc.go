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

// Package mqtt provides the MQTT node types:
//
//   - mqtt-broker: a standalone connection shared by every node naming it
//   - mqtt in: emits a message for each publication on a topic filter
//   - mqtt out: publishes the payload of each message
//
// mqtt in and mqtt out reach the connection through the Publisher and Subscriber
// capabilities of the broker node named by their "broker" field.
package mqtt

import (
	"github.com/edgelinkgo/edgelink/api/types"
)

// Registry collects the providers of this package.
var Registry = &types.SafeProviderSlice{}

// MessageHandler receives publications.
type MessageHandler func(topic string, payload []byte, qos byte, retained bool)

// Publisher publishes to a broker.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Subscriber manages subscriptions on a broker. Several subscribers, told apart
// by id, may share one topic filter.
type Subscriber interface {
	Subscribe(id string, topic string, qos byte, handler MessageHandler) error
	Unsubscribe(id string, topic string) error
}
