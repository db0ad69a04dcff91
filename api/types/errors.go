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

package types

import (
	"errors"
	"fmt"
)

// Errors are grouped by family; test with errors.Is against the family sentinel.
var (
	// ErrBadConfig covers missing or unknown node types, empty configuration and
	// malformed records. It aborts engine start.
	ErrBadConfig = errors.New("bad configuration")
	// ErrNoNodes is returned when the flows document contains no records.
	ErrNoNodes = fmt.Errorf("%w: no nodes in configuration", ErrBadConfig)
	// ErrUnknownNodeType is returned when no provider is registered for a type.
	ErrUnknownNodeType = fmt.Errorf("%w: unknown node type", ErrBadConfig)
	// ErrMalformedRecord is returned for records missing required fields.
	ErrMalformedRecord = fmt.Errorf("%w: malformed record", ErrBadConfig)
	// ErrDuplicateId is returned when two records share an id.
	ErrDuplicateId = fmt.Errorf("%w: duplicate id", ErrBadConfig)

	// ErrBadWiring covers wires to nonexistent or unreceivable destinations.
	ErrBadWiring = errors.New("bad wiring")
	// ErrDestinationNotFound is returned when a wire names an id that was not built.
	ErrDestinationNotFound = fmt.Errorf("%w: destination not found", ErrBadWiring)
	// ErrCycleDetected is returned when wires form a cycle inside a flow.
	ErrCycleDetected = fmt.Errorf("%w: cycle detected", ErrBadWiring)

	// ErrInvalidOperation is returned for calls a node or the router cannot honor,
	// such as delivering to a SOURCE node.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNodePanic is returned when a node panics while receiving a message.
	ErrNodePanic = fmt.Errorf("%w: node panicked", ErrInvalidOperation)

	// ErrResource reports failures of external connections.
	ErrResource = errors.New("resource error")
	// ErrCapabilityNotAvailable is returned when a standalone node does not exist
	// or does not provide the requested capability.
	ErrCapabilityNotAvailable = errors.New("capability not available")

	// ErrComponentExists is returned when registering a type name twice.
	ErrComponentExists = errors.New("the component already exists")
	// ErrEngineStarted is returned when starting or loading a running engine.
	ErrEngineStarted = errors.New("engine already started")
	// ErrEngineNotStarted is returned when stopping an idle engine.
	ErrEngineNotStarted = errors.New("engine not started")
)

// DeliveryError carries the routing context of a failed delivery.
type DeliveryError struct {
	FlowId string
	MsgId  uint64
	FromId string
	ToId   string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed flowId=%s msgId=%d fromId=%s toId=%s: %v", e.FlowId, e.MsgId, e.FromId, e.ToId, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
