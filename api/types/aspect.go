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
	"sort"
)

// Aspects are the instrumentation points of message routing. They let callers
// observe traffic (logging, metrics, tracing) without touching node code.
//
// For every SendMany call the router fires, in this order:
//
//	OnSend       once for the whole batch, before any envelope is processed
//	PreRoute     once per envelope, before its clone is materialized
//	PreDeliver   once per envelope, after the destination kind was accepted
//	PostDeliver  once per envelope, after the destination's Receive returned
//
// Envelopes are processed in port-then-wire order.

// Envelope is the routing unit created for each (message, wire) pair. It only
// lives for one delivery pass.
type Envelope struct {
	// Msg is the message handed to the destination.
	Msg *Msg
	// Clone is true when the destination receives a copy rather than the
	// original message. Every wire but the first of a port is cloned.
	Clone bool
	// FromId is the sending node id.
	FromId string
	// FromPort is the output port index of the sender.
	FromPort int
	// To is the destination handle in the flow arena.
	To NodeHandle
	// ToId is the destination node id.
	ToId string
}

// Aspect is the base interface of all routing aspects.
type Aspect interface {
	// Order returns the execution order; smaller values run first.
	Order() int
}

// OnSendAspect observes a whole batch. Implementations may inspect the
// envelopes but must not add or remove any.
type OnSendAspect interface {
	Aspect
	OnSend(flow Flow, from FlowNode, envelopes []*Envelope)
}

// PreRouteAspect runs before an envelope's clone decision is materialized.
type PreRouteAspect interface {
	Aspect
	PreRoute(flow Flow, envelope *Envelope)
}

// PreDeliverAspect runs once the destination is confirmed and the message final.
type PreDeliverAspect interface {
	Aspect
	PreDeliver(flow Flow, envelope *Envelope, to FlowNode)
}

// PostDeliverAspect runs after the destination's Receive returned. err is the
// delivery error, if any.
type PostDeliverAspect interface {
	Aspect
	PostDeliver(flow Flow, envelope *Envelope, to FlowNode, err error)
}

// AspectList is an ordered collection of aspects.
type AspectList []Aspect

// Sorted returns a copy ordered by Order, stable for equal values.
func (list AspectList) Sorted() AspectList {
	out := append(AspectList(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order() < out[j].Order()
	})
	return out
}

// RoutingAspects splits the list into the four hook points, each in order.
func (list AspectList) RoutingAspects() (onSend []OnSendAspect, preRoute []PreRouteAspect, preDeliver []PreDeliverAspect, postDeliver []PostDeliverAspect) {
	for _, item := range list.Sorted() {
		if a, ok := item.(OnSendAspect); ok {
			onSend = append(onSend, a)
		}
		if a, ok := item.(PreRouteAspect); ok {
			preRoute = append(preRoute, a)
		}
		if a, ok := item.(PreDeliverAspect); ok {
			preDeliver = append(preDeliver, a)
		}
		if a, ok := item.(PostDeliverAspect); ok {
			postDeliver = append(postDeliver, a)
		}
	}
	return
}
