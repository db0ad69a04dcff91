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

package aspect

import (
	"sync"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOk    = "ok"
	ResultError = "error"
)

var (
	_ types.OnSendAspect      = (*Metrics)(nil)
	_ types.PreDeliverAspect  = (*Metrics)(nil)
	_ types.PostDeliverAspect = (*Metrics)(nil)
	_ prometheus.Collector    = (*Metrics)(nil)
)

// Metrics counts routed messages and deliveries. It is a prometheus.Collector:
// register it once with the registry the process exports.
//
//	m := aspect.NewMetrics()
//	prometheus.MustRegister(m)
//	config := engine.NewConfig(types.WithAspects(m))
type Metrics struct {
	sent       *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	// started holds the PreDeliver time of in-flight envelopes.
	started sync.Map
}

// NewMetrics creates the collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgelink",
			Name:      "messages_sent_total",
			Help:      "Total number of envelopes created by node sends",
		}, []string{"flow"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgelink",
			Name:      "deliveries_total",
			Help:      "Total number of deliveries by destination node and result",
		}, []string{"flow", "node", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgelink",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in the destination's Receive",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"flow", "node"}),
	}
}

// Order runs Metrics before most aspects, so the measured latency includes the
// pre-deliver work of aspects ordered after it.
func (m *Metrics) Order() int {
	return 20
}

func (m *Metrics) OnSend(flow types.Flow, from types.FlowNode, envelopes []*types.Envelope) {
	m.sent.WithLabelValues(flow.Id()).Add(float64(len(envelopes)))
}

func (m *Metrics) PreDeliver(flow types.Flow, envelope *types.Envelope, to types.FlowNode) {
	m.started.Store(envelope, time.Now())
}

func (m *Metrics) PostDeliver(flow types.Flow, envelope *types.Envelope, to types.FlowNode, err error) {
	result := ResultOk
	if err != nil {
		result = ResultError
	}
	m.deliveries.WithLabelValues(flow.Id(), to.Id(), result).Inc()
	if v, ok := m.started.LoadAndDelete(envelope); ok {
		m.latency.WithLabelValues(flow.Id(), to.Id()).Observe(time.Since(v.(time.Time)).Seconds())
	}
}

// Sent returns the counter of envelopes created in a flow.
func (m *Metrics) Sent(flowId string) prometheus.Counter {
	return m.sent.WithLabelValues(flowId)
}

// Deliveries returns the delivery counter of one destination and result.
func (m *Metrics) Deliveries(flowId, nodeId, result string) prometheus.Counter {
	return m.deliveries.WithLabelValues(flowId, nodeId, result)
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.sent.Describe(ch)
	m.deliveries.Describe(ch)
	m.latency.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.sent.Collect(ch)
	m.deliveries.Collect(ch)
	m.latency.Collect(ch)
}
