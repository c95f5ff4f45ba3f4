// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gatepro"

// Metrics holds the driver's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	messages      *prometheus.CounterVec
	motorEvents   *prometheus.CounterVec
	parseErrors   prometheus.Counter
	framingErrors prometheus.Counter
	commandsSent  prometheus.Counter
	txErrors      prometheus.Counter
	txQueue       prometheus.Gauge
	position      prometheus.Gauge
	operation     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Framed messages received, by message type",
		}, []string{"type"}),
		motorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "motor_events_total",
			Help:      "Motor events received, by event",
		}, []string{"event"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parse_errors_total",
			Help:      "Messages dropped because a field failed to decode",
		}),
		framingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "framing_errors_total",
			Help:      "Receive buffer overflows",
		}),
		commandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to the transport",
		}),
		txErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transport_errors_total",
			Help:      "Transport read and write failures",
		}),
		txQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tx_queue_length",
			Help:      "Commands waiting to be sent",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cover_position",
			Help:      "Last known cover position, 0 closed to 1 open",
		}),
		operation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cover_operation",
			Help:      "Current operation: 0 idle, 1 opening, 2 closing",
		}),
	}

	reg.MustRegister(
		m.messages,
		m.motorEvents,
		m.parseErrors,
		m.framingErrors,
		m.commandsSent,
		m.txErrors,
		m.txQueue,
		m.position,
		m.operation,
	)
	return m
}

func (m *Metrics) message(t gatepro.MsgType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(gatepro.FormatMessageType(t)).Inc()
}

func (m *Metrics) motorEvent(ev gatepro.MotorEvent) {
	if m == nil {
		return
	}
	m.motorEvents.WithLabelValues(gatepro.FormatMotorEvent(ev)).Inc()
}

func (m *Metrics) parseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) framingError() {
	if m == nil {
		return
	}
	m.framingErrors.Inc()
}

func (m *Metrics) commandSent() {
	if m == nil {
		return
	}
	m.commandsSent.Inc()
}

func (m *Metrics) transportError() {
	if m == nil {
		return
	}
	m.txErrors.Inc()
}

func (m *Metrics) observe(state CoverState, txLen int) {
	if m == nil {
		return
	}
	m.txQueue.Set(float64(txLen))
	m.position.Set(state.Position)
	m.operation.Set(float64(state.Operation))
}
