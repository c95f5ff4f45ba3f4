// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package driver holds the GatePro device state machine and the parameter
// read-before-write coordinator.
//
// A Driver never blocks and owns no timers. An external scheduler calls
// TickFast to read the transport and apply at most one inbound message, and
// TickSlow to publish state, send at most one queued command and run the
// position housekeeping. Every public method takes the driver lock, so
// requests may come from any goroutine.
package driver

import (
	"sync"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/rs/zerolog"
)

// AfterTickMax is the default number of extra cover publishes after the
// position stops changing
const AfterTickMax = 10

// Transport is the non-blocking byte stream the driver talks through
type Transport interface {
	// Available returns the number of bytes that can be read without blocking
	Available() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// MessageHook observes every framed inbound message before it is applied
type MessageHook func(msg gatepro.RawMessage)

// Driver is one GatePro controller connection
type Driver struct {
	mu sync.Mutex

	transport Transport
	framer    *gatepro.Framer
	log       zerolog.Logger
	pub       Publisher
	bindings  []ParamBinding
	metrics   *Metrics
	hook      MessageHook

	rx    Queue[gatepro.RawMessage]
	tx    Queue[string]
	tasks Queue[ParamTask]

	state       CoverState
	params      Params
	paramNoPub  bool
	devInfo     string
	learnStatus string

	// debounced cover publishing
	debounceMax  int
	lastPosition float64
	lastOp       Operation
	published    bool

	maxFrameBuffer int
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the logger used for protocol traffic and errors
func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// WithPublisher sets the consumer of published state
func WithPublisher(p Publisher) Option {
	return func(d *Driver) {
		d.pub = p
	}
}

// WithBindings replaces the default parameter bindings
func WithBindings(b []ParamBinding) Option {
	return func(d *Driver) {
		d.bindings = append([]ParamBinding(nil), b...)
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithMaxFrameBuffer caps the receive buffer, see gatepro.WithMaxBuffer
func WithMaxFrameBuffer(n int) Option {
	return func(d *Driver) {
		d.maxFrameBuffer = n
	}
}

// WithDebounceTicks sets how many extra cover publishes follow the last change
func WithDebounceTicks(n int) Option {
	return func(d *Driver) {
		d.debounceMax = n
	}
}

// WithMessageHook registers a callback for every framed inbound message.
// The hook runs with the driver lock held.
func WithMessageHook(h MessageHook) Option {
	return func(d *Driver) {
		d.hook = h
	}
}

// New creates a driver on top of t. Call Setup before ticking.
func New(t Transport, opts ...Option) *Driver {
	d := &Driver{
		transport:   t,
		log:         zerolog.Nop(),
		pub:         NopPublisher{},
		bindings:    DefaultBindings(),
		debounceMax: AfterTickMax,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.framer = gatepro.NewFramer(gatepro.WithMaxBuffer(d.maxFrameBuffer))
	return d
}

// Setup resets the cover state for startup and queues the initial reads
func (d *Driver) Setup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug().Msg("setting up gatepro driver")
	d.state = CoverState{
		Operation:     OperationIdle,
		LastOperation: OperationClosing,
		Startup:       true,
	}
	d.queueCommand(gatepro.CmdReadStatus)
	d.queueCommand(gatepro.CmdReadParams)
	d.queueCommand(gatepro.CmdDevInfo)
	d.queueCommand(gatepro.CmdReadLearnStatus)
}

// TickFast reads pending transport bytes and applies at most one message
func (d *Driver) TickFast() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.readTransport()

	msg, ok := d.rx.Pop()
	if !ok {
		return
	}
	if d.hook != nil {
		d.hook(msg)
	}
	d.process(msg)
}

// TickSlow publishes state, sends at most one command and runs the
// position housekeeping
func (d *Driver) TickSlow() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.publishCover()
	d.stopAtTarget()

	d.writeTransport()

	if d.state.Operation != OperationIdle {
		d.queueCommand(gatepro.CmdReadStatus)
	}

	d.correctEndPosition()

	if d.state.Startup && d.state.PositionKnown {
		d.state.Startup = false
		d.log.Debug().Msgf("startup finished at position %.2f", d.state.Position)
	}

	d.metrics.observe(d.state, d.tx.Len())
}

func (d *Driver) readTransport() {
	escaped := ""
	if d.transport != nil {
		if n := d.transport.Available(); n > 0 {
			buf := make([]byte, n)
			read, err := d.transport.Read(buf)
			if err != nil {
				d.log.Error().Err(err).Msg("transport read failed")
				d.metrics.transportError()
			}
			if read > 0 {
				escaped = gatepro.Escape(buf[:read])
			}
		}
	}

	// Feed even without new bytes so a backlog drains one message per tick
	msg, ok, err := d.framer.Feed(escaped)
	if err != nil {
		d.log.Warn().Err(err).Msg("receive buffer discarded")
		d.metrics.framingError()
		return
	}
	if ok {
		d.rx.Push(msg)
		d.log.Debug().Msgf("UART RX[%d]: %s", d.rx.Len(), msg)
	}
}

func (d *Driver) writeTransport() {
	cmd, ok := d.tx.Peek()
	if !ok {
		return
	}
	out := cmd + gatepro.TxDelimiter
	d.log.Debug().Msgf("UART TX[%d]: %s", d.tx.Len(), cmd)
	d.tx.Pop()

	if d.transport == nil {
		return
	}
	if _, err := d.transport.Write([]byte(out)); err != nil {
		d.log.Error().Err(err).Msgf("failed to send %q", cmd)
		d.metrics.transportError()
		return
	}
	d.metrics.commandSent()
}

func (d *Driver) queueCommand(cmd gatepro.Command) {
	d.log.Debug().Msgf("queuing cmd: %s", cmd)
	d.tx.Push(cmd.String())
}

func (d *Driver) process(msg gatepro.RawMessage) {
	msgType := gatepro.Classify(msg)
	d.metrics.message(msgType)

	switch msgType {
	case gatepro.MsgAckStatus:
		d.handleStatus(msg)
	case gatepro.MsgAckReadParams:
		d.handleParams(msg)
	case gatepro.MsgMotorEvent:
		d.handleMotorEvent(msg)
	case gatepro.MsgAckDevInfo:
		d.devInfo = gatepro.TextPayload(msg)
		d.pub.PublishDeviceInfo(d.devInfo)
	case gatepro.MsgAckLearnStatus:
		d.learnStatus = gatepro.TextPayload(msg)
		d.pub.PublishLearnStatus(d.learnStatus)
	case gatepro.MsgAckWriteParams:
		d.log.Debug().Msg("write params acknowledged")
	default:
		d.log.Debug().Msgf("unknown message type: %s", msg.Body())
	}
}

// State returns a copy of the cover state
func (d *Driver) State() CoverState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Params returns a copy of the last parameter vector read from the device
func (d *Driver) Params() Params {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.Clone()
}

// Bindings returns the configured parameter bindings
func (d *Driver) Bindings() []ParamBinding {
	return append([]ParamBinding(nil), d.bindings...)
}

// DeviceInfo returns the last device info text
func (d *Driver) DeviceInfo() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devInfo
}

// LearnStatus returns the last learn status text
func (d *Driver) LearnStatus() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.learnStatus
}

// PendingTx returns the commands waiting to be sent, oldest first
func (d *Driver) PendingTx() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx.Items()
}

// PendingTasks returns the number of parameter tasks waiting for a read ack
func (d *Driver) PendingTasks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tasks.Len()
}
