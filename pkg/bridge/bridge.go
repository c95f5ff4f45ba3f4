// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge exposes a driver over MQTT.
//
// State is published retained under a topic prefix:
//
//	<prefix>/availability        online | offline
//	<prefix>/cover/state         open | closed | opening | closing | stopped
//	<prefix>/cover/position      0-100
//	<prefix>/param/<name>        parameter value
//	<prefix>/devinfo             device info text
//	<prefix>/learn_status        learn status text
//
// Commands are accepted on:
//
//	<prefix>/cover/set           OPEN | CLOSE | STOP | TOGGLE
//	<prefix>/cover/set_position  0-100
//	<prefix>/param/<name>/set    integer, or ON | OFF for switches
//	<prefix>/command             protocol verb name, e.g. learn
package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/Thermoquad/gatepro/pkg/gatepro"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Availability payloads
const (
	Online  = "online"
	Offline = "offline"
)

const (
	publishQueueSize = 64
	publishTimeout   = 5 * time.Second
)

// ErrPayload is returned for command payloads that cannot be applied
var ErrPayload = errors.New("invalid payload")

// Controller is the part of the driver the bridge drives
type Controller interface {
	RequestOpen()
	RequestClose()
	RequestStop()
	RequestToggle()
	RequestPosition(p float64) error
	RequestSetParam(index, value int) bool
	RequestCommand(cmd gatepro.Command) error
}

// Options configures a Bridge
type Options struct {
	Broker   string
	Prefix   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

type outbound struct {
	topic    string
	payload  string
	retained bool
}

// Bridge publishes driver state to MQTT and applies MQTT commands to the driver
type Bridge struct {
	ctrl     Controller
	opts     Options
	bindings []driver.ParamBinding
	log      zerolog.Logger

	client  mqtt.Client
	queue   chan outbound
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
}

// New creates a bridge for ctrl. bindings name the parameter topics.
func New(ctrl Controller, opts Options, bindings []driver.ParamBinding, log zerolog.Logger) *Bridge {
	if opts.Prefix == "" {
		opts.Prefix = "gatepro"
	}
	opts.Prefix = strings.TrimSuffix(opts.Prefix, "/")
	if opts.ClientID == "" {
		opts.ClientID = "gatepro-" + uuid.New().String()[:8]
	}
	return &Bridge{
		ctrl:     ctrl,
		opts:     opts,
		bindings: append([]driver.ParamBinding(nil), bindings...),
		log:      log,
		queue:    make(chan outbound, publishQueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Topic joins parts under the bridge prefix
func (b *Bridge) Topic(parts ...string) string {
	return b.opts.Prefix + "/" + strings.Join(parts, "/")
}

// ClientOptions returns paho options for the configured broker, with an
// offline last will and resubscription on reconnect
func (b *Bridge) ClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", b.opts.Broker))
	opts.SetClientID(b.opts.ClientID)
	if b.opts.Username != "" {
		opts.SetUsername(b.opts.Username)
		opts.SetPassword(b.opts.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(b.Topic("availability"), Offline, b.opts.QoS, true)

	opts.OnConnect = func(c mqtt.Client) {
		b.log.Info().Msgf("mqtt: connected to %s", b.opts.Broker)
		if b.started.Load() {
			if err := b.subscribe(c); err != nil {
				b.log.Error().Err(err).Msg("mqtt: resubscribe failed")
			}
			b.enqueue(b.Topic("availability"), Online, true)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warn().Err(err).Msg("mqtt: connection lost")
	}
	return opts
}

// Start connects client, subscribes to the command topics and starts publishing
func (b *Bridge) Start(client mqtt.Client) error {
	b.client = client

	if !client.IsConnected() {
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
	}
	if err := b.subscribe(client); err != nil {
		return err
	}

	b.started.Store(true)
	b.wg.Add(1)
	go b.publishLoop()

	b.enqueue(b.Topic("availability"), Online, true)
	b.log.Info().Msgf("mqtt: bridge started (prefix: %s)", b.opts.Prefix)
	return nil
}

// Stop publishes offline, drains the queue and disconnects
func (b *Bridge) Stop() {
	if !b.started.CompareAndSwap(true, false) {
		return
	}
	close(b.stopCh)
	b.wg.Wait()

	if b.client != nil && b.client.IsConnected() {
		token := b.client.Publish(b.Topic("availability"), b.opts.QoS, true, Offline)
		token.WaitTimeout(publishTimeout)
		b.log.Debug().Msg("mqtt: disconnecting")
		b.client.Disconnect(250)
	}
}

func (b *Bridge) subscribe(c mqtt.Client) error {
	filters := map[string]byte{
		b.Topic("cover", "set"):          b.opts.QoS,
		b.Topic("cover", "set_position"): b.opts.QoS,
		b.Topic("param", "+", "set"):     b.opts.QoS,
		b.Topic("command"):               b.opts.QoS,
	}
	token := c.SubscribeMultiple(filters, func(_ mqtt.Client, m mqtt.Message) {
		if err := b.Handle(m.Topic(), m.Payload()); err != nil {
			b.log.Warn().Err(err).Msgf("mqtt: ignoring %s", m.Topic())
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe: %w", token.Error())
	}
	return nil
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.queue:
			b.publish(msg)
		case <-b.stopCh:
			for {
				select {
				case msg := <-b.queue:
					b.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publish(msg outbound) {
	token := b.client.Publish(msg.topic, b.opts.QoS, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		b.log.Warn().Msgf("mqtt: publish to %s timed out", msg.topic)
		return
	}
	if err := token.Error(); err != nil {
		b.log.Error().Err(err).Msgf("mqtt: failed to publish %s", msg.topic)
		return
	}
	b.log.Debug().Msgf("mqtt: published %s = %s", msg.topic, msg.payload)
}

// enqueue never blocks; the driver calls publishers with its lock held
func (b *Bridge) enqueue(topic, payload string, retained bool) {
	select {
	case b.queue <- outbound{topic: topic, payload: payload, retained: retained}:
	default:
		b.log.Warn().Msgf("mqtt: publish queue full, dropping %s", topic)
	}
}
