// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockClient implements mqtt.Client for testing
type mockClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	published  []publishedMessage
	filters    map[string]byte
	handler    mqtt.MessageHandler
	disconnect int
}

type publishedMessage struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

func newMockClient() *mockClient {
	return &mockClient{}
}

func (m *mockClient) messages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.published...)
}

// last returns the most recent payload published on topic
func (m *mockClient) last(topic string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].topic == topic {
			return m.published[i].payload, true
		}
	}
	return "", false
}

// deliver simulates an inbound message on the subscription
func (m *mockClient) deliver(topic, payload string) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h(m, &mockMessage{topic: topic, payload: []byte(payload)})
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *mockClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return &mockToken{err: m.connectErr}
	}
	m.connected = true
	return &mockToken{complete: true}
}

func (m *mockClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnect++
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{
		topic:    topic,
		payload:  payload.(string),
		qos:      qos,
		retained: retained,
	})
	return &mockToken{complete: true}
}

func (m *mockClient) Subscribe(topic string, qos byte, h mqtt.MessageHandler) mqtt.Token {
	return m.SubscribeMultiple(map[string]byte{topic: qos}, h)
}

func (m *mockClient) SubscribeMultiple(filters map[string]byte, h mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = filters
	m.handler = h
	return &mockToken{complete: true}
}

func (*mockClient) Unsubscribe(_ ...string) mqtt.Token {
	return &mockToken{complete: true}
}

func (*mockClient) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (*mockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockToken implements mqtt.Token for testing
type mockToken struct {
	err      error
	complete bool
}

func (*mockToken) Wait() bool {
	return true
}

func (t *mockToken) WaitTimeout(_ time.Duration) bool {
	return t.complete
}

func (*mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *mockToken) Error() error {
	return t.err
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (*mockMessage) Duplicate() bool   { return false }
func (*mockMessage) Qos() byte         { return 0 }
func (*mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string   { return m.topic }
func (*mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (*mockMessage) Ack()              {}
