// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestBridge(t *testing.T) (*Bridge, *driver.Driver, *mockClient) {
	t.Helper()
	d := driver.New(nil)
	b := New(d, Options{Prefix: "gate/"}, driver.DefaultBindings(), zerolog.Nop())
	client := newMockClient()
	require.NoError(t, b.Start(client))
	t.Cleanup(b.Stop)
	return b, d, client
}

func eventually(t *testing.T, client *mockClient, topic, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, ok := client.last(topic)
		return ok && got == want
	}, time.Second, time.Millisecond, "%s never became %q", topic, want)
}

func TestNew_Defaults(t *testing.T) {
	b := New(driver.New(nil), Options{}, nil, zerolog.Nop())

	assert.Equal(t, "gatepro/cover/state", b.Topic("cover", "state"))
	assert.True(t, strings.HasPrefix(b.opts.ClientID, "gatepro-"))
	assert.Len(t, b.opts.ClientID, len("gatepro-")+8)
}

func TestClientOptions(t *testing.T) {
	b := New(driver.New(nil), Options{Broker: "broker.local:1883", Username: "gate", Password: "pw"}, nil, zerolog.Nop())
	opts := b.ClientOptions()

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
	assert.Equal(t, "gate", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "gatepro/availability", opts.WillTopic)
	assert.Equal(t, []byte(Offline), opts.WillPayload)
	assert.True(t, opts.WillRetained)
}

func TestStart(t *testing.T) {
	_, _, client := newTestBridge(t)

	assert.True(t, client.IsConnected())
	assert.Equal(t, map[string]byte{
		"gate/cover/set":          0,
		"gate/cover/set_position": 0,
		"gate/param/+/set":        0,
		"gate/command":            0,
	}, client.filters)
	eventually(t, client, "gate/availability", Online)
}

func TestStart_ConnectError(t *testing.T) {
	b := New(driver.New(nil), Options{}, nil, zerolog.Nop())
	client := newMockClient()
	client.connectErr = errors.New("refused")

	err := b.Start(client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	b.Stop()
}

func TestStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := driver.New(nil)
	b := New(d, Options{Prefix: "gate"}, nil, zerolog.Nop())
	client := newMockClient()
	require.NoError(t, b.Start(client))

	b.PublishDeviceInfo("P500BU")
	b.Stop()
	b.Stop()

	msgs := client.messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "gate/availability", last.topic)
	assert.Equal(t, Offline, last.payload)
	assert.True(t, last.retained)
	assert.Equal(t, 1, client.disconnect)

	got, ok := client.last("gate/devinfo")
	require.True(t, ok, "queued messages are flushed on stop")
	assert.Equal(t, "P500BU", got)
}

func TestPublishCover(t *testing.T) {
	b, _, client := newTestBridge(t)

	b.PublishCover(driver.CoverState{Operation: driver.OperationOpening, Position: 0.523, PositionKnown: true})
	eventually(t, client, "gate/cover/state", "opening")
	eventually(t, client, "gate/cover/position", "52")

	b.PublishCover(driver.CoverState{Position: 1.27, PositionKnown: true})
	eventually(t, client, "gate/cover/position", "100")
}

func TestPublishCover_UnknownPosition(t *testing.T) {
	b, _, client := newTestBridge(t)

	b.PublishCover(driver.CoverState{})
	eventually(t, client, "gate/cover/state", "stopped")

	_, ok := client.last("gate/cover/position")
	assert.False(t, ok)
}

func TestPublishParam(t *testing.T) {
	b, _, client := newTestBridge(t)

	b.PublishParam(driver.ParamBinding{Name: "max_amp", Index: 6}, 4)
	b.PublishParam(driver.ParamBinding{Name: "infra1", Index: 13, Kind: driver.ParamSwitch}, 1)
	b.PublishParam(driver.ParamBinding{Name: "infra2", Index: 14, Kind: driver.ParamSwitch}, 0)
	b.PublishLearnStatus("DONE")

	eventually(t, client, "gate/param/max_amp", "4")
	eventually(t, client, "gate/param/infra1", "ON")
	eventually(t, client, "gate/param/infra2", "OFF")
	eventually(t, client, "gate/learn_status", "DONE")
}

func TestDriverPublishesThroughBridge(t *testing.T) {
	b := New(nil, Options{Prefix: "gate"}, nil, zerolog.Nop())
	d := driver.New(nil, driver.WithPublisher(b))
	b.ctrl = d
	client := newMockClient()
	require.NoError(t, b.Start(client))
	defer b.Stop()

	d.TickSlow()
	eventually(t, client, "gate/cover/state", "stopped")
}

func TestHandle_CoverSet(t *testing.T) {
	tests := []struct {
		payload string
		want    []string
	}{
		{"OPEN", []string{"FULL OPEN;src=P00287D7"}},
		{"close", nil}, // already at position 0
		{"STOP", nil},  // idle
		{" toggle ", []string{"FULL OPEN;src=P00287D7"}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			_, d, client := newTestBridge(t)
			d.Setup()
			before := len(d.PendingTx())

			client.deliver("gate/cover/set", tt.payload)

			assert.Equal(t, tt.want, nilIfEmpty(d.PendingTx()[before:]))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestHandle_SetPosition(t *testing.T) {
	b, d, _ := newTestBridge(t)

	require.NoError(t, b.Handle("gate/cover/set_position", []byte("60")))

	s := d.State()
	assert.True(t, s.HasTarget)
	assert.InDelta(t, 0.6, s.Target, 1e-9)
	assert.Equal(t, []string{"FULL OPEN;src=P00287D7"}, d.PendingTx())
}

func TestHandle_Param(t *testing.T) {
	b, d, _ := newTestBridge(t)

	require.NoError(t, b.Handle("gate/param/operational_speed/set", []byte("7")))
	require.NoError(t, b.Handle("gate/param/infra1/set", []byte("ON")))

	assert.Equal(t, 2, d.PendingTasks())
	assert.Equal(t, []string{"RP,1:;src=P00287D7", "RP,1:;src=P00287D7"}, d.PendingTx())
}

func TestHandle_Command(t *testing.T) {
	b, d, _ := newTestBridge(t)

	require.NoError(t, b.Handle("gate/command", []byte("LEARN")))
	require.NoError(t, b.Handle("gate/command", []byte("remote_learn")))

	assert.Equal(t, []string{"AUTO LEARN;src=P00287D7", "REMOTE LEARN;src=P00287D7"}, d.PendingTx())
}

func TestHandle_Errors(t *testing.T) {
	b, d, _ := newTestBridge(t)

	tests := []struct {
		topic   string
		payload string
	}{
		{"gate/cover/set", "FLY"},
		{"gate/cover/set_position", "abc"},
		{"gate/cover/set_position", "101"},
		{"gate/cover/set_position", "-1"},
		{"gate/param/nope/set", "1"},
		{"gate/param/max_amp/set", "lots"},
		{"gate/param/infra1/set", "MAYBE"},
		{"gate/command", "self_destruct"},
	}
	for _, tt := range tests {
		err := b.Handle(tt.topic, []byte(tt.payload))
		require.ErrorIs(t, err, ErrPayload, "%s %s", tt.topic, tt.payload)
	}

	require.Error(t, b.Handle("other/cover/set", []byte("OPEN")))
	require.Error(t, b.Handle("gate/cover/get", []byte("OPEN")))
	assert.Empty(t, d.PendingTx())
}

func TestParseParamValue(t *testing.T) {
	for in, want := range map[string]int{"ON": 1, "on": 1, "1": 1, "true": 1, "OFF": 0, "0": 0, "False": 0} {
		got, err := parseParamValue(driver.ParamSwitch, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := parseParamValue(driver.ParamNumber, "42")
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
