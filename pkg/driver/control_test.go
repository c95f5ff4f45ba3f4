// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"bytes"
	"testing"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPosition(t *testing.T) {
	tests := []struct {
		name       string
		position   float64
		operation  Operation
		request    float64
		wantTx     []string
		wantTarget bool
	}{
		{"same position", 0.5, OperationIdle, 0.5, nil, false},
		{"open further", 0.2, OperationIdle, 0.6, []string{cmdOpen}, true},
		{"close further", 0.8, OperationIdle, 0.3, []string{cmdShut}, true},
		{"already opening", 0.2, OperationOpening, 0.9, nil, true},
		{"reverse while opening", 0.5, OperationOpening, 0.1, []string{cmdShut}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := newTestDriver(t)
			d.state.Position = tt.position
			d.state.Operation = tt.operation

			require.NoError(t, d.RequestPosition(tt.request))

			assert.Equal(t, tt.wantTx, nilIfEmpty(d.PendingTx()))
			s := d.State()
			assert.Equal(t, tt.wantTarget, s.HasTarget)
			if tt.wantTarget {
				assert.Equal(t, tt.request, s.Target)
			}
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestRequestPosition_OutOfRange(t *testing.T) {
	d, _, _ := newTestDriver(t)

	require.ErrorIs(t, d.RequestPosition(-0.1), ErrPositionRange)
	require.ErrorIs(t, d.RequestPosition(1.5), ErrPositionRange)
	assert.Empty(t, d.PendingTx())
}

func TestRequestStop(t *testing.T) {
	tests := []struct {
		name      string
		operation Operation
		finished  bool
		want      []string
	}{
		{"idle", OperationIdle, false, nil},
		{"moving", OperationOpening, false, []string{cmdStop}},
		{"moving after finish", OperationClosing, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := newTestDriver(t)
			d.state.Operation = tt.operation
			d.state.OperationFinished = tt.finished

			d.RequestStop()

			assert.Equal(t, tt.want, nilIfEmpty(d.PendingTx()))
		})
	}
}

func TestRequestOpenClose(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.state.Position = 0.4

	d.RequestOpen()
	d.RequestClose()

	assert.Equal(t, []string{cmdOpen, cmdShut}, d.PendingTx())
	assert.Equal(t, 0.0, d.State().Target)
}

func TestRequestToggle(t *testing.T) {
	tests := []struct {
		name      string
		operation Operation
		last      Operation
		position  float64
		want      []string
	}{
		{"moving stops", OperationOpening, OperationOpening, 0.5, []string{cmdStop}},
		{"after closing opens", OperationIdle, OperationClosing, 0.0, []string{cmdOpen}},
		{"after opening closes", OperationIdle, OperationOpening, 0.5, []string{cmdShut}},
		{"open end closes", OperationIdle, OperationClosing, 1.0, []string{cmdShut}},
		{"nearly open closes", OperationIdle, OperationClosing, 0.99, []string{cmdShut}},
		{"closed end opens", OperationIdle, OperationOpening, 0.0, []string{cmdOpen}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := newTestDriver(t)
			d.state.Operation = tt.operation
			d.state.LastOperation = tt.last
			d.state.Position = tt.position

			d.RequestToggle()

			assert.Equal(t, tt.want, d.PendingTx())
		})
	}
}

func TestRequestToggle_OpenAfterSetup(t *testing.T) {
	d, ft, _ := newTestDriver(t)
	d.Setup()
	d.mu.Lock()
	d.tx = Queue[string]{}
	d.mu.Unlock()

	deliver(d, ft, status("00", "64"))
	require.Equal(t, OperationClosing, d.State().LastOperation)
	require.Equal(t, 1.0, d.State().Position)

	d.RequestToggle()

	assert.Equal(t, []string{cmdShut}, d.PendingTx())
}

func TestRequestCommand(t *testing.T) {
	d, _, _ := newTestDriver(t)

	require.NoError(t, d.RequestCommand(gatepro.CmdLearn))
	require.NoError(t, d.RequestCommand(gatepro.CmdRemoteLearn))
	require.ErrorIs(t, d.RequestCommand(gatepro.CmdWriteParams), ErrCommand)
	require.ErrorIs(t, d.RequestCommand(gatepro.CmdNone), ErrCommand)
	require.ErrorIs(t, d.RequestCommand(gatepro.Command(200)), ErrCommand)

	assert.Equal(t, []string{
		"AUTO LEARN;src=P00287D7",
		"REMOTE LEARN;src=P00287D7",
	}, d.PendingTx())
}

func TestTargetStopsThenClears(t *testing.T) {
	d, ft, _ := newTestDriver(t)
	d.state.Position = 0.2
	d.state.PositionKnown = true

	require.NoError(t, d.RequestPosition(0.6))
	d.TickSlow()
	assert.Equal(t, []string{cmdOpen + "\r\n"}, ft.written)

	deliver(d, ft, motor("Opening"))
	deliver(d, ft, status("00", "BA")) // 186-128
	d.TickSlow()
	assert.Equal(t, cmdStop+"\r\n", ft.written[len(ft.written)-1])

	deliver(d, ft, motor("Stopped"))
	s := d.State()
	assert.False(t, s.HasTarget)
	assert.Equal(t, OperationIdle, s.Operation)
	assert.InDelta(t, 0.58, s.Position, 1e-9)
	assert.Equal(t, "stopped", s.Label())
}

func TestCoverStateLabel(t *testing.T) {
	tests := []struct {
		state CoverState
		want  string
	}{
		{CoverState{Operation: OperationOpening}, "opening"},
		{CoverState{Operation: OperationClosing}, "closing"},
		{CoverState{Position: 1, PositionKnown: true}, "open"},
		{CoverState{Position: 0, PositionKnown: true}, "closed"},
		{CoverState{Position: 0.3, PositionKnown: true}, "stopped"},
		{CoverState{}, "stopped"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.Label())
	}
	assert.Equal(t, 58, CoverState{Position: 0.58}.Percent())
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "idle", OperationIdle.String())
	assert.Equal(t, "opening", OperationOpening.String())
	assert.Equal(t, "closing", OperationClosing.String())
}

func TestMultiPublisher(t *testing.T) {
	a, b := newRecordingPublisher(), newRecordingPublisher()
	m := MultiPublisher{a, b}

	m.PublishCover(CoverState{Position: 1})
	m.PublishParam(ParamBinding{Name: "max_amp", Index: 6}, 4)
	m.PublishDeviceInfo("dev")
	m.PublishLearnStatus("ok")

	for _, p := range []*recordingPublisher{a, b} {
		assert.Len(t, p.covers, 1)
		assert.Equal(t, 4, p.params["max_amp"])
		assert.Equal(t, []string{"dev"}, p.devInfo)
		assert.Equal(t, []string{"ok"}, p.learnStatus)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := LogPublisher{Logger: zerolog.New(&buf)}

	p.PublishCover(CoverState{Position: 1, PositionKnown: true})
	p.PublishParam(ParamBinding{Name: "infra1", Index: 13, Kind: ParamSwitch}, 1)

	out := buf.String()
	assert.Contains(t, out, `"state":"open"`)
	assert.Contains(t, out, `"name":"infra1"`)
}

func TestFindBinding(t *testing.T) {
	b, ok := FindBinding(DefaultBindings(), "ped_dura")
	require.True(t, ok)
	assert.Equal(t, 7, b.Index)
	assert.Equal(t, "number", b.Kind.String())

	b, ok = FindBinding(DefaultBindings(), "infra2")
	require.True(t, ok)
	assert.Equal(t, "switch", b.Kind.String())

	_, ok = FindBinding(DefaultBindings(), "nope")
	assert.False(t, ok)
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d, ft, _ := newTestDriver(t, WithMetrics(m))
	d.Setup()

	deliver(d, ft, status("00", "B4"))
	deliver(d, ft, motor("Opened"))
	d.TickSlow()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.position))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.operation))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.txQueue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("ACK_STATUS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.motorEvents.WithLabelValues("OPENED")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.message(gatepro.MsgAckStatus)
		m.parseError()
		m.observe(CoverState{}, 0)
	})
}
