// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paramsAck(csv string) string {
	return "ACK RP,1:" + csv
}

func TestSetParam_BeforeRead(t *testing.T) {
	d, ft, pub := newTestDriver(t)

	d.SetParam(3, 7)
	require.Equal(t, []string{cmdRP}, d.PendingTx())
	d.TickSlow()
	require.Equal(t, []string{cmdRP + "\r\n"}, ft.written)

	deliver(d, ft, paramsAck(seventeen))

	assert.Equal(t, []string{
		"WP,1:0,1,2,7,4,5,6,7,8,9,0,1,2,3,4,5,6",
		cmdRP,
	}, d.PendingTx())
	assert.Equal(t, 7, d.Params()[3])
	assert.Zero(t, pub.paramCalls, "read ack for a pending write must not publish")
	assert.Zero(t, d.PendingTasks())

	// the confirming read publishes again
	deliver(d, ft, paramsAck("0,1,2,7,4,5,6,7,8,9,0,1,2,3,4,5,6"))
	assert.Equal(t, 9, pub.paramCalls)
	assert.Equal(t, 7, pub.params["operational_speed"])
	assert.Equal(t, 5, pub.params["stop_terminal"])
}

func TestSetParam_QueuedChangesWriteSeparately(t *testing.T) {
	d, ft, _ := newTestDriver(t)

	d.SetParam(3, 7)
	d.SetParam(5, 9)
	assert.Equal(t, []string{cmdRP, cmdRP}, d.PendingTx())
	assert.Equal(t, 2, d.PendingTasks())

	d.mu.Lock()
	d.tx = Queue[string]{}
	d.mu.Unlock()

	deliver(d, ft, paramsAck(seventeen))

	assert.Equal(t, []string{
		"WP,1:0,1,2,7,4,5,6,7,8,9,0,1,2,3,4,5,6",
		cmdRP,
		"WP,1:0,1,2,7,4,9,6,7,8,9,0,1,2,3,4,5,6",
		cmdRP,
	}, d.PendingTx())
}

func TestParams_PublishedWhenNotSuppressed(t *testing.T) {
	d, ft, pub := newTestDriver(t)

	deliver(d, ft, paramsAck(seventeen))

	assert.Equal(t, len(DefaultBindings()), pub.paramCalls)
	assert.Equal(t, 1, pub.params["auto_close"])
	assert.Equal(t, 3, pub.params["operational_speed"])
	assert.Equal(t, 4, pub.params["decel_dist"])
	assert.Equal(t, 3, pub.params["infra1"])
	assert.Empty(t, d.PendingTx())
}

func TestParams_ShortVectorSkipsMissingBindings(t *testing.T) {
	d, ft, pub := newTestDriver(t)

	deliver(d, ft, paramsAck("9,8,7"))

	assert.Equal(t, 1, pub.paramCalls)
	assert.Equal(t, 8, pub.params["auto_close"])
}

func TestParams_ParseErrorKeepsVectorAndTasks(t *testing.T) {
	d, ft, pub := newTestDriver(t)
	deliver(d, ft, paramsAck(seventeen))
	before := d.Params()
	calls := pub.paramCalls

	d.SetParam(2, 1)
	deliver(d, ft, paramsAck("0,1,X,3"))

	assert.Equal(t, before, d.Params())
	assert.Equal(t, 1, d.PendingTasks())
	assert.Equal(t, calls, pub.paramCalls)
	assert.Equal(t, []string{cmdRP}, d.PendingTx())
}

func TestParams_WriteAckClassifiesAsRead(t *testing.T) {
	d, ft, _ := newTestDriver(t)

	deliver(d, ft, "ACK WP,1:4,2")

	assert.Equal(t, Params{4, 2}, d.Params())
}

func TestParams_BareWriteAck(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d, ft, pub := newTestDriver(t, WithMetrics(m))

	deliver(d, ft, paramsAck(seventeen))
	before := d.Params()
	calls := pub.paramCalls

	deliver(d, ft, "ACK WP,1")

	assert.Equal(t, before, d.Params())
	assert.Equal(t, calls, pub.paramCalls)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.parseErrors))
}

func TestParams_MalformedCountsParseError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d, ft, _ := newTestDriver(t, WithMetrics(m))

	deliver(d, ft, paramsAck("0,1,X,3"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseErrors))
}

func TestRequestSetParam_Guard(t *testing.T) {
	d, ft, _ := newTestDriver(t)

	// nothing loaded yet, always requested
	assert.True(t, d.RequestSetParam(3, 3))

	d.mu.Lock()
	d.tx = Queue[string]{}
	d.tasks = Queue[ParamTask]{}
	d.mu.Unlock()

	deliver(d, ft, paramsAck(seventeen))
	assert.False(t, d.RequestSetParam(3, 3))
	assert.Empty(t, d.PendingTx())

	assert.True(t, d.RequestSetParam(3, 4))
	assert.Equal(t, []string{cmdRP}, d.PendingTx())
}

func TestSetParam_OutOfRangeDropped(t *testing.T) {
	d, ft, _ := newTestDriver(t)

	d.SetParam(40, 1)
	d.SetParam(1, 5)
	d.TickSlow()
	d.TickSlow()

	deliver(d, ft, paramsAck(seventeen))

	assert.Equal(t, []string{
		"WP,1:0,5,2,3,4,5,6,7,8,9,0,1,2,3,4,5,6",
		cmdRP,
	}, d.PendingTx())
	assert.Zero(t, d.PendingTasks())
}

func TestRestoreParams(t *testing.T) {
	d, ft, _ := newTestDriver(t)
	deliver(d, ft, paramsAck(seventeen))

	saved := []int{6, 5, 4, 3, 2, 1, 0, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	require.NoError(t, d.RestoreParams(saved))
	saved[0] = 99
	assert.Equal(t, []string{cmdRP}, d.PendingTx())
	d.TickSlow()

	deliver(d, ft, paramsAck(seventeen))
	assert.Equal(t, []string{
		"WP,1:6,5,4,3,2,1,0,9,8,7,6,5,4,3,2,1,0",
		cmdRP,
	}, d.PendingTx())
}

func TestRestoreParams_LengthMismatch(t *testing.T) {
	d, ft, _ := newTestDriver(t)

	err := d.RestoreParams(nil)
	require.ErrorIs(t, err, ErrParamLength)

	deliver(d, ft, paramsAck(seventeen))
	err = d.RestoreParams([]int{1, 2, 3})
	require.ErrorIs(t, err, ErrParamLength)
	assert.Empty(t, d.PendingTx())
}

func TestRestoreParams_DeviceVectorChanged(t *testing.T) {
	d, ft, _ := newTestDriver(t)

	require.NoError(t, d.RestoreParams([]int{1, 2, 3}))
	d.TickSlow()
	deliver(d, ft, paramsAck(seventeen))

	assert.Empty(t, d.PendingTx())
	assert.Zero(t, d.PendingTasks())
	assert.Equal(t, 3, d.Params()[3])
}

func TestParamTask_Apply(t *testing.T) {
	p := Params{1, 2, 3}

	require.NoError(t, ParamTask{Kind: TaskSet, Index: 2, Value: 9}.apply(p))
	assert.Equal(t, Params{1, 2, 9}, p)

	require.ErrorIs(t, ParamTask{Kind: TaskSet, Index: -1}.apply(p), ErrParamIndex)
	require.ErrorIs(t, ParamTask{Kind: TaskSet, Index: 3}.apply(p), ErrParamIndex)

	require.NoError(t, ParamTask{Kind: TaskRestore, Vector: Params{7, 8, 9}}.apply(p))
	assert.Equal(t, Params{7, 8, 9}, p)

	require.ErrorIs(t, ParamTask{Kind: TaskRestore, Vector: Params{1}}.apply(p), ErrParamLength)
	require.Error(t, ParamTask{Kind: TaskKind(9)}.apply(p))
}

func TestQueue(t *testing.T) {
	var q Queue[int]

	_, ok := q.Pop()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)

	q.Push(1)
	q.Push(2)
	items := q.Items()
	items[0] = 42

	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, q.Len())

	v, _ = q.Pop()
	assert.Equal(t, 1, v)
	v, _ = q.Pop()
	assert.Equal(t, 2, v)
	assert.Zero(t, q.Len())
}
