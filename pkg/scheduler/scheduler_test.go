// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingTicker struct {
	fast atomic.Int64
	slow atomic.Int64
}

func (c *countingTicker) TickFast() { c.fast.Add(1) }
func (c *countingTicker) TickSlow() { c.slow.Add(1) }

func TestRunner_Cadence(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := clockwork.NewFakeClock()
	r := &Runner{Fast: 100 * time.Millisecond, Slow: time.Second, Clock: clock}
	ticker := &countingTicker{}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, ticker)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))

	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		want := int64(i + 1)
		require.Eventually(t, func() bool { return ticker.fast.Load() == want }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return ticker.slow.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, int64(10), ticker.fast.Load())
}

func TestRunner_Defaults(t *testing.T) {
	r := New()
	assert.Equal(t, DefaultFast, r.Fast)
	assert.Equal(t, DefaultSlow, r.Slow)
	assert.NotNil(t, r.Clock)
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&Runner{}).Run(ctx, &countingTicker{})
	require.ErrorIs(t, err, context.Canceled)
}
