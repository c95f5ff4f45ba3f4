// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scheduler drives a tick based component at two cadences
package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default cadences
const (
	DefaultFast = 20 * time.Millisecond
	DefaultSlow = time.Second
)

// Ticker is a component with a fast processing phase and a slow update phase
type Ticker interface {
	TickFast()
	TickSlow()
}

// Runner calls TickFast and TickSlow on their own intervals
type Runner struct {
	Fast  time.Duration
	Slow  time.Duration
	Clock clockwork.Clock
}

// New returns a Runner with the default cadences on the real clock
func New() *Runner {
	return &Runner{
		Fast:  DefaultFast,
		Slow:  DefaultSlow,
		Clock: clockwork.NewRealClock(),
	}
}

// Run ticks t until ctx is cancelled. Ticks never overlap.
func (r *Runner) Run(ctx context.Context, t Ticker) error {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fastEvery := r.Fast
	if fastEvery <= 0 {
		fastEvery = DefaultFast
	}
	slowEvery := r.Slow
	if slowEvery <= 0 {
		slowEvery = DefaultSlow
	}

	fast := clock.NewTicker(fastEvery)
	defer fast.Stop()
	slow := clock.NewTicker(slowEvery)
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fast.Chan():
			t.TickFast()
		case <-slow.Chan():
			t.TickSlow()
		}
	}
}
