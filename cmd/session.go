// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/Thermoquad/gatepro/pkg/scheduler"
	"github.com/Thermoquad/gatepro/pkg/transport"
	"github.com/jonboulle/clockwork"
)

// session ties a reconnecting link, the driver, and its tick scheduler together
type session struct {
	link   *transport.Link
	driver *driver.Driver
	runner *scheduler.Runner
}

// openSession connects using the loaded configuration and sets the driver up.
// With reconnect set the link redials after a lost connection.
func openSession(ctx context.Context, reconnect bool, stateFunc transport.StateFunc, opts ...driver.Option) (*session, error) {
	c := newConnector(cfg.Connection)
	conn, info, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}

	var dial transport.DialFunc
	if reconnect {
		dial = c.Dial(ctx)
	}
	linkOpts := []transport.LinkOption{transport.WithLinkLogger(logger)}
	if stateFunc != nil {
		linkOpts = append(linkOpts, transport.WithStateFunc(stateFunc))
	}
	link := transport.NewLink(conn, info, dial, linkOpts...)

	base := []driver.Option{
		driver.WithLogger(logger),
		driver.WithBindings(cfg.Bindings()),
		driver.WithDebounceTicks(cfg.Driver.DebounceTicks),
	}
	if cfg.Driver.MaxFrameBuffer > 0 {
		base = append(base, driver.WithMaxFrameBuffer(cfg.Driver.MaxFrameBuffer))
	}
	drv := driver.New(link, append(base, opts...)...)

	return &session{
		link:   link,
		driver: drv,
		runner: &scheduler.Runner{
			Fast:  time.Duration(cfg.Scheduler.Fast),
			Slow:  time.Duration(cfg.Scheduler.Slow),
			Clock: clockwork.NewRealClock(),
		},
	}, nil
}

// Run starts the link, queues the setup commands, and ticks the driver until
// ctx is cancelled or the link gives up
func (s *session) Run(ctx context.Context) error {
	s.link.Start()
	s.driver.Setup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.link.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.runner.Run(ctx, s.driver)
	select {
	case <-s.link.Done():
		return fmt.Errorf("connection closed: %s", s.link.Info())
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close shuts the link down
func (s *session) Close() error {
	return s.link.Close()
}

// Info describes the current connection
func (s *session) Info() string {
	return s.link.Info()
}
