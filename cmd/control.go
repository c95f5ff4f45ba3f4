// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/Thermoquad/gatepro/pkg/gatepro"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the gate",
	Long: `Control a GatePro gate via an interactive terminal UI.

Features:
  - Live position and motion display
  - Open, close, stop, toggle and step the gate to a position
  - Parameter list with in place editing
  - Auto learn and device info requests
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// rxBacklog bounds messages waiting to reach the TUI
const rxBacklog = 256

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The hook runs under the driver lock, so it must never block on the TUI
	rx := make(chan gatepro.RawMessage, rxBacklog)
	hook := func(msg gatepro.RawMessage) {
		select {
		case rx <- msg:
		default:
		}
	}

	events := make(chan tea.Msg, 16)
	stateFunc := func(connected bool, info string) {
		var msg tea.Msg = connectionLostMsg{}
		if connected {
			msg = reconnectedMsg{connInfo: info}
		}
		select {
		case events <- msg:
		default:
		}
	}

	// TUI owns the terminal
	logger = logger.Level(zerolog.Disabled)

	sess, err := openSession(ctx, true, stateFunc, driver.WithMessageHook(hook))
	if err != nil {
		return err
	}
	defer sess.Close()

	m := initialControlModel(sess.driver, sess.Info())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-rx:
				p.Send(controlRxMsg{msg: msg})
			case ev := <-events:
				p.Send(ev)
			}
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	cancel()
	return <-runErr
}
