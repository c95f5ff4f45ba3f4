// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/Thermoquad/gatepro/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	monitorStats int
	monitorPoll  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display raw message log in human-readable format",
	Long: `Continuously frame and display GatePro messages as they arrive.

Each message is shown with a timestamp, its classification, and the decoded
fields (position, direction, parameter vector, motor event, text).

The controller only answers requests, so --poll sends a status request every
second. --stats prints a message and error summary at the given interval.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorStats, "stats", 0, "Statistics interval in seconds (0 disables)")
	monitorCmd.Flags().BoolVar(&monitorPoll, "poll", false, "Send a status request every second")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Gatepro - Message Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var mu sync.Mutex
	framer := gatepro.NewFramer(gatepro.WithMaxBuffer(cfg.Driver.MaxFrameBuffer))
	stats := gatepro.NewStatistics()

	errChan := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				mu.Lock()
				printMessages(framer, stats, gatepro.Escape(buf[:n]))
				mu.Unlock()
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	var statsC, pollC <-chan time.Time
	if monitorStats > 0 {
		t := time.NewTicker(time.Duration(monitorStats) * time.Second)
		defer t.Stop()
		statsC = t.C
	}
	if monitorPoll {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		pollC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			if monitorStats > 0 {
				mu.Lock()
				fmt.Print(stats.String())
				mu.Unlock()
			}
			return nil
		case err := <-errChan:
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, transport.ErrConnectionClosed) {
				logger.Info().Msg("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		case <-statsC:
			mu.Lock()
			fmt.Print(stats.String())
			mu.Unlock()
		case <-pollC:
			if _, err := conn.Write([]byte(gatepro.CmdReadStatus.String() + gatepro.TxDelimiter)); err != nil {
				logger.Error().Err(err).Msg("poll failed")
			}
		}
	}
}

// printMessages feeds escaped text and prints every message it completes
func printMessages(framer *gatepro.Framer, stats *gatepro.Statistics, escaped string) {
	for {
		msg, ok, err := framer.Feed(escaped)
		escaped = ""
		if err != nil {
			stats.Update("", err)
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		if !ok {
			return
		}
		stats.Update(msg, nil)
		fmt.Print(gatepro.FormatMessage(time.Now(), msg))
	}
}
