// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/gatepro/pkg/config"
	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/Thermoquad/gatepro/pkg/transport"
	"github.com/spf13/cobra"
)

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find GatePro controllers on local serial ports",
	Long: `Send READ DEVINFO and report every controller that answers.

Modes:
  Scan (default): Probe every serial port on the system in turn.
  Direct:         With --port or --url, probe only that connection.

Examples:
  # Scan all serial ports
  gatepro discovery

  # Probe one bridge
  gatepro discovery --url ws://gate.local/serial

Exit codes:
  0 - Discovery successful (at least one controller found)
  1 - Discovery failed (no controllers or timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 2, "Timeout in seconds per connection")
}

type discoveredDevice struct {
	connInfo string
	info     string
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	timeout := time.Duration(discoveryTimeout) * time.Second

	targets := []config.Connection{cfg.Connection}
	direct := cfg.Connection.Port != "" || cfg.Connection.URL != ""
	if !direct {
		ports, err := transport.ListSerialPorts()
		if err != nil {
			return exitf(2, "connection error: %w", err)
		}
		targets = targets[:0]
		for _, p := range ports {
			targets = append(targets, config.Connection{Port: p, Baud: cfg.Connection.Baud})
		}
	}

	fmt.Printf("Gatepro - Controller Discovery\n")
	fmt.Printf("Targets: %d\n", len(targets))
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	devices := make([]discoveredDevice, 0)
	for _, target := range targets {
		conn, connInfo, err := newConnector(target).Open(ctx)
		if err != nil {
			if direct {
				return exitf(2, "connection error: %w", err)
			}
			fmt.Printf("%s: %v\n", target.Port, err)
			continue
		}

		fmt.Printf("Probing %s...\n", connInfo)
		info, err := probeDevInfo(conn, timeout)
		conn.Close()
		if err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}

		devices = append(devices, discoveredDevice{connInfo: connInfo, info: info})
		fmt.Printf("\nController found:\n")
		fmt.Printf("  Connection: %s\n", connInfo)
		fmt.Printf("  Device info: %s\n\n", info)
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Controllers found: %d\n", len(devices))

	if len(devices) == 0 {
		return exitf(1, "no controllers discovered, check connection and device power")
	}
	return nil
}

// probeDevInfo sends READ DEVINFO and waits for its ack
func probeDevInfo(conn transport.Conn, timeout time.Duration) (string, error) {
	if _, err := conn.Write([]byte(gatepro.CmdDevInfo.String() + gatepro.TxDelimiter)); err != nil {
		return "", fmt.Errorf("send failed: %w", err)
	}

	result := make(chan string, 1)
	go func() {
		framer := gatepro.NewFramer()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			escaped := gatepro.Escape(buf[:n])
			for {
				msg, ok, _ := framer.Feed(escaped)
				escaped = ""
				if !ok {
					break
				}
				if gatepro.Classify(msg) == gatepro.MsgAckDevInfo {
					result <- gatepro.TextPayload(msg)
					return
				}
			}
		}
	}()

	select {
	case info := <-result:
		return info, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no answer within %s", timeout)
	}
}
