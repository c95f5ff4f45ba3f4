// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/spf13/cobra"
)

var sendTimeout int

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send one command and print the replies",
	Long: `Send one command and print every recognised GatePro message until timeout.

Unrecognised lines are counted and skipped. A status request (read_status)
is answered by every controller and makes a good connectivity test.

Commands: ` + strings.Join(gatepro.CommandNames(), ", ") + `

Exit codes:
  0 - At least one message received before timeout
  1 - Timeout reached without receiving a recognised message
  2 - Connection error`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 3, "Seconds to wait for replies")
}

func runSend(cmd *cobra.Command, args []string) error {
	verb, ok := gatepro.ParseCommand(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q (valid: %s)", args[0], strings.Join(gatepro.CommandNames(), ", "))
	}

	conn, connInfo, err := OpenConnection(context.Background())
	if err != nil {
		return exitf(2, "connection error: %w", err)
	}
	defer conn.Close()

	fmt.Printf("Gatepro - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", sendTimeout)
	fmt.Printf("Sending %s...\n\n", verb.String())

	if _, err := conn.Write([]byte(verb.String() + gatepro.TxDelimiter)); err != nil {
		return exitf(2, "send failed: %w", err)
	}

	msgChan := make(chan gatepro.RawMessage, 16)
	errChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		framer := gatepro.NewFramer()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			escaped := gatepro.Escape(buf[:n])
			for {
				msg, ok, _ := framer.Feed(escaped)
				escaped = ""
				if !ok {
					break
				}
				select {
				case msgChan <- msg:
				case <-done:
					return
				}
			}
		}
	}()

	received, skipped := 0, 0
	deadline := time.After(time.Duration(sendTimeout) * time.Second)
	for {
		select {
		case msg := <-msgChan:
			if gatepro.Classify(msg) == gatepro.MsgUnknown {
				skipped++
				continue
			}
			received++
			fmt.Print(gatepro.FormatMessage(time.Now(), msg))

		case err := <-errChan:
			return exitf(2, "read error: %w", err)

		case <-deadline:
			fmt.Printf("\n--- Send summary ---\n")
			fmt.Printf("Messages: %d\n", received)
			if skipped > 0 {
				fmt.Printf("Skipped: %d unrecognised lines\n", skipped)
			}
			if received == 0 {
				return exitf(1, "timeout: no recognised message received within %d seconds", sendTimeout)
			}
			return nil
		}
	}
}
