// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/Thermoquad/gatepro/pkg/config"
	"github.com/Thermoquad/gatepro/pkg/transport"
	"golang.org/x/term"
)

// ErrNoConnection is returned when neither a serial port nor a URL is configured
var ErrNoConnection = errors.New("either --port or --url must be specified")

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("GATEPRO_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// connector opens the configured connection, prompting for a password at most once
type connector struct {
	conn config.Connection

	once     sync.Once
	password string
	pwErr    error
}

func newConnector(conn config.Connection) *connector {
	return &connector{conn: conn}
}

// Open opens either a serial or WebSocket connection based on the configuration
func (c *connector) Open(ctx context.Context) (transport.Conn, string, error) {
	if c.conn.URL != "" {
		if c.conn.Username != "" {
			c.once.Do(func() { c.password, c.pwErr = GetPassword() })
			if c.pwErr != nil {
				return nil, "", c.pwErr
			}
		}

		conn, err := transport.OpenWebSocket(ctx, c.conn.URL, transport.WebSocketOptions{
			Username:      c.conn.Username,
			Password:      c.password,
			SkipSSLVerify: c.conn.SkipSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", c.conn.URL), nil
	}

	if c.conn.Port != "" {
		conn, err := transport.OpenSerial(c.conn.Port, c.conn.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", c.conn.Port, c.conn.Baud), nil
	}

	return nil, "", ErrNoConnection
}

// Dial adapts Open for transport.Link reconnects
func (c *connector) Dial(ctx context.Context) transport.DialFunc {
	return func() (transport.Conn, string, error) {
		return c.Open(ctx)
	}
}

// OpenConnection opens the connection selected by flags and configuration
func OpenConnection(ctx context.Context) (transport.Conn, string, error) {
	return newConnector(cfg.Connection).Open(ctx)
}
