// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/gatepro/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string

	// Loaded by PersistentPreRunE, flags applied on top
	cfg    config.Config
	appFs  = afero.NewOsFs()
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "gatepro",
	Short: "GatePro Gate Controller Driver",
	Long: `Gatepro - A CLI tool for driving GatePro gate controllers over their serial protocol.

Tracks gate position and motion, exposes the controller parameter vector,
and optionally bridges the gate to an MQTT broker.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the GATEPRO_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gatepro.toml", "Configuration file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

// loadConfig reads the configuration file and lets explicit flags override it
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(appFs, configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Connection.Port = portName
		loaded.Connection.URL = ""
	}
	if flags.Changed("baud") {
		loaded.Connection.Baud = baudRate
	}
	if flags.Changed("url") {
		loaded.Connection.URL = wsURL
		loaded.Connection.Port = ""
	}
	if flags.Changed("username") {
		loaded.Connection.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.Connection.SkipSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		loaded.Log.Level = logLevel
	}

	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitError asks main to exit with Code instead of the default 1
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode returns the process exit code for an error from Execute
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}
