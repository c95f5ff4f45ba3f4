// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the gatepro TOML configuration file
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/Thermoquad/gatepro/pkg/scheduler"
	"github.com/Thermoquad/gatepro/pkg/transport"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// DefaultTopicPrefix is the MQTT topic root
const DefaultTopicPrefix = "gatepro"

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a string such as "20ms"
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// Config is the whole configuration file
type Config struct {
	Connection Connection `toml:"connection"`
	Scheduler  Scheduler  `toml:"scheduler"`
	Driver     Driver     `toml:"driver"`
	MQTT       MQTT       `toml:"mqtt"`
	Metrics    Metrics    `toml:"metrics"`
	Log        Log        `toml:"log"`
	Params     []Param    `toml:"params" validate:"dive"`
}

// Connection selects how the controller is reached
type Connection struct {
	Port          string `toml:"port" validate:"excluded_with=URL"`
	Baud          int    `toml:"baud" validate:"min=1200,max=921600"`
	URL           string `toml:"url,omitempty" validate:"omitempty,url"`
	Username      string `toml:"username,omitempty"`
	SkipSSLVerify bool   `toml:"skip_ssl_verify,omitempty"`
}

// Scheduler sets the tick cadences
type Scheduler struct {
	Fast Duration `toml:"fast" validate:"gt=0"`
	Slow Duration `toml:"slow" validate:"gt=0,gtefield=Fast"`
}

// Driver tunes the protocol driver
type Driver struct {
	DebounceTicks  int `toml:"debounce_ticks" validate:"min=0,max=1000"`
	MaxFrameBuffer int `toml:"max_frame_buffer" validate:"min=0"`
}

// MQTT configures the optional broker bridge. An empty broker disables it.
type MQTT struct {
	Broker   string `toml:"broker,omitempty" validate:"omitempty,hostname_port"`
	Prefix   string `toml:"prefix" validate:"required,excludesall=#+"`
	ClientID string `toml:"client_id,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	QoS      byte   `toml:"qos" validate:"max=2"`
}

// Metrics configures the Prometheus endpoint. An empty listen address disables it.
type Metrics struct {
	Listen string `toml:"listen,omitempty" validate:"omitempty,hostname_port"`
}

// Log configures logging
type Log struct {
	Level string `toml:"level" validate:"oneof=trace debug info warn error"`
}

// Param binds a named setting to a parameter vector slot
type Param struct {
	Name  string `toml:"name" validate:"required,excludesall=/#+"`
	Index int    `toml:"index" validate:"min=0,max=63"`
	Kind  string `toml:"kind" validate:"oneof=number switch"`
}

// Default returns the built in configuration
func Default() Config {
	return Config{
		Connection: Connection{
			Baud: transport.DefaultBaudRate,
		},
		Scheduler: Scheduler{
			Fast: Duration(scheduler.DefaultFast),
			Slow: Duration(scheduler.DefaultSlow),
		},
		Driver: Driver{
			DebounceTicks: driver.AfterTickMax,
		},
		MQTT: MQTT{
			Prefix: DefaultTopicPrefix,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path on fs over the defaults and validates the result.
// A missing file yields the defaults.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path on fs
func Save(fs afero.Fs, path string, cfg Config) error {
	data, err := toml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and that parameter names are unique
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	seen := make(map[string]bool, len(c.Params))
	for _, p := range c.Params {
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate param %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Bindings returns the configured parameter bindings, or the stock set
func (c Config) Bindings() []driver.ParamBinding {
	if len(c.Params) == 0 {
		return driver.DefaultBindings()
	}
	out := make([]driver.ParamBinding, 0, len(c.Params))
	for _, p := range c.Params {
		kind := driver.ParamNumber
		if p.Kind == "switch" {
			kind = driver.ParamSwitch
		}
		out = append(out, driver.ParamBinding{Name: p.Name, Index: p.Index, Kind: kind})
	}
	return out
}
