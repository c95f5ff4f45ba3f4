// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"github.com/rs/zerolog"
)

// ParamKind is how a bound parameter is presented to consumers
type ParamKind uint8

// Parameter kinds
const (
	ParamNumber ParamKind = iota
	ParamSwitch
)

// String returns the kind name
func (k ParamKind) String() string {
	if k == ParamSwitch {
		return "switch"
	}
	return "number"
}

// ParamBinding ties a slot of the parameter vector to a named consumer
type ParamBinding struct {
	Name  string
	Index int
	Kind  ParamKind
}

// DefaultBindings returns the parameter slots exposed by the stock controller UI
func DefaultBindings() []ParamBinding {
	return []ParamBinding{
		{Name: "auto_close", Index: 1, Kind: ParamNumber},
		{Name: "operational_speed", Index: 3, Kind: ParamNumber},
		{Name: "decel_dist", Index: 4, Kind: ParamNumber},
		{Name: "decel_speed", Index: 5, Kind: ParamNumber},
		{Name: "max_amp", Index: 6, Kind: ParamNumber},
		{Name: "ped_dura", Index: 7, Kind: ParamNumber},
		{Name: "infra1", Index: 13, Kind: ParamSwitch},
		{Name: "infra2", Index: 14, Kind: ParamSwitch},
		{Name: "stop_terminal", Index: 15, Kind: ParamSwitch},
	}
}

// FindBinding looks a binding up by name
func FindBinding(bindings []ParamBinding, name string) (ParamBinding, bool) {
	for _, b := range bindings {
		if b.Name == name {
			return b, true
		}
	}
	return ParamBinding{}, false
}

// Publisher receives state published by the driver.
//
// Methods are called with the driver lock held. Implementations must return
// quickly and must not call back into the Driver.
type Publisher interface {
	PublishCover(state CoverState)
	PublishParam(binding ParamBinding, value int)
	PublishDeviceInfo(text string)
	PublishLearnStatus(text string)
}

// NopPublisher discards everything
type NopPublisher struct{}

func (NopPublisher) PublishCover(CoverState)        {}
func (NopPublisher) PublishParam(ParamBinding, int) {}
func (NopPublisher) PublishDeviceInfo(string)       {}
func (NopPublisher) PublishLearnStatus(string)      {}

// MultiPublisher fans out to every publisher in order
type MultiPublisher []Publisher

func (m MultiPublisher) PublishCover(state CoverState) {
	for _, p := range m {
		p.PublishCover(state)
	}
}

func (m MultiPublisher) PublishParam(binding ParamBinding, value int) {
	for _, p := range m {
		p.PublishParam(binding, value)
	}
}

func (m MultiPublisher) PublishDeviceInfo(text string) {
	for _, p := range m {
		p.PublishDeviceInfo(text)
	}
}

func (m MultiPublisher) PublishLearnStatus(text string) {
	for _, p := range m {
		p.PublishLearnStatus(text)
	}
}

// LogPublisher writes published state to a logger
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) PublishCover(state CoverState) {
	p.Logger.Info().
		Str("state", state.Label()).
		Str("operation", state.Operation.String()).
		Float64("position", state.Position).
		Msg("cover")
}

func (p LogPublisher) PublishParam(binding ParamBinding, value int) {
	p.Logger.Info().Str("name", binding.Name).Int("index", binding.Index).Int("value", value).Msg("param")
}

func (p LogPublisher) PublishDeviceInfo(text string) {
	p.Logger.Info().Str("devinfo", text).Msg("device info")
}

func (p LogPublisher) PublishLearnStatus(text string) {
	p.Logger.Info().Str("learn_status", text).Msg("learn status")
}
