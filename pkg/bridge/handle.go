// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/Thermoquad/gatepro/pkg/gatepro"
)

// Handle applies one inbound command message
func (b *Bridge) Handle(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, b.opts.Prefix+"/")
	if !ok {
		return fmt.Errorf("topic %s outside prefix %s", topic, b.opts.Prefix)
	}
	value := strings.TrimSpace(string(payload))

	switch {
	case rest == "cover/set":
		return b.handleCoverSet(value)
	case rest == "cover/set_position":
		return b.handleSetPosition(value)
	case rest == "command":
		return b.handleCommand(value)
	case strings.HasPrefix(rest, "param/") && strings.HasSuffix(rest, "/set"):
		name := strings.TrimSuffix(strings.TrimPrefix(rest, "param/"), "/set")
		return b.handleParamSet(name, value)
	}
	return fmt.Errorf("unhandled topic %s", topic)
}

func (b *Bridge) handleCoverSet(value string) error {
	switch strings.ToUpper(value) {
	case "OPEN":
		b.ctrl.RequestOpen()
	case "CLOSE":
		b.ctrl.RequestClose()
	case "STOP":
		b.ctrl.RequestStop()
	case "TOGGLE":
		b.ctrl.RequestToggle()
	default:
		return fmt.Errorf("%w: cover command %q", ErrPayload, value)
	}
	return nil
}

func (b *Bridge) handleSetPosition(value string) error {
	pct, err := strconv.Atoi(value)
	if err != nil || pct < 0 || pct > 100 {
		return fmt.Errorf("%w: position %q", ErrPayload, value)
	}
	return b.ctrl.RequestPosition(float64(pct) / 100)
}

func (b *Bridge) handleCommand(value string) error {
	cmd, ok := gatepro.ParseCommand(strings.ToLower(value))
	if !ok {
		return fmt.Errorf("%w: unknown command %q", ErrPayload, value)
	}
	return b.ctrl.RequestCommand(cmd)
}

func (b *Bridge) handleParamSet(name, value string) error {
	binding, ok := driver.FindBinding(b.bindings, name)
	if !ok {
		return fmt.Errorf("%w: unknown param %q", ErrPayload, name)
	}

	v, err := parseParamValue(binding.Kind, value)
	if err != nil {
		return fmt.Errorf("%w: param %s: %v", ErrPayload, name, err)
	}

	if !b.ctrl.RequestSetParam(binding.Index, v) {
		b.log.Debug().Msgf("mqtt: param %s already %d", name, v)
	}
	return nil
}

func parseParamValue(kind driver.ParamKind, value string) (int, error) {
	if kind == driver.ParamSwitch {
		switch strings.ToUpper(value) {
		case "ON", "1", "TRUE":
			return 1, nil
		case "OFF", "0", "FALSE":
			return 0, nil
		}
		return 0, fmt.Errorf("%q is not ON or OFF", value)
	}
	return strconv.Atoi(value)
}
