// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"errors"
	"fmt"
	"math"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
)

// Request errors
var (
	ErrPositionRange = errors.New("position out of range")
	ErrCommand       = errors.New("command not allowed")
)

// RequestPosition moves the gate towards p, 0 closed to 1 open.
// Intermediate targets are stopped at by the slow tick.
func (d *Driver) RequestPosition(p float64) error {
	if p < PositionClosed || p > PositionOpen {
		return fmt.Errorf("%w: %v", ErrPositionRange, p)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestPosition(p)
	return nil
}

// RequestOpen fully opens the gate
func (d *Driver) RequestOpen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestPosition(PositionOpen)
}

// RequestClose fully closes the gate
func (d *Driver) RequestClose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestPosition(PositionClosed)
}

// RequestStop stops a moving gate
func (d *Driver) RequestStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startDirection(OperationIdle)
}

// RequestToggle stops a moving gate. An idle gate at an end stop moves to
// the other end, otherwise it moves away from the direction it last travelled.
func (d *Driver) RequestToggle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	tolerance := gatepro.AcceptableDiff / 2
	switch {
	case d.state.Operation != OperationIdle:
		d.startDirection(OperationIdle)
	case math.Abs(d.state.Position-PositionOpen) < tolerance:
		d.requestPosition(PositionClosed)
	case math.Abs(d.state.Position-PositionClosed) < tolerance:
		d.requestPosition(PositionOpen)
	case d.state.LastOperation == OperationClosing:
		d.requestPosition(PositionOpen)
	default:
		d.requestPosition(PositionClosed)
	}
}

// RequestCommand queues a raw protocol verb. Write params needs a vector and
// goes through SetParam or RestoreParams instead.
func (d *Driver) RequestCommand(cmd gatepro.Command) error {
	if cmd == gatepro.CmdNone || cmd == gatepro.CmdWriteParams || cmd > gatepro.CmdReadFunction {
		return fmt.Errorf("%w: %s", ErrCommand, cmd.Name())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queueCommand(cmd)
	return nil
}

func (d *Driver) requestPosition(p float64) {
	if p == d.state.Position {
		return
	}
	dir := OperationOpening
	if p < d.state.Position {
		dir = OperationClosing
	}
	d.state.Target = p
	d.state.HasTarget = true
	d.startDirection(dir)
}

func (d *Driver) startDirection(dir Operation) {
	if d.state.Operation == dir {
		return
	}

	switch dir {
	case OperationIdle:
		if d.state.OperationFinished {
			return
		}
		d.queueCommand(gatepro.CmdStop)
	case OperationOpening:
		d.queueCommand(gatepro.CmdOpen)
	case OperationClosing:
		d.queueCommand(gatepro.CmdClose)
	}
}
