// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"math"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
)

// Cover end positions
const (
	PositionClosed = 0.0
	PositionOpen   = 1.0
)

// Operation is what the gate motor is doing
type Operation uint8

// Operation values
const (
	OperationIdle Operation = iota
	OperationOpening
	OperationClosing
)

// String returns the operation name
func (o Operation) String() string {
	switch o {
	case OperationOpening:
		return "opening"
	case OperationClosing:
		return "closing"
	default:
		return "idle"
	}
}

// CoverState is the driver's view of the gate
type CoverState struct {
	Operation     Operation
	LastOperation Operation // most recent non-idle operation
	Target        float64
	HasTarget     bool
	Position      float64 // 0 closed, 1 open
	PositionKnown bool

	// OperationFinished is set once an Opened or Closed event arrives
	OperationFinished bool
	// Startup is set until the first deterministic state fix
	Startup bool
	// DebounceTicks counts the extra publishes left for the current position
	DebounceTicks int
}

// Label returns a cover state name: open, closed, opening, closing or stopped
func (s CoverState) Label() string {
	switch s.Operation {
	case OperationOpening:
		return "opening"
	case OperationClosing:
		return "closing"
	}
	if s.PositionKnown {
		switch s.Position {
		case PositionOpen:
			return "open"
		case PositionClosed:
			return "closed"
		}
	}
	return "stopped"
}

// Percent returns the position as a whole percentage
func (s CoverState) Percent() int {
	return int(math.Round(s.Position * 100))
}

func (d *Driver) handleStatus(msg gatepro.RawMessage) {
	// status only matters while moving, or while the direction is unknown
	if d.state.OperationFinished && !d.state.Startup {
		return
	}

	pct, err := gatepro.StatusPercentage(msg)
	if err != nil {
		d.log.Warn().Err(err).Msgf("dropping status: %s", msg.Body())
		d.metrics.parseError()
		return
	}

	// An offset percentage means opening, the closing marker means closing.
	// Otherwise the operation is left alone.
	if pct > 100 {
		pct -= gatepro.PercentageOffset
		d.state.Operation = OperationOpening
		d.state.LastOperation = OperationOpening
		d.state.OperationFinished = false
	} else if gatepro.StatusMoving(msg) {
		d.state.Operation = OperationClosing
		d.state.LastOperation = OperationClosing
		d.state.OperationFinished = false
	}

	d.state.Position = float64(pct) / 100
	d.state.PositionKnown = true
}

func (d *Driver) handleMotorEvent(msg gatepro.RawMessage) {
	ev := gatepro.ClassifyMotorEvent(msg)
	d.metrics.motorEvent(ev)

	switch ev {
	case gatepro.EventOpening:
		d.state.OperationFinished = false
		d.state.Operation = OperationOpening
		d.state.LastOperation = OperationOpening

	case gatepro.EventOpened:
		d.state.OperationFinished = true
		d.clearTarget()
		d.state.Operation = OperationIdle
		d.setEndPosition(PositionOpen)

	case gatepro.EventClosing, gatepro.EventAutoClosing:
		d.state.OperationFinished = false
		d.state.Operation = OperationClosing
		d.state.LastOperation = OperationClosing

	case gatepro.EventClosed:
		d.state.OperationFinished = true
		d.clearTarget()
		d.state.Operation = OperationIdle
		d.setEndPosition(PositionClosed)

	case gatepro.EventStopped:
		d.clearTarget()
		d.state.Operation = OperationIdle
		d.state.Startup = false

	default:
		d.log.Debug().Msgf("unknown motor event: %s", msg.Body())
	}
}

func (d *Driver) setEndPosition(pos float64) {
	d.state.Position = pos
	d.state.PositionKnown = true
	d.state.Startup = false
}

func (d *Driver) clearTarget() {
	d.state.Target = 0
	d.state.HasTarget = false
}

// stopAtTarget stops the gate once it is within tolerance of an
// intermediate target
func (d *Driver) stopAtTarget() {
	s := d.state
	if !s.HasTarget || s.Target == PositionOpen || s.Target == PositionClosed {
		return
	}
	if math.Abs(s.Position-s.Target) < gatepro.AcceptableDiff {
		d.log.Debug().Msgf("target %.2f reached at %.2f, stopping", s.Target, s.Position)
		d.startDirection(OperationIdle)
	}
}

// correctEndPosition snaps a position just short of an end stop onto it.
// The gate often halts a few percent away from its limit switches.
func (d *Driver) correctEndPosition() {
	s := &d.state
	if !s.OperationFinished && !s.Startup {
		return
	}
	if s.Operation != OperationIdle {
		return
	}

	tolerance := gatepro.AcceptableDiff / 2
	switch s.LastOperation {
	case OperationClosing:
		if s.Position != PositionClosed && math.Abs(s.Position-PositionClosed) < tolerance {
			s.Position = PositionClosed
		}
	case OperationOpening:
		if s.Position != PositionOpen && math.Abs(s.Position-PositionOpen) < tolerance {
			s.Position = PositionOpen
		}
	}
}

// publishCover publishes on every change of position or operation, then
// for debounceMax more ticks once things settle
func (d *Driver) publishCover() {
	s := d.state
	if d.published && s.Position == d.lastPosition && s.Operation == d.lastOp {
		if d.state.DebounceTicks == 0 {
			return
		}
		d.state.DebounceTicks--
	} else {
		d.lastPosition = s.Position
		d.lastOp = s.Operation
		d.published = true
		d.state.DebounceTicks = d.debounceMax
	}

	d.pub.PublishCover(d.state)
}
