// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/gatepro/pkg/gatepro"
)

// Parameter errors
var (
	ErrParamIndex  = errors.New("parameter index out of range")
	ErrParamLength = errors.New("parameter vector length mismatch")
)

// Params is the device's parameter vector. It is always read and written whole.
type Params []int

// Clone returns an independent copy
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	return append(Params(nil), p...)
}

// Get returns the value at index i
func (p Params) Get(i int) (int, bool) {
	if i < 0 || i >= len(p) {
		return 0, false
	}
	return p[i], true
}

// TaskKind selects how a ParamTask changes the vector
type TaskKind uint8

// Task kinds
const (
	// TaskSet replaces one slot
	TaskSet TaskKind = iota
	// TaskRestore replaces the whole vector
	TaskRestore
)

// ParamTask is a change waiting for the next parameter read
type ParamTask struct {
	Kind   TaskKind
	Index  int
	Value  int
	Vector Params
}

// apply mutates params according to the task
func (t ParamTask) apply(params Params) error {
	switch t.Kind {
	case TaskSet:
		if t.Index < 0 || t.Index >= len(params) {
			return fmt.Errorf("%w: index %d, vector has %d values", ErrParamIndex, t.Index, len(params))
		}
		params[t.Index] = t.Value
	case TaskRestore:
		if len(t.Vector) != len(params) {
			return fmt.Errorf("%w: restoring %d values over %d", ErrParamLength, len(t.Vector), len(params))
		}
		copy(params, t.Vector)
	default:
		return fmt.Errorf("unknown task kind %d", t.Kind)
	}
	return nil
}

// SetParam changes one parameter. The vector is read first, then written back
// whole with the change applied once the read ack arrives.
func (d *Driver) SetParam(index, value int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setParam(index, value)
}

// RequestSetParam is SetParam guarded against no-op writes. It reports
// whether a change was queued.
func (d *Driver) RequestSetParam(index, value int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.params.Get(index); ok && cur == value {
		return false
	}
	d.setParam(index, value)
	return true
}

// RestoreParams writes a previously saved vector back to the device.
// The vector must have as many values as the device reports.
func (d *Driver) RestoreParams(vector []int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrParamLength)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.params != nil && len(d.params) != len(vector) {
		return fmt.Errorf("%w: device has %d values, got %d", ErrParamLength, len(d.params), len(vector))
	}

	d.log.Debug().Msgf("initiating restore of %d params", len(vector))
	d.paramNoPub = true
	d.queueCommand(gatepro.CmdReadParams)
	d.tasks.Push(ParamTask{Kind: TaskRestore, Vector: Params(vector).Clone()})
	return nil
}

func (d *Driver) setParam(index, value int) {
	d.log.Debug().Msgf("initiating setting param %d to %d", index, value)
	d.paramNoPub = true
	d.queueCommand(gatepro.CmdReadParams)
	d.tasks.Push(ParamTask{Kind: TaskSet, Index: index, Value: value})
}

func (d *Driver) handleParams(msg gatepro.RawMessage) {
	// A plain write ack shares the read ack prefix but carries no vector
	f := gatepro.ParamsField
	if gatepro.Field(msg.Body(), f.Pos, f.Len) == "" {
		d.log.Debug().Msgf("params write acknowledged: %s", msg.Body())
		return
	}

	params, err := gatepro.ParseParams(msg)
	if err != nil {
		d.log.Warn().Err(err).Msgf("dropping params: %s", msg.Body())
		d.metrics.parseError()
		return
	}
	d.params = params

	d.publishParams()

	for task, ok := d.tasks.Pop(); ok; task, ok = d.tasks.Pop() {
		if err := task.apply(d.params); err != nil {
			d.log.Error().Err(err).Msg("dropping parameter task")
		} else {
			d.writeParams()
		}
		d.paramNoPub = false
	}
}

func (d *Driver) publishParams() {
	if d.paramNoPub {
		return
	}
	for _, b := range d.bindings {
		v, ok := d.params.Get(b.Index)
		if !ok {
			d.log.Warn().Msgf("param %s: index %d not in vector of %d", b.Name, b.Index, len(d.params))
			continue
		}
		d.pub.PublishParam(b, v)
	}
}

// writeParams queues the whole vector for writing, then a read to confirm it
func (d *Driver) writeParams() {
	cmd := gatepro.FormatParams(d.params)
	d.log.Debug().Msgf("built params: %s", cmd)
	d.tx.Push(cmd)
	d.queueCommand(gatepro.CmdReadParams)
}
