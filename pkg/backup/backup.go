// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package backup stores controller parameter vectors as CBOR snapshot files
package backup

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
)

// Version is the snapshot format written by this package
const Version = 1

// ErrSnapshot wraps every malformed snapshot
var ErrSnapshot = errors.New("invalid snapshot")

// Snapshot is a saved parameter vector
type Snapshot struct {
	Version    uint           `cbor:"1,keyasint"`
	Taken      time.Time      `cbor:"2,keyasint"`
	DeviceInfo string         `cbor:"3,keyasint,omitempty"`
	Params     []int          `cbor:"4,keyasint"`
	Named      map[string]int `cbor:"5,keyasint,omitempty"`
}

// NewSnapshot captures params, naming the bound slots for readers of the file
func NewSnapshot(taken time.Time, deviceInfo string, params []int, bindings []driver.ParamBinding) Snapshot {
	s := Snapshot{
		Version:    Version,
		Taken:      taken.UTC(),
		DeviceInfo: deviceInfo,
		Params:     append([]int(nil), params...),
	}
	for _, b := range bindings {
		if b.Index >= 0 && b.Index < len(params) {
			if s.Named == nil {
				s.Named = make(map[string]int)
			}
			s.Named[b.Name] = params[b.Index]
		}
	}
	return s
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{
		Time: cbor.TimeRFC3339Nano,
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode serializes a snapshot
func Encode(s Snapshot) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses and checks a snapshot
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(data) == 0 {
		return s, fmt.Errorf("%w: empty data", ErrSnapshot)
	}
	if err := cbor.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	if s.Version != Version {
		return s, fmt.Errorf("%w: unsupported version %d", ErrSnapshot, s.Version)
	}
	if len(s.Params) == 0 {
		return s, fmt.Errorf("%w: no parameters", ErrSnapshot)
	}
	return s, nil
}

// Save writes a snapshot to path
func Save(fs afero.Fs, path string, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot from path
func Load(fs afero.Fs, path string) (Snapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	s, err := Decode(data)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
