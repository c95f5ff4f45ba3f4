// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"errors"
	"fmt"
	"strings"
)

// RawMessage is one framed message in escaped form, terminator included
type RawMessage string

// Body returns the message without its trailing delimiter
func (m RawMessage) Body() string {
	return strings.TrimSuffix(string(m), Delimiter)
}

// ErrBufferOverflow is returned when the framer cap is hit without a delimiter
var ErrBufferOverflow = errors.New("frame buffer overflow")

// Framer accumulates escaped text and cuts it into delimiter terminated messages
type Framer struct {
	buffer    string
	maxBuffer int // 0 means unbounded
}

// FramerOption configures a Framer
type FramerOption func(*Framer)

// WithMaxBuffer caps the number of buffered characters waiting for a delimiter.
// Zero keeps the buffer unbounded.
func WithMaxBuffer(n int) FramerOption {
	return func(f *Framer) {
		f.maxBuffer = n
	}
}

// NewFramer creates a new framer
func NewFramer(opts ...FramerOption) *Framer {
	f := &Framer{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Feed appends escaped text and extracts at most one complete message.
// Callers drain a backlog by calling Feed once per tick, with empty input if
// nothing new arrived.
func (f *Framer) Feed(escaped string) (RawMessage, bool, error) {
	f.buffer += escaped

	pos := strings.Index(f.buffer, Delimiter)
	if pos < 0 {
		if f.maxBuffer > 0 && len(f.buffer) > f.maxBuffer {
			n := len(f.buffer)
			f.buffer = ""
			return "", false, fmt.Errorf("%w: %d characters without delimiter (max %d)", ErrBufferOverflow, n, f.maxBuffer)
		}
		return "", false, nil
	}

	end := pos + len(Delimiter)
	msg := RawMessage(f.buffer[:end])
	f.buffer = f.buffer[end:]
	return msg, true, nil
}

// Buffered returns the text waiting for a delimiter
func (f *Framer) Buffered() string {
	return f.buffer
}

// Reset discards any buffered text
func (f *Framer) Reset() {
	f.buffer = ""
}
