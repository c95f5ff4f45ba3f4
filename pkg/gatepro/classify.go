// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFieldParse is wrapped by every field decoding failure
var ErrFieldParse = errors.New("field parse error")

// Field returns length characters of msg starting at pos.
// Out of range requests are clamped to the message instead of panicking.
func Field(msg string, pos, length int) string {
	if pos < 0 || pos >= len(msg) || length <= 0 {
		return ""
	}
	end := pos + length
	if end > len(msg) {
		end = len(msg)
	}
	return msg[pos:end]
}

// Matches reports whether the pattern's field in msg equals its match string
func (p Pattern[T]) Matches(msg string) bool {
	return Field(msg, p.Pos, p.Len) == p.Match
}

// classify walks an ordered pattern table, first match wins
func classify[T any](msg string, table []Pattern[T], fallback T) T {
	for _, p := range table {
		if p.Matches(msg) {
			return p.Type
		}
	}
	return fallback
}

// Classify returns the message type of an escaped message
func Classify(msg RawMessage) MsgType {
	return classify(string(msg), MessagePatterns, MsgUnknown)
}

// ClassifyMotorEvent returns the motor event carried by a motor event message
func ClassifyMotorEvent(msg RawMessage) MotorEvent {
	return classify(string(msg), MotorEventPatterns, EventUnknown)
}

// StatusPercentage decodes the hexadecimal percentage of a status ack.
// The raw value is returned, including the opening offset.
func StatusPercentage(msg RawMessage) (int, error) {
	f := StatusPercentageField
	s := Field(string(msg), f.Pos, f.Len)
	if len(s) != f.Len {
		return 0, fmt.Errorf("%w: status percentage field %q too short", ErrFieldParse, s)
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: status percentage %q: %v", ErrFieldParse, s, err)
	}
	return int(v), nil
}

// StatusMoving reports whether a status ack carries the closing marker
func StatusMoving(msg RawMessage) bool {
	return StatusMovingField.Matches(string(msg))
}

// ParseParams decodes the comma separated parameter vector of a read params ack
func ParseParams(msg RawMessage) ([]int, error) {
	f := ParamsField
	s := Field(msg.Body(), f.Pos, f.Len)
	if s == "" {
		return nil, fmt.Errorf("%w: empty parameter field", ErrFieldParse)
	}

	tokens := strings.Split(s, ParamsSeparator)
	params := make([]int, 0, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d %q is not numeric", ErrFieldParse, i, tok)
		}
		params = append(params, v)
	}
	return params, nil
}

// TextPayload returns the free text of a devinfo or learn status ack
func TextPayload(msg RawMessage) string {
	body := msg.Body()
	return Field(body, TextPayloadStart, len(body)-TextPayloadStart)
}

// FormatParams serializes a parameter vector for the write params command
func FormatParams(params []int) string {
	var sb strings.Builder
	sb.WriteString(WriteParamsPrefix)
	for i, v := range params {
		if i > 0 {
			sb.WriteString(ParamsSeparator)
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}
