// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"fmt"
	"time"
)

// Statistics tracks message counts and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalMessages  uint64
	ByType         map[MsgType]uint64
	MotorEvents    map[MotorEvent]uint64
	ParseErrors    uint64
	FramingErrors  uint64
	UnknownMessage uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByType:         make(map[MsgType]uint64),
		MotorEvents:    make(map[MotorEvent]uint64),
	}
}

// Update records a framed message, or a framing error when msg is empty
func (s *Statistics) Update(msg RawMessage, frameErr error) {
	if frameErr != nil {
		s.FramingErrors++
		return
	}

	s.TotalMessages++
	msgType := Classify(msg)
	s.ByType[msgType]++

	switch msgType {
	case MsgUnknown:
		s.UnknownMessage++
	case MsgMotorEvent:
		s.MotorEvents[ClassifyMotorEvent(msg)]++
	case MsgAckStatus:
		if _, err := StatusPercentage(msg); err != nil {
			s.ParseErrors++
		}
	case MsgAckReadParams:
		if _, err := ParseParams(msg); err != nil {
			s.ParseErrors++
		}
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates message and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.TotalMessages) / elapsed
		s.ErrorRate = float64(s.ParseErrors+s.FramingErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Messages:  %8d\n", s.TotalMessages)

	for t := MsgAckStatus; t <= MsgAckLearnStatus; t++ {
		if n := s.ByType[t]; n > 0 {
			result += fmt.Sprintf("  %-16s %6d\n", FormatMessageType(t)+":", n)
		}
	}
	for ev := EventOpening; ev <= EventStopped; ev++ {
		if n := s.MotorEvents[ev]; n > 0 {
			result += fmt.Sprintf("    %-14s %6d\n", FormatMotorEvent(ev)+":", n)
		}
	}

	if s.UnknownMessage > 0 {
		result += fmt.Sprintf("Unknown:         %8d\n", s.UnknownMessage)
	}
	if s.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d\n", s.ParseErrors)
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
