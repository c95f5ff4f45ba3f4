// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gatepro implements the GatePro gate controller serial protocol.
//
// GatePro controllers speak a line-oriented ASCII protocol. Inbound bytes are
// escaped into printable text before framing, so every field offset in this
// package refers to the escaped text, and the inbound line terminator is the
// four character sequence `\r\n` rather than the raw CR LF bytes.
package gatepro

// Line terminators
const (
	// Delimiter terminates an inbound message after escaping
	Delimiter = `\r\n`
	// TxDelimiter terminates every outbound command on the wire
	TxDelimiter = "\r\n"
)

// SourceTag identifies this controller to the device
const SourceTag = "src=P00287D7"

// Parameter vector encoding
const (
	ParamsSeparator   = ","
	WriteParamsPrefix = "WP,1:"
)

// Status decoding
const (
	// PercentageOffset is added to the reported percentage while opening
	PercentageOffset = 128
	// MovingMarker sits in the status field while the gate is closing
	MovingMarker = "C4"
)

// AcceptableDiff is the position tolerance used for stopping at a target
const AcceptableDiff = 0.05

// Command is an outbound protocol verb
type Command uint8

// Command values
const (
	CmdNone Command = iota
	CmdOpen
	CmdClose
	CmdStop
	CmdReadStatus
	CmdReadParams
	CmdWriteParams
	CmdLearn
	CmdDevInfo
	CmdReadLearnStatus
	CmdRemoteLearn
	CmdClearRemoteLearn // untested on hardware
	CmdRestore          // untested on hardware
	CmdPedOpen          // untested on hardware
	CmdReadFunction     // untested on hardware
)

var commandText = map[Command]string{
	CmdNone:             "NAK",
	CmdOpen:             "FULL OPEN;" + SourceTag,
	CmdClose:            "FULL CLOSE;" + SourceTag,
	CmdStop:             "STOP;" + SourceTag,
	CmdReadStatus:       "RS;" + SourceTag,
	CmdReadParams:       "RP,1:;" + SourceTag,
	CmdWriteParams:      WriteParamsPrefix,
	CmdLearn:            "AUTO LEARN;" + SourceTag,
	CmdDevInfo:          "READ DEVINFO;" + SourceTag,
	CmdReadLearnStatus:  "READ LEARN STATUS;" + SourceTag,
	CmdRemoteLearn:      "REMOTE LEARN;" + SourceTag,
	CmdClearRemoteLearn: "CLEAR REMOTE LEARN;" + SourceTag,
	CmdRestore:          "RESTORE;" + SourceTag,
	CmdPedOpen:          "PED OPEN;" + SourceTag,
	CmdReadFunction:     "READ FUNCTION;" + SourceTag,
}

// commandNames are the user facing verb names accepted by ParseCommand
var commandNames = map[Command]string{
	CmdOpen:             "open",
	CmdClose:            "close",
	CmdStop:             "stop",
	CmdReadStatus:       "read_status",
	CmdReadParams:       "read_params",
	CmdLearn:            "learn",
	CmdDevInfo:          "devinfo",
	CmdReadLearnStatus:  "learn_status",
	CmdRemoteLearn:      "remote_learn",
	CmdClearRemoteLearn: "clear_remote_learn",
	CmdRestore:          "restore",
	CmdPedOpen:          "ped_open",
	CmdReadFunction:     "read_function",
}

// String returns the wire template for the command
func (c Command) String() string {
	if s, ok := commandText[c]; ok {
		return s
	}
	return commandText[CmdNone]
}

// Name returns the user facing verb name, or "none"
func (c Command) Name() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return "none"
}

// ParseCommand resolves a verb name (as returned by Name) to a Command.
// Write params is not addressable by name since it needs a vector argument.
func ParseCommand(name string) (Command, bool) {
	for cmd, n := range commandNames {
		if n == name {
			return cmd, true
		}
	}
	return CmdNone, false
}

// CommandNames lists every addressable verb name in command order
func CommandNames() []string {
	names := make([]string, 0, len(commandNames))
	for c := CmdNone; c <= CmdReadFunction; c++ {
		if n, ok := commandNames[c]; ok {
			names = append(names, n)
		}
	}
	return names
}

// MsgType is the classification of an inbound message
type MsgType uint8

// Message type values
const (
	MsgUnknown MsgType = iota
	MsgAckStatus
	MsgAckReadParams
	MsgAckWriteParams
	MsgMotorEvent
	MsgAckDevInfo
	MsgAckLearnStatus
)

// MotorEvent is the sub-classification of a motor event message
type MotorEvent uint8

// Motor event values
const (
	EventUnknown MotorEvent = iota
	EventOpening
	EventOpened
	EventClosing
	EventAutoClosing // reserved, the AutoClosing keyword classifies as EventClosing
	EventClosed
	EventStopped
)

// Pattern matches Len characters of a message at Pos against Match
type Pattern[T any] struct {
	Pos   int
	Len   int
	Match string
	Type  T
}

// MessagePatterns classifies inbound messages. Evaluated in order, first match wins.
//
// "ACK WP" shares the read params tag in the controller firmware tables this
// was built against. The collision is kept as is.
var MessagePatterns = []Pattern[MsgType]{
	{0, 6, "ACK RS", MsgAckStatus},
	{0, 6, "ACK RP", MsgAckReadParams},
	{0, 6, "ACK WP", MsgAckReadParams},
	{0, 7, "$V1PKF0", MsgMotorEvent},
	{0, 16, "ACK READ DEVINFO", MsgAckDevInfo},
	{0, 16, "ACK LEARN STATUS", MsgAckLearnStatus},
}

// MotorEventPatterns sub-classifies motor event messages.
// AutoClosing behaves exactly like Closing for every known scope.
var MotorEventPatterns = []Pattern[MotorEvent]{
	{11, 7, "Opening", EventOpening},
	{11, 6, "Opened", EventOpened},
	{11, 7, "Closing", EventClosing},
	{11, 11, "AutoClosing", EventClosing},
	{11, 6, "Closed", EventClosed},
	{11, 7, "Stopped", EventStopped},
}

// Fixed field locations within escaped messages
var (
	StatusPercentageField = Pattern[struct{}]{Pos: 16, Len: 2}
	StatusMovingField     = Pattern[struct{}]{Pos: 13, Len: 2, Match: MovingMarker}
	ParamsField           = Pattern[struct{}]{Pos: 9, Len: 33}
)

// TextPayloadStart is where free text begins in devinfo and learn status acks
const TextPayloadStart = 17

// conversionMap holds the named escapes used by Escape
var conversionMap = map[byte]string{
	7:  `\a`,
	8:  `\b`,
	9:  `\t`,
	10: `\n`,
	11: `\v`,
	12: `\f`,
	13: `\r`,
	27: `\e`,
	34: `\"`,
	39: `\'`,
	92: `\\`,
}
