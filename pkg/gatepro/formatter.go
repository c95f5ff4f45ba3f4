// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a framed message into a human-readable line
func FormatMessage(ts time.Time, msg RawMessage) string {
	msgType := Classify(msg)
	result := fmt.Sprintf("[%s] %s %s\n", ts.Format("15:04:05.000"), FormatMessageType(msgType), msg.Body())
	return result + FormatDetails(msgType, msg)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType MsgType) string {
	switch msgType {
	case MsgAckStatus:
		return "ACK_STATUS"
	case MsgAckReadParams:
		return "ACK_READ_PARAMS"
	case MsgAckWriteParams:
		return "ACK_WRITE_PARAMS"
	case MsgMotorEvent:
		return "MOTOR_EVENT"
	case MsgAckDevInfo:
		return "ACK_DEVINFO"
	case MsgAckLearnStatus:
		return "ACK_LEARN_STATUS"
	default:
		return "UNKNOWN"
	}
}

// FormatMotorEvent returns the human-readable name for a motor event
func FormatMotorEvent(ev MotorEvent) string {
	switch ev {
	case EventOpening:
		return "OPENING"
	case EventOpened:
		return "OPENED"
	case EventClosing:
		return "CLOSING"
	case EventAutoClosing:
		return "AUTO_CLOSING"
	case EventClosed:
		return "CLOSED"
	case EventStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// FormatDetails decodes the interesting fields of a message, one per line
func FormatDetails(msgType MsgType, msg RawMessage) string {
	switch msgType {
	case MsgAckStatus:
		pct, err := StatusPercentage(msg)
		if err != nil {
			return fmt.Sprintf("  Error: %v\n", err)
		}
		direction := "idle"
		if pct > 100 {
			pct -= PercentageOffset
			direction = "opening"
		} else if StatusMoving(msg) {
			direction = "closing"
		}
		return fmt.Sprintf("  Position: %d%%, Direction: %s\n", pct, direction)

	case MsgAckReadParams:
		params, err := ParseParams(msg)
		if err != nil {
			return fmt.Sprintf("  Error: %v\n", err)
		}
		parts := make([]string, len(params))
		for i, v := range params {
			parts[i] = fmt.Sprintf("%d=%d", i, v)
		}
		return fmt.Sprintf("  Params: %s\n", strings.Join(parts, " "))

	case MsgMotorEvent:
		return fmt.Sprintf("  Event: %s\n", FormatMotorEvent(ClassifyMotorEvent(msg)))

	case MsgAckDevInfo, MsgAckLearnStatus:
		return fmt.Sprintf("  Text: %s\n", TextPayload(msg))
	}

	return ""
}
