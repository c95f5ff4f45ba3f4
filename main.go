// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Gatepro - GatePro Gate Controller Driver
//
// A CLI tool for driving GatePro gate controllers over their serial
// protocol, with an optional MQTT bridge.

package main

import (
	"os"

	"github.com/Thermoquad/gatepro/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
