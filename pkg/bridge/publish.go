// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"strconv"

	"github.com/Thermoquad/gatepro/pkg/driver"
)

// PublishCover implements driver.Publisher
func (b *Bridge) PublishCover(state driver.CoverState) {
	b.enqueue(b.Topic("cover", "state"), state.Label(), true)
	if !state.PositionKnown {
		return
	}
	pct := state.Percent()
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	b.enqueue(b.Topic("cover", "position"), strconv.Itoa(pct), true)
}

// PublishParam implements driver.Publisher
func (b *Bridge) PublishParam(binding driver.ParamBinding, value int) {
	payload := strconv.Itoa(value)
	if binding.Kind == driver.ParamSwitch {
		payload = "OFF"
		if value != 0 {
			payload = "ON"
		}
	}
	b.enqueue(b.Topic("param", binding.Name), payload, true)
}

// PublishDeviceInfo implements driver.Publisher
func (b *Bridge) PublishDeviceInfo(text string) {
	b.enqueue(b.Topic("devinfo"), text, true)
}

// PublishLearnStatus implements driver.Publisher
func (b *Bridge) PublishLearnStatus(text string) {
	b.enqueue(b.Topic("learn_status"), text, true)
}

var (
	_ driver.Publisher = (*Bridge)(nil)
	_ Controller       = (*driver.Driver)(nil)
)
