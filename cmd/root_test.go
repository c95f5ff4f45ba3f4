// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"

	"github.com/Thermoquad/gatepro/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(exitf(2, "connection error")))
	assert.Equal(t, 1, ExitCode(exitf(1, "timeout")))
}

func withConfig(t *testing.T, c config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestSend_NoConnection(t *testing.T) {
	withConfig(t, config.Default())

	err := runSend(sendCmd, []string{"read_status"})

	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestSend_UnknownCommand(t *testing.T) {
	withConfig(t, config.Default())

	err := runSend(sendCmd, []string{"dance"})

	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}
