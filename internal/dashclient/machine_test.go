// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package dashclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachineStartsInPushing(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, ModePushing, m.Mode())
	assert.False(t, m.ReconnectPending())
}

func TestPushFailureDropsToPollingAndArmsReconnect(t *testing.T) {
	m := NewMachine()

	actions := m.Apply(SignalPushFailed)

	assert.Equal(t, ModePolling, m.Mode())
	assert.True(t, m.ReconnectPending())
	assert.Equal(t, []Action{ActionStartPoll, ActionScheduleReconnect}, actions)
}

func TestRepeatedPushFailureArmsOnlyOneReconnect(t *testing.T) {
	m := NewMachine()

	_ = m.Apply(SignalPushFailed)
	actions := m.Apply(SignalPushFailed)

	assert.Equal(t, []Action{ActionStartPoll}, actions, "second failure must not arm a second attempt")
	assert.True(t, m.ReconnectPending())
}

func TestReconnectDueDialsExactlyOnce(t *testing.T) {
	m := NewMachine()
	_ = m.Apply(SignalPushFailed)

	actions := m.Apply(SignalReconnectDue)
	assert.Equal(t, []Action{ActionDial}, actions)
	assert.False(t, m.ReconnectPending())

	// A stray timer fire with nothing armed is a no-op.
	assert.Empty(t, m.Apply(SignalReconnectDue))
}

func TestConfirmationStopsPollingAndEntersPushing(t *testing.T) {
	m := NewMachine()
	_ = m.Apply(SignalPushFailed)
	_ = m.Apply(SignalReconnectDue)

	actions := m.Apply(SignalPushConfirmed)

	assert.Equal(t, ModePushing, m.Mode())
	assert.False(t, m.ReconnectPending())
	assert.Equal(t, []Action{ActionStopPoll}, actions)
}

func TestFailureAfterConfirmationCyclesBackToPolling(t *testing.T) {
	m := NewMachine()
	_ = m.Apply(SignalPushFailed)
	_ = m.Apply(SignalReconnectDue)
	_ = m.Apply(SignalPushConfirmed)

	actions := m.Apply(SignalPushFailed)

	assert.Equal(t, ModePolling, m.Mode())
	assert.Equal(t, []Action{ActionStartPoll, ActionScheduleReconnect}, actions,
		"each new failure arms a fresh fixed-delay attempt")
}

func TestModeStrings(t *testing.T) {
	assert.Equal(t, "pushing", ModePushing.String())
	assert.Equal(t, "polling", ModePolling.String())
}
