// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package dashclient

import "fmt"

// Mode is the driving transport.
type Mode int

const (
	// ModePushing means a confirmed push subscription drives updates.
	ModePushing Mode = iota

	// ModePolling means a fixed-interval pull loop drives updates.
	ModePolling
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModePushing:
		return "pushing"
	case ModePolling:
		return "polling"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Signal is an observed transport event fed into the machine.
type Signal int

const (
	// SignalPushConfirmed fires on the subscription acknowledgment event,
	// not merely on a successfully opened connection.
	SignalPushConfirmed Signal = iota

	// SignalPushFailed fires when the push channel errors or closes.
	SignalPushFailed

	// SignalReconnectDue fires when the scheduled reconnect delay elapses.
	SignalReconnectDue
)

// Action is an effect the runtime must perform after a transition.
type Action int

const (
	// ActionStartPoll begins the pull loop with an immediate first pull.
	ActionStartPoll Action = iota

	// ActionStopPoll cancels the pull loop.
	ActionStopPoll

	// ActionScheduleReconnect arms one reconnect attempt after the fixed
	// delay. Never more than one is armed at a time.
	ActionScheduleReconnect

	// ActionDial opens a new push connection attempt.
	ActionDial
)

// Machine is the pure transport-selection state machine. It holds the mode
// plus whether a reconnect attempt is pending, and emits the actions the
// runtime must execute for each signal. It performs no I/O, so transitions
// are testable with simulated signals alone.
//
// The guarantees: once started there is always a driving transport, and in
// steady state exactly one of pushing or polling drives (a just-opened but
// unconfirmed push attempt may briefly coexist with an active poll loop).
type Machine struct {
	mode             Mode
	reconnectPending bool
}

// NewMachine returns the initial machine state. The initial mode is
// pushing: the runtime's first act is a dial, and a failure drops it to
// polling through the normal transition.
func NewMachine() *Machine {
	return &Machine{mode: ModePushing}
}

// Mode returns the current driving transport.
func (m *Machine) Mode() Mode {
	return m.mode
}

// ReconnectPending reports whether a reconnect attempt is armed.
func (m *Machine) ReconnectPending() bool {
	return m.reconnectPending
}

// Apply advances the machine by one signal and returns the actions to
// perform, in order.
func (m *Machine) Apply(signal Signal) []Action {
	switch signal {
	case SignalPushConfirmed:
		m.mode = ModePushing
		m.reconnectPending = false
		return []Action{ActionStopPoll}

	case SignalPushFailed:
		m.mode = ModePolling
		if m.reconnectPending {
			// A failure while an attempt is already armed changes nothing.
			return []Action{ActionStartPoll}
		}
		m.reconnectPending = true
		return []Action{ActionStartPoll, ActionScheduleReconnect}

	case SignalReconnectDue:
		if !m.reconnectPending {
			return nil
		}
		m.reconnectPending = false
		return []Action{ActionDial}

	default:
		return nil
	}
}
