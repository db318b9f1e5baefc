// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package hub

import "sync/atomic"

// sessionIDCounter assigns unique, monotonically increasing session IDs so
// fan-out iterates sessions in a stable order.
var sessionIDCounter atomic.Uint64

// Session is one subscriber's server-side handle: an owned event queue the
// transport handler drains until the hub closes it. A session carries no
// other state.
type Session struct {
	id   uint64
	send chan Event
}

func newSession(buffer int) *Session {
	return &Session{
		id:   sessionIDCounter.Add(1),
		send: make(chan Event, buffer),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// Events returns the receive side of the session queue. The channel is
// closed when the session is unsubscribed, dropped, or the hub shuts down.
func (s *Session) Events() <-chan Event {
	return s.send
}
