// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package hub maintains the set of live dashboard subscriber sessions and
// fans published events out to all of them.
//
// The hub is transport-agnostic: a session is just an owned event queue.
// The SSE and WebSocket handlers each drain one session and render events
// for their wire format. Delivery is best-effort; a session whose queue is
// full is dropped rather than allowed to block fan-out to others.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/fixpoint/internal/logging"
)

// Event names pushed to subscribers.
const (
	EventConnected = "connected"
	EventLocation  = "location"
	EventHeartbeat = "heartbeat"
)

// Event is one push message. Name maps to the SSE event field and Payload
// to its data.
type Event struct {
	Name    string
	Payload interface{}
}

// SnapshotFunc produces the synthetic first event for a new subscriber,
// typically the current latest state. The second return is false when there
// is nothing to snapshot (no fix yet).
type SnapshotFunc func() (Event, bool)

// Hub fans published events out to every subscribed session.
//
// All session-set mutation happens on the RunWithContext goroutine via the
// register/unregister channels; the mutex only guards reads from other
// goroutines (SessionCount).
type Hub struct {
	sessions   map[*Session]bool
	broadcast  chan Event
	register   chan *Session
	unregister chan *Session

	snapshot      SnapshotFunc
	sessionBuffer int

	// done is closed when the run loop exits so Subscribe/Unsubscribe
	// cannot block on a hub that is no longer draining its channels.
	done     chan struct{}
	doneOnce sync.Once

	mu sync.RWMutex
}

// New creates a Hub. snapshot may be nil when no subscribe-time state push
// is wanted; sessionBuffer is the per-session queue depth.
func New(sessionBuffer int, snapshot SnapshotFunc) *Hub {
	if sessionBuffer <= 0 {
		sessionBuffer = 64
	}
	return &Hub{
		sessions:      make(map[*Session]bool),
		broadcast:     make(chan Event, 256),
		register:      make(chan *Session),
		unregister:    make(chan *Session),
		snapshot:      snapshot,
		sessionBuffer: sessionBuffer,
		done:          make(chan struct{}),
	}
}

// Subscribe creates a session and registers it with the hub. The session's
// queue is preloaded with a connection confirmation and, when a snapshot
// exists, the current latest state, so every subscriber sees those before
// any live event, closing the initial gap for late joiners.
//
// The preload is best-effort: a queue too small to hold both events keeps
// the confirmation and drops the snapshot instead of blocking the
// subscribing handler. Validated configurations size the buffer to hold
// both.
func (h *Hub) Subscribe() *Session {
	s := newSession(h.sessionBuffer)

	preload := []Event{{Name: EventConnected, Payload: map[string]bool{"ok": true}}}
	if h.snapshot != nil {
		if event, ok := h.snapshot(); ok {
			preload = append(preload, event)
		}
	}
	for _, event := range preload {
		select {
		case s.send <- event:
		default:
			logging.Warn().
				Uint64("session_id", s.id).
				Str("event", event.Name).
				Msg("session buffer cannot hold preload, dropping event")
		}
	}

	select {
	case h.register <- s:
	case <-h.done:
		close(s.send)
	}
	return s
}

// Unsubscribe removes the session and closes its queue. Safe to call for a
// session the hub already dropped or after the hub has stopped.
func (h *Hub) Unsubscribe(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Publish fans an event out to every subscribed session, best-effort.
// Never blocks the caller: if the hub's intake is full the event is dropped
// with a warning (subscribers recover via the latest-state endpoint).
func (h *Hub) Publish(name string, payload interface{}) {
	select {
	case h.broadcast <- Event{Name: name, Payload: payload}:
	default:
		logging.Warn().Str("event", name).Msg("broadcast channel full, dropping event")
	}
}

// SessionCount returns the number of subscribed sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes every session and returns ctx.Err(). Designed for suture
// supervision.
//
// Selection is priority-ordered — shutdown, then session lifecycle, then
// broadcasts — so the session set is consistent before an event fans out
// even when multiple channels are ready at once.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case s := <-h.register:
			h.addSession(s)
			continue
		case s := <-h.unregister:
			h.dropSession(s)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case s := <-h.register:
			h.addSession(s)
		case s := <-h.unregister:
			h.dropSession(s)
		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s] = true
	total := len(h.sessions)
	h.mu.Unlock()
	logging.Info().Int("total_sessions", total).Msg("subscriber connected")
}

func (h *Hub) dropSession(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
		close(s.send)
	}
	total := len(h.sessions)
	h.mu.Unlock()
	if ok {
		logging.Info().Int("total_sessions", total).Msg("subscriber disconnected")
	}
}

// fanOut delivers one event to every session in id order. Sessions receive
// events in publish order; a session with a full queue is dropped.
func (h *Hub) fanOut(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].id < sessions[j].id
	})

	var toDrop []*Session
	for _, s := range sessions {
		select {
		case s.send <- event:
		default:
			toDrop = append(toDrop, s)
		}
	}

	for _, s := range toDrop {
		delete(h.sessions, s)
		close(s.send)
		logging.Warn().Uint64("session_id", s.id).Msg("dropping slow subscriber")
	}
}

func (h *Hub) closeAll() {
	h.doneOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	count := len(h.sessions)
	for s := range h.sessions {
		delete(h.sessions, s)
		close(s.send)
	}
	h.mu.Unlock()
	logging.Info().Str("component", "hub").Int("sessions_closed", count).Msg("hub stopped")
}
