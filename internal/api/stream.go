// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/metrics"
)

// Stream serves the Server-Sent Events subscription.
//
// GET /api/location/stream. The hub preloads the connection confirmation and
// the latest-state snapshot into the session, so this handler only drains
// and renders. A closed client connection cancels the request context,
// which unsubscribes the session deterministically.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	session := h.hub.Subscribe()
	defer h.hub.Unsubscribe(session)

	metrics.Subscribers.Inc()
	defer metrics.Subscribers.Dec()

	log := logging.Ctx(r.Context())
	log.Info().Uint64("session_id", session.ID()).Msg("sse subscriber connected")
	defer log.Info().Uint64("session_id", session.ID()).Msg("sse subscriber disconnected")

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-session.Events():
			if !open {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				// Serialization failures drop the event, not the stream.
				log.Warn().Err(err).Str("event", event.Name).Msg("dropping unserializable event")
				continue
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent renders one event in SSE wire format. A nil payload renders
// as an empty object, which is what heartbeats carry.
func writeSSEEvent(w io.Writer, event hub.Event) error {
	data := []byte("{}")
	if event.Payload != nil {
		encoded, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		data = encoded
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
	return err
}
