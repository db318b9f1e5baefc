// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/metrics"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is already enforced by the CORS middleware for
	// the rest of the API; browsers do not apply CORS to WebSocket, so the
	// dashboard is expected behind the same origin or a trusted proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope is the wire shape of one pushed WebSocket message, mirroring
// the SSE event name and data fields.
type wsEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WebSocketStream serves the WebSocket subscription.
//
// GET /api/location/ws. Delivery semantics are identical to the SSE stream;
// only the framing differs. Inbound messages are drained and discarded, the
// read pump exists solely to detect the peer closing.
func (h *Handler) WebSocketStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := h.hub.Subscribe()

	metrics.Subscribers.Inc()
	defer metrics.Subscribers.Dec()

	log := logging.Ctx(r.Context())
	log.Info().Uint64("session_id", session.ID()).Msg("websocket subscriber connected")

	peerClosed := make(chan struct{})
	go wsReadPump(conn, peerClosed)

	defer func() {
		h.hub.Unsubscribe(session)
		_ = conn.Close()
		log.Info().Uint64("session_id", session.ID()).Msg("websocket subscriber disconnected")
	}()

	for {
		select {
		case <-peerClosed:
			return
		case event, open := <-session.Events():
			if !open {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeWSEvent(conn, event); err != nil {
				return
			}
		}
	}
}

// wsReadPump discards inbound frames until the connection errors, then
// signals the writer to tear the session down. No read deadline is set:
// subscribers are passive and keepalive flows server to client via the
// heartbeat events.
func wsReadPump(conn *websocket.Conn, peerClosed chan<- struct{}) {
	defer close(peerClosed)

	conn.SetReadLimit(wsMaxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
	}
}

func writeWSEvent(conn *websocket.Conn, event hub.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return conn.WriteJSON(wsEnvelope{Event: event.Name, Data: payload})
}
