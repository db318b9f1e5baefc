// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package api

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fixpoint/internal/config"
	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/pipeline"
	"github.com/tomtom215/fixpoint/internal/store"
	"github.com/tomtom215/fixpoint/internal/throttle"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const testToken = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            3002,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Tracker: config.TrackerConfig{
			Token:          testToken,
			BodyLimitBytes: 100 * 1024,
		},
		Throttle: config.ThrottleConfig{
			Window:      time.Minute,
			MaxRequests: 100,
		},
		Stream: config.StreamConfig{
			HeartbeatInterval: 30 * time.Second,
			SessionBuffer:     64,
		},
		Security: config.SecurityConfig{
			CORSOrigins:         []string{"*"},
			ReadRateLimitReqs:   1000,
			ReadRateLimitWindow: time.Minute,
		},
	}
}

// newTestServer assembles the full stack behind an httptest server.
func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "locations.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	h := hub.New(cfg.Stream.SessionBuffer, func() (hub.Event, bool) {
		latest := st.Latest()
		if !latest.HasFix {
			return hub.Event{}, false
		}
		return hub.Event{Name: hub.EventLocation, Payload: latest}, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	p := pipeline.New(throttle.New(cfg.Throttle.Window, cfg.Throttle.MaxRequests), cfg.Tracker.Token, st, h)
	handler := NewHandler(p, st, h, cfg.Tracker.BodyLimitBytes)

	srv := httptest.NewServer(NewRouter(handler, cfg).Setup())
	t.Cleanup(srv.Close)
	return srv, st
}

func postReading(t *testing.T, srv *httptest.Server, token string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/update-location", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Tracker-Token", token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestUpdateLocationAcceptsValidReading(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp := postReading(t, srv, testToken, `{"lat":5.6037,"lng":-0.187,"spd":12.5,"sats":9}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
	receivedAt, ok := body["receivedAt"].(string)
	require.True(t, ok, "response must carry the assigned receivedAt")
	_, err := time.Parse(time.RFC3339, receivedAt)
	require.NoError(t, err)

	// The latest-state endpoint reflects exactly that reading.
	latestResp, err := srv.Client().Get(srv.URL + "/api/location")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, latestResp.StatusCode)

	latest := decodeBody(t, latestResp)
	assert.Equal(t, true, latest["hasFix"])
	assert.InDelta(t, 5.6037, latest["lat"].(float64), 1e-9)
	assert.InDelta(t, 9, latest["sats"].(float64), 0)
}

func TestUpdateLocationRejectsOutOfRangeLatitude(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	resp := postReading(t, srv, testToken, `{"lat":140,"lng":0}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "lat", body["field"])

	// Neither the log nor the cache was touched.
	assert.False(t, st.Latest().HasFix)
	history, err := st.History(10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpdateLocationRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp := postReading(t, srv, "", `{"lat":1,"lng":2}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestUpdateLocationThrottles(t *testing.T) {
	cfg := testConfig()
	cfg.Throttle.MaxRequests = 2

	srv, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		resp := postReading(t, srv, testToken, `{"lat":1,"lng":2}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := postReading(t, srv, testToken, `{"lat":1,"lng":2}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "rate_limit", body["error"])
	assert.Greater(t, body["retryAfterMs"].(float64), 0.0)
}

func TestRateLimitResponseCarriesZeroRetryHint(t *testing.T) {
	// A denial with a sub-millisecond remainder truncates to zero; the hint
	// key must still be on the wire for clients that branch on it.
	rec := httptest.NewRecorder()
	writeRateLimitError(rec, 0)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "retryAfterMs")
	assert.EqualValues(t, 0, body["retryAfterMs"])
}

func TestUpdateLocationRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp := postReading(t, srv, testToken, `{"lat":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "validation_error", body["error"])
}

func TestUpdateLocationRejectsOversizedBody(t *testing.T) {
	cfg := testConfig()
	cfg.Tracker.BodyLimitBytes = 64

	srv, _ := newTestServer(t, cfg)

	big := `{"lat":1,"lng":2,"deviceTime":"` + strings.Repeat("x", 256) + `"}`
	resp := postReading(t, srv, testToken, big)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestLatestWithoutFix(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/api/location")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["hasFix"])
	assert.Nil(t, body["receivedAt"])
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	for i := 0; i < 5; i++ {
		resp := postReading(t, srv, testToken, `{"lat":1,"lng":2}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp, err := srv.Client().Get(srv.URL + "/api/location/history?limit=3")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
	assert.InDelta(t, 3, body["limit"].(float64), 0)
	assert.InDelta(t, 3, body["count"].(float64), 0)
	assert.Len(t, body["items"].([]interface{}), 3)
}

func TestHistoryLimitClampAndDefault(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	cases := map[string]float64{
		"":            200,
		"?limit=0":    1,
		"?limit=9999": 5000,
		"?limit=abc":  200,
	}
	for query, want := range cases {
		resp, err := srv.Client().Get(srv.URL + "/api/location/history" + query)
		require.NoError(t, err)
		body := decodeBody(t, resp)
		assert.InDelta(t, want, body["limit"].(float64), 0, "query %q", query)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["hasFix"])
	assert.Nil(t, body["lastUpdateAgeMs"])

	ingest := postReading(t, srv, testToken, `{"lat":1,"lng":2}`)
	require.Equal(t, http.StatusOK, ingest.StatusCode)
	_ = ingest.Body.Close()

	resp, err = srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, true, body["hasFix"])
	require.NotNil(t, body["lastUpdateAgeMs"])
	assert.GreaterOrEqual(t, body["lastUpdateAgeMs"].(float64), 0.0)
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// readSSEEvents parses count events from an open SSE stream.
func readSSEEvents(t *testing.T, body io.Reader, count int) []sseEvent {
	t.Helper()
	scanner := bufio.NewScanner(body)

	var events []sseEvent
	var current sseEvent
	for len(events) < count && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.name != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	require.Len(t, events, count, "stream ended early")
	return events
}

func TestStreamDeliversConnectedSnapshotAndLive(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	// Seed a fix so subscribers get a snapshot.
	seed := postReading(t, srv, testToken, `{"lat":5.6,"lng":-0.18,"sats":9}`)
	require.Equal(t, http.StatusOK, seed.StatusCode)
	_ = seed.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/location/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	type result struct {
		events []sseEvent
	}
	results := make(chan result, 1)
	go func() {
		results <- result{events: readSSEEvents(t, resp.Body, 3)}
	}()

	// Give the subscription a moment to settle, then publish a live event.
	time.Sleep(100 * time.Millisecond)
	live := postReading(t, srv, testToken, `{"lat":6.7,"lng":-1.5,"sats":9}`)
	require.Equal(t, http.StatusOK, live.StatusCode)
	_ = live.Body.Close()

	select {
	case got := <-results:
		require.Len(t, got.events, 3)
		assert.Equal(t, "connected", got.events[0].name)
		assert.JSONEq(t, `{"ok":true}`, got.events[0].data)

		assert.Equal(t, "location", got.events[1].name, "snapshot precedes live events")
		var snapshot map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(got.events[1].data), &snapshot))
		assert.InDelta(t, 5.6, snapshot["lat"].(float64), 1e-9)

		assert.Equal(t, "location", got.events[2].name)
		var liveState map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(got.events[2].data), &liveState))
		assert.InDelta(t, 6.7, liveState["lat"].(float64), 1e-9)
		assert.Equal(t, true, liveState["hasFix"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for SSE events")
	}
}

func TestWebSocketDeliversConnectedFirst(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/location/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() {
		_ = conn.Close()
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var envelope wsEnvelope
	require.NoError(t, conn.ReadJSON(&envelope))
	assert.Equal(t, "connected", envelope.Event)
}

func TestRequestIDHeaderPresent(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
