// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package api exposes the HTTP surface: report ingestion, latest state,
// history, live subscriptions, and health.
package api

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/models"
	"github.com/tomtom215/fixpoint/internal/pipeline"
	"github.com/tomtom215/fixpoint/internal/store"
	"github.com/tomtom215/fixpoint/internal/validation"
)

// History query bounds. The clamp keeps a single request from forcing a
// full-log read into one response.
const (
	historyDefaultLimit = 200
	historyMinLimit     = 1
	historyMaxLimit     = 5000
)

// Handler holds the service objects the endpoints operate on. Constructed
// once at startup; no ambient singletons, so tests can build isolated
// instances freely.
type Handler struct {
	pipeline  *pipeline.Pipeline
	store     *store.Store
	hub       *hub.Hub
	bodyLimit int64
	startedAt time.Time
	logger    zerolog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewHandler creates the endpoint handler set.
func NewHandler(p *pipeline.Pipeline, st *store.Store, h *hub.Hub, bodyLimit int64) *Handler {
	return &Handler{
		pipeline:  p,
		store:     st,
		hub:       h,
		bodyLimit: bodyLimit,
		startedAt: time.Now(),
		logger:    logging.WithComponent("api"),
		now:       time.Now,
	}
}

type ingestResponse struct {
	OK         bool   `json:"ok"`
	ReceivedAt string `json:"receivedAt"`
}

// UpdateLocation ingests one device report.
//
// POST /update-location. The body is decoded untyped and handed to the
// pipeline; everything downstream of validation works on the typed Reading
// only. Success returns the assigned receivedAt stamp.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit)

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeValidation, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "request body must be a JSON object")
		return
	}

	reading, err := h.pipeline.Submit(r.Context(), clientKey(r), r.Header.Get("X-Tracker-Token"), raw)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		OK:         true,
		ReceivedAt: reading.ReceivedAt.Format(time.RFC3339),
	})
}

// writePipelineError maps a typed pipeline failure to its wire code.
func (h *Handler) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var throttled *pipeline.ThrottledError
	if errors.As(err, &throttled) {
		writeRateLimitError(w, throttled.RetryAfter.Milliseconds())
		return
	}

	if errors.Is(err, pipeline.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing or invalid X-Tracker-Token header")
		return
	}

	var fieldErr *validation.FieldError
	if errors.As(err, &fieldErr) {
		writeValidationError(w, fieldErr.Field, fieldErr.Message)
		return
	}

	logging.Ctx(r.Context()).Error().Err(err).Msg("ingestion failed")
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "Unexpected server error")
}

// Latest serves the current latest state.
//
// GET /api/location. Always succeeds; "no fix yet" is a normal response
// with hasFix false, not an error.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Latest())
}

type historyResponse struct {
	OK    bool             `json:"ok"`
	Limit int              `json:"limit"`
	Count int              `json:"count"`
	Items []models.Reading `json:"items"`
}

// History serves the most recent readings, oldest first.
//
// GET /api/location/history?limit=N. The limit is clamped to
// [historyMinLimit, historyMaxLimit], defaulting to historyDefaultLimit when
// absent or unparsable.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(r.URL.Query().Get("limit"), historyDefaultLimit, historyMinLimit, historyMaxLimit)

	items, err := h.store.History(limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to read history")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "Unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		OK:    true,
		Limit: limit,
		Count: len(items),
		Items: items,
	})
}

type healthResponse struct {
	Status    string  `json:"status"`
	UptimeSec float64 `json:"uptimeSec"`
	HasFix    bool    `json:"hasFix"`

	// LastUpdateAgeMs is null when no fix exists.
	LastUpdateAgeMs *int64 `json:"lastUpdateAgeMs"`
}

// Health reports process liveness, fix presence, and reading freshness.
//
// GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	latest := h.store.Latest()

	resp := healthResponse{
		Status:    "ok",
		UptimeSec: math.Round(now.Sub(h.startedAt).Seconds()*10) / 10,
		HasFix:    latest.HasFix,
	}
	if age, ok := latest.AgeAt(now); ok {
		resp.LastUpdateAgeMs = &age
	}

	writeJSON(w, http.StatusOK, resp)
}

// clampLimit parses a count query parameter, falling back on garbage and
// clamping to [min, max]. Fractional values are floored.
func clampLimit(value string, fallback, min, max int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return fallback
	}

	limit := int(math.Floor(parsed))
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// clientKey derives the throttle source key for a request: the client IP
// without the port. RealIP middleware has already resolved forwarded
// addresses upstream.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}
