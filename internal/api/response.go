// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fixpoint/internal/logging"
)

// Stable wire error codes. Clients branch on these, so they never change.
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimit    = "rate_limit"
	ErrCodeInternal     = "internal_error"
)

// errorResponse is the wire shape of every failed request.
type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`

	// Field names the offending field on validation errors.
	Field string `json:"field,omitempty"`

	// RetryAfterMs is present on every rate_limit response, zero included,
	// and absent from all other error codes.
	RetryAfterMs *int64 `json:"retryAfterMs,omitempty"`
}

// writeJSON serializes v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to write response body")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeValidationError(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   ErrCodeValidation,
		Field:   field,
		Message: message,
	})
}

func writeRateLimitError(w http.ResponseWriter, retryAfterMs int64) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:        ErrCodeRateLimit,
		Message:      "Too many requests",
		RetryAfterMs: &retryAfterMs,
	})
}
