// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package pipeline composes the ingestion path for device reports.
//
// A submitted report passes through a fixed stage order: throttle, token
// check, validation, durable append, broadcast. Throttling runs before the
// token check so that a flood of requests is rejected by the cheapest stage
// first, and so an attacker probing tokens cannot bypass rate limiting.
// Stage order also fixes which error wins when a request would fail several
// stages at once.
package pipeline

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/metrics"
	"github.com/tomtom215/fixpoint/internal/models"
	"github.com/tomtom215/fixpoint/internal/store"
	"github.com/tomtom215/fixpoint/internal/throttle"
	"github.com/tomtom215/fixpoint/internal/validation"
)

// Pipeline runs every device report through throttle, auth, validation,
// persistence, and fan-out, in that order.
type Pipeline struct {
	throttle *throttle.Throttle
	token    string
	store    *store.Store
	hub      *hub.Hub
	logger   zerolog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// New assembles the ingestion pipeline. token is the shared secret device
// reports must present; an empty token disables the auth stage.
func New(th *throttle.Throttle, token string, st *store.Store, h *hub.Hub) *Pipeline {
	return &Pipeline{
		throttle: th,
		token:    token,
		store:    st,
		hub:      h,
		logger:   logging.WithComponent("pipeline"),
		now:      time.Now,
	}
}

// Submit processes one raw device report from sourceKey carrying the given
// auth token.
//
// On success the returned Reading is durably appended, cached as latest, and
// broadcast to subscribers. Failures are typed: *ThrottledError,
// ErrUnauthorized, *validation.FieldError, or a wrapped internal error, so
// the API layer can map each to its wire code. ReceivedAt is stamped at the
// moment validation succeeds; persistence latency does not shift it.
func (p *Pipeline) Submit(ctx context.Context, sourceKey, token string, raw map[string]interface{}) (models.Reading, error) {
	if result := p.throttle.Admit(sourceKey); !result.Allowed {
		metrics.RecordIngestOutcome(metrics.OutcomeThrottled)
		p.logger.Warn().
			Str("source", sourceKey).
			Dur("retry_after", result.RetryAfter).
			Msg("report throttled")
		return models.Reading{}, &ThrottledError{RetryAfter: result.RetryAfter}
	}

	if !p.authorized(token) {
		metrics.RecordIngestOutcome(metrics.OutcomeUnauthorized)
		p.logger.Warn().Str("source", sourceKey).Msg("report rejected, bad token")
		return models.Reading{}, ErrUnauthorized
	}

	reading, fieldErr := validation.ParseReport(raw)
	if fieldErr != nil {
		metrics.RecordIngestOutcome(metrics.OutcomeInvalid)
		p.logger.Warn().
			Str("source", sourceKey).
			Str("field", fieldErr.Field).
			Msg("report failed validation")
		return models.Reading{}, fieldErr
	}
	reading.ReceivedAt = p.now().UTC()

	if err := p.store.Append(ctx, reading); err != nil {
		metrics.RecordIngestOutcome(metrics.OutcomeInternal)
		p.logger.Error().Err(err).Str("source", sourceKey).Msg("failed to persist reading")
		return models.Reading{}, fmt.Errorf("failed to persist reading: %w", err)
	}

	// Broadcast only after the append succeeded: subscribers never see a
	// reading the log does not hold.
	p.hub.Publish(hub.EventLocation, models.StateFromReading(reading))
	metrics.RecordIngestOutcome(metrics.OutcomeAccepted)
	metrics.RecordBroadcast(hub.EventLocation)
	metrics.LogAppendsTotal.Inc()

	p.logger.Debug().
		Str("source", sourceKey).
		Float64("lat", reading.Lat).
		Float64("lng", reading.Lng).
		Time("received_at", reading.ReceivedAt).
		Msg("reading accepted")

	return reading, nil
}

// authorized performs a constant-time comparison of the presented token
// against the configured one.
func (p *Pipeline) authorized(token string) bool {
	if p.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(p.token)) == 1
}
