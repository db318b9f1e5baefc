// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package metrics provides Prometheus instrumentation for ingestion
// outcomes, fan-out, subscriber counts, and API latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcome label values.
const (
	OutcomeAccepted     = "accepted"
	OutcomeThrottled    = "throttled"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid"
	OutcomeInternal     = "internal_error"
)

var (
	// IngestReportsTotal counts device reports by pipeline outcome.
	IngestReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixpoint_ingest_reports_total",
			Help: "Total number of device reports by ingestion outcome",
		},
		[]string{"outcome"},
	)

	// BroadcastEventsTotal counts events fanned out through the hub.
	BroadcastEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixpoint_broadcast_events_total",
			Help: "Total number of events published to the broadcast hub",
		},
		[]string{"event"},
	)

	// Subscribers tracks the current number of live push sessions.
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fixpoint_subscribers",
			Help: "Current number of subscribed push sessions",
		},
	)

	// LogAppendsTotal counts durable log appends.
	LogAppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fixpoint_log_appends_total",
			Help: "Total number of readings appended to the location log",
		},
	)

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fixpoint_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// APIActiveRequests tracks in-flight HTTP requests.
	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fixpoint_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)
)

// RecordIngestOutcome increments the report counter for one outcome.
func RecordIngestOutcome(outcome string) {
	IngestReportsTotal.WithLabelValues(outcome).Inc()
}

// RecordBroadcast increments the fan-out counter for one event name.
func RecordBroadcast(event string) {
	BroadcastEventsTotal.WithLabelValues(event).Inc()
}

// RecordAPIRequest observes one completed HTTP request.
func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
