// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package dashclient implements the consumer side of the live feed: status
// derivation from reading age and the transport selector that keeps a
// dashboard on exactly one driving transport, push preferred, polling as
// fallback.
package dashclient

import "fmt"

// Freshness thresholds in milliseconds. A reading older than the online
// threshold is stale; older than the offline threshold, the tracker is
// treated as gone.
const (
	OnlineThresholdMs  = 15000
	OfflineThresholdMs = 60000
)

// Status is the derived tracker freshness.
type Status int

const (
	StatusOnline Status = iota
	StatusStale
	StatusOffline
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusStale:
		return "stale"
	case StatusOffline:
		return "offline"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Text returns the display label shown on the dashboard status pill.
func (s Status) Text() string {
	switch s {
	case StatusOnline:
		return "Tracker Live"
	case StatusStale:
		return "Tracker Stale"
	default:
		return "Server Offline"
	}
}

// DeriveStatus maps a reading age to a freshness status. known is false
// when no age is available (no fix yet), which reads as offline. Both
// thresholds are inclusive on the fresher side: exactly 15000 ms is still
// online and exactly 60000 ms is still stale.
func DeriveStatus(ageMs int64, known bool) Status {
	if !known || ageMs > OfflineThresholdMs {
		return StatusOffline
	}
	if ageMs > OnlineThresholdMs {
		return StatusStale
	}
	return StatusOnline
}

// BuildMapsURL returns the external map link for a position.
func BuildMapsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", lat, lng)
}
