// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package models defines the core data types shared across the ingestion
// pipeline, store, hub, and API layers.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Validation bounds for a Reading. The speed ceiling is a unit-agnostic
// sanity bound, not a physical limit.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinSpeed     = 0.0
	MaxSpeed     = 400.0
	MinSats      = 0
	MaxSats      = 100
)

// DeviceTime is a device-reported timestamp normalized to RFC3339 UTC. The
// zero value means the device did not report one and marshals as literal
// null, which is the wire shape dashboards consume.
type DeviceTime string

// MarshalJSON emits null for an absent device timestamp.
func (d DeviceTime) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts null, an empty string, or a timestamp string, so
// log lines written before the null convention still parse.
func (d *DeviceTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = DeviceTime(s)
	return nil
}

// Reading is one validated position sample from the tracked device.
//
// Readings are constructed only by the validator, stamped with ReceivedAt by
// the ingestion pipeline, and immutable afterwards. The JSON field names are
// the wire format used both in API responses and in the append-only log file,
// so they must not change.
type Reading struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Spd  float64 `json:"spd"`
	Sats int     `json:"sats"`

	// DeviceTime is empty when the device did not report one; it still
	// appears on the wire as null.
	DeviceTime DeviceTime `json:"deviceTime"`

	// ReceivedAt is assigned by the pipeline at the moment validation
	// succeeds, so queuing and throttling delay is excluded from the stamp.
	ReceivedAt time.Time `json:"receivedAt"`
}

// LatestState is the derived "most recent reading" view served by the cache.
// HasFix false is the initial state and also the recovery result for an
// empty or unreadable log.
type LatestState struct {
	HasFix     bool       `json:"hasFix"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Spd        float64    `json:"spd"`
	Sats       int        `json:"sats"`
	DeviceTime DeviceTime `json:"deviceTime"`

	// ReceivedAt is nil when no fix exists.
	ReceivedAt *time.Time `json:"receivedAt"`
}

// NoFix returns the sentinel "no fix yet" state.
func NoFix() LatestState {
	return LatestState{HasFix: false}
}

// StateFromReading builds the LatestState view of a single reading.
func StateFromReading(r Reading) LatestState {
	received := r.ReceivedAt
	return LatestState{
		HasFix:     true,
		Lat:        r.Lat,
		Lng:        r.Lng,
		Spd:        r.Spd,
		Sats:       r.Sats,
		DeviceTime: r.DeviceTime,
		ReceivedAt: &received,
	}
}

// AgeAt returns the age of the latest reading relative to now, in
// milliseconds. The second return is false when no fix exists.
func (s LatestState) AgeAt(now time.Time) (int64, bool) {
	if !s.HasFix || s.ReceivedAt == nil {
		return 0, false
	}
	return now.Sub(*s.ReceivedAt).Milliseconds(), true
}
