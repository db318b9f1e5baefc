// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package validation

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tomtom215/fixpoint/internal/models"
)

// FieldError is a rejection of a single report field. It carries the wire
// field name so the API layer can return it verbatim.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// deviceTimeLayouts are the accepted device timestamp formats, tried in
// order. All parsed values are normalized to RFC3339 UTC.
var deviceTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseReport converts an untyped report body into a typed Reading, or a
// FieldError naming the first offending field.
//
// Fields are checked in a fixed order (lat, lng, spd, sats, deviceTime) so
// that error messages are deterministic. Speed and satellite count default to
// zero when absent. The returned Reading has no ReceivedAt stamp; that is the
// pipeline's job. ParseReport has no side effects and never panics on
// malformed input.
func ParseReport(raw map[string]interface{}) (models.Reading, *FieldError) {
	lat, ok := toFiniteNumber(raw["lat"])
	if !ok || lat < models.MinLatitude || lat > models.MaxLatitude {
		return models.Reading{}, &FieldError{Field: "lat", Message: "lat must be a number between -90 and 90"}
	}

	lng, ok := toFiniteNumber(raw["lng"])
	if !ok || lng < models.MinLongitude || lng > models.MaxLongitude {
		return models.Reading{}, &FieldError{Field: "lng", Message: "lng must be a number between -180 and 180"}
	}

	spd := 0.0
	if v, present := raw["spd"]; present && v != nil {
		spd, ok = toFiniteNumber(v)
		if !ok || spd < models.MinSpeed || spd > models.MaxSpeed {
			return models.Reading{}, &FieldError{Field: "spd", Message: "spd must be a number between 0 and 400"}
		}
	}

	sats := 0.0
	if v, present := raw["sats"]; present && v != nil {
		sats, ok = toFiniteNumber(v)
		if !ok || sats < models.MinSats || sats > models.MaxSats || sats != math.Trunc(sats) {
			return models.Reading{}, &FieldError{Field: "sats", Message: "sats must be an integer between 0 and 100"}
		}
	}

	deviceTime, fieldErr := parseDeviceTime(raw["deviceTime"])
	if fieldErr != nil {
		return models.Reading{}, fieldErr
	}

	return models.Reading{
		Lat:        lat,
		Lng:        lng,
		Spd:        spd,
		Sats:       int(sats),
		DeviceTime: deviceTime,
	}, nil
}

// parseDeviceTime normalizes an optional device timestamp. Absent, nil, or
// empty is valid and yields the zero DeviceTime.
func parseDeviceTime(v interface{}) (models.DeviceTime, *FieldError) {
	if v == nil {
		return "", nil
	}

	s, ok := v.(string)
	if !ok {
		return "", &FieldError{Field: "deviceTime", Message: "deviceTime must be a timestamp string"}
	}
	if s == "" {
		return "", nil
	}

	for _, layout := range deviceTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DeviceTime(t.UTC().Format(time.RFC3339)), nil
		}
	}
	return "", &FieldError{Field: "deviceTime", Message: "deviceTime must be a valid timestamp"}
}

// toFiniteNumber coerces a decoded JSON value to a finite float64. Strings
// holding numeric text are accepted since tracker firmware frequently sends
// numbers quoted.
func toFiniteNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
