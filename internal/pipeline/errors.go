// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthorized is returned when the shared tracker token is missing or
// does not match.
var ErrUnauthorized = errors.New("invalid or missing tracker token")

// ThrottledError is returned when a source key has exhausted its admission
// window. RetryAfter tells the caller how long to back off.
type ThrottledError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many reports, retry after %s", e.RetryAfter)
}
