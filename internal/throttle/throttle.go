// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package throttle implements per-source fixed-window admission control for
// the ingestion endpoint.
//
// The algorithm is a fixed window, not a true sliding window: each source key
// gets a bucket of {count, windowResetAt}; the bucket silently resets once
// its window has elapsed. This is abuse mitigation, not billing-grade
// accounting. Buckets are never destroyed, which is acceptable for the
// expected handful of distinct source addresses.
package throttle

import (
	"sync"
	"time"
)

// Result is the outcome of an admission check. RetryAfter is only
// meaningful when Allowed is false.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Throttle gates write traffic per source key.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	window      time.Duration
	maxRequests int

	// now is injectable for tests.
	now func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// New creates a Throttle admitting up to maxRequests per window for each
// distinct source key. Both arguments must be positive.
func New(window time.Duration, maxRequests int) *Throttle {
	return &Throttle{
		buckets:     make(map[string]*bucket),
		window:      window,
		maxRequests: maxRequests,
		now:         time.Now,
	}
}

// Admit checks whether a request from the given source key may proceed.
// Denials report how long the caller should wait before retrying.
func (t *Throttle) Admit(sourceKey string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	b, ok := t.buckets[sourceKey]
	if !ok || now.After(b.resetAt) {
		t.buckets[sourceKey] = &bucket{count: 1, resetAt: now.Add(t.window)}
		return Result{Allowed: true}
	}

	if b.count < t.maxRequests {
		b.count++
		return Result{Allowed: true}
	}

	return Result{Allowed: false, RetryAfter: b.resetAt.Sub(now)}
}

// Len returns the number of tracked source keys.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
