// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/models"
	"github.com/tomtom215/fixpoint/internal/store"
	"github.com/tomtom215/fixpoint/internal/throttle"
	"github.com/tomtom215/fixpoint/internal/validation"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const testToken = "secret-token"

func validReport() map[string]interface{} {
	return map[string]interface{}{
		"lat":  5.6037,
		"lng":  -0.1870,
		"spd":  42.5,
		"sats": float64(9),
	}
}

// newTestPipeline wires a pipeline against a temp-dir store and a running hub.
func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *hub.Hub) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "locations.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	h := hub.New(16, nil)
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

	p := New(throttle.New(time.Minute, 10), testToken, st, h)
	return p, st, h
}

func TestSubmitAcceptsValidReport(t *testing.T) {
	p, st, _ := newTestPipeline(t)

	before := time.Now()
	reading, err := p.Submit(context.Background(), "10.0.0.1", testToken, validReport())
	require.NoError(t, err)

	assert.InDelta(t, 5.6037, reading.Lat, 1e-9)
	assert.Equal(t, 9, reading.Sats)
	assert.False(t, reading.ReceivedAt.Before(before.UTC().Truncate(time.Second)))

	latest := st.Latest()
	require.True(t, latest.HasFix)
	assert.InDelta(t, reading.Lat, latest.Lat, 1e-9)
}

func TestSubmitBroadcastsAcceptedReading(t *testing.T) {
	p, _, h := newTestPipeline(t)

	s := h.Subscribe()
	defer h.Unsubscribe(s)

	// Drain the preloaded connection event.
	event := <-s.Events()
	require.Equal(t, hub.EventConnected, event.Name)

	_, err := p.Submit(context.Background(), "10.0.0.1", testToken, validReport())
	require.NoError(t, err)

	select {
	case event := <-s.Events():
		require.Equal(t, hub.EventLocation, event.Name)
		state, ok := event.Payload.(models.LatestState)
		require.True(t, ok)
		assert.True(t, state.HasFix)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestSubmitRejectsBadToken(t *testing.T) {
	p, st, _ := newTestPipeline(t)

	_, err := p.Submit(context.Background(), "10.0.0.1", "wrong", validReport())
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = p.Submit(context.Background(), "10.0.0.1", "", validReport())
	require.ErrorIs(t, err, ErrUnauthorized)

	assert.False(t, st.Latest().HasFix, "rejected report must not be persisted")
}

func TestSubmitEmptyConfiguredTokenDisablesAuth(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "locations.jsonl"))
	require.NoError(t, err)
	defer func() {
		_ = st.Close()
	}()

	p := New(throttle.New(time.Minute, 10), "", st, hub.New(16, nil))

	_, err = p.Submit(context.Background(), "10.0.0.1", "", validReport())
	require.NoError(t, err)
}

func TestSubmitRejectsInvalidReading(t *testing.T) {
	p, st, _ := newTestPipeline(t)

	report := validReport()
	report["lat"] = 140.0

	_, err := p.Submit(context.Background(), "10.0.0.1", testToken, report)

	var fieldErr *validation.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "lat", fieldErr.Field)
	assert.False(t, st.Latest().HasFix)
}

func TestSubmitThrottlesBeforeAuth(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "locations.jsonl"))
	require.NoError(t, err)
	defer func() {
		_ = st.Close()
	}()

	p := New(throttle.New(time.Minute, 2), testToken, st, hub.New(16, nil))

	for i := 0; i < 2; i++ {
		_, err := p.Submit(context.Background(), "10.0.0.1", testToken, validReport())
		require.NoError(t, err)
	}

	// The third request exceeds the window even with a bad token: the
	// throttle verdict must win over the auth verdict.
	_, err = p.Submit(context.Background(), "10.0.0.1", "wrong", validReport())

	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Greater(t, throttled.RetryAfter, time.Duration(0))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestSubmitThrottleKeysAreIndependent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "locations.jsonl"))
	require.NoError(t, err)
	defer func() {
		_ = st.Close()
	}()

	p := New(throttle.New(time.Minute, 1), testToken, st, hub.New(16, nil))

	_, err = p.Submit(context.Background(), "10.0.0.1", testToken, validReport())
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), "10.0.0.2", testToken, validReport())
	require.NoError(t, err, "a second source must have its own window")
}

func TestSubmitStampsReceivedAtAtValidation(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("GMT+2", 2*3600))
	p.now = func() time.Time { return fixed }

	reading, err := p.Submit(context.Background(), "10.0.0.1", testToken, validReport())
	require.NoError(t, err)

	assert.True(t, reading.ReceivedAt.Equal(fixed))
	assert.Equal(t, time.UTC, reading.ReceivedAt.Location(), "stamp must be normalized to UTC")
}
