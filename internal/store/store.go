// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package store persists accepted readings to an append-only
// newline-delimited JSON log and mirrors the most recent reading in memory.
//
// The log file is the single durable artifact of the process. One JSON
// object per line, in acceptance order, never compacted. The in-memory
// latest-state cache is rebuilt from the final well-formed line at startup
// and updated only after a successful append, so it never reflects data the
// log does not hold.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/models"
)

// Stats contains store counters for health and metrics.
type Stats struct {
	// TotalAppends is the number of successful appends since open.
	TotalAppends int64

	// LastAppendAt is the wall time of the last successful append.
	// Zero when nothing has been appended since open.
	LastAppendAt time.Time
}

// Store owns the location log file and the latest-state cache.
//
// Appends are serialized by a single writer mutex; the same mutex guards
// history reads so a reader never observes a partially written final line.
// The latest-state cache has its own RWMutex so Latest() stays cheap and
// never touches the file.
type Store struct {
	path string

	mu   sync.Mutex // serializes file access (appends and history reads)
	file *os.File

	latestMu sync.RWMutex
	latest   models.LatestState

	totalAppends atomic.Int64
	lastAppendMu sync.Mutex
	lastAppendAt time.Time

	logger zerolog.Logger
}

// Open creates the log directory if needed, opens the log for appending, and
// recovers the latest state from the final well-formed line. A missing or
// empty log is not an error; it yields the "no fix yet" state.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open location log: %w", err)
	}

	s := &Store{
		path:   path,
		file:   file,
		logger: logging.WithComponent("store"),
	}

	latest, err := recoverLatest(path)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	s.latest = latest

	if latest.HasFix {
		s.logger.Info().Str("path", path).Time("received_at", *latest.ReceivedAt).Msg("recovered latest reading from log")
	} else {
		s.logger.Info().Str("path", path).Msg("location log empty, starting without a fix")
	}

	return s, nil
}

// Append serializes the reading and appends it as one line, then replaces
// the latest-state cache. On a failed write the cache is left unchanged so
// it keeps reflecting only durably appended data.
func (s *Store) Append(ctx context.Context, r models.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize reading: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, err = s.file.Write(line)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}

	s.latestMu.Lock()
	s.latest = models.StateFromReading(r)
	s.latestMu.Unlock()

	s.totalAppends.Add(1)
	s.lastAppendMu.Lock()
	s.lastAppendAt = time.Now()
	s.lastAppendMu.Unlock()

	return nil
}

// Latest returns the current latest state. O(1), never touches the log.
func (s *Store) Latest() models.LatestState {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// History returns up to limit most recent readings in chronological order.
// The caller is responsible for clamping limit to a sane range.
func (s *Store) History(limit int) ([]models.Reading, error) {
	if limit <= 0 {
		return []models.Reading{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	readings, err := readAll(s.path)
	if err != nil {
		return nil, err
	}

	if len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}
	return readings, nil
}

// Stats returns append counters for health reporting.
func (s *Store) Stats() Stats {
	s.lastAppendMu.Lock()
	last := s.lastAppendAt
	s.lastAppendMu.Unlock()

	return Stats{
		TotalAppends: s.totalAppends.Load(),
		LastAppendAt: last,
	}
}

// Close closes the underlying log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
