// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/models"
)

// maxLineBytes bounds a single log line during scans. Readings serialize to
// well under 1 KiB; anything larger is corruption.
const maxLineBytes = 64 * 1024

// recoverLatest rebuilds the latest state from the final non-blank line of
// the log. A missing file, an empty file, or an unparsable final line all
// yield the "no fix yet" state rather than an error; only genuine I/O
// failures propagate.
//
// Recovery deliberately inspects just the final line: a line torn by a crash
// mid-write loses only that reading, and earlier corruption stays invisible
// here. Tail-scan-backwards recovery was considered and rejected, see
// DESIGN.md.
func recoverLatest(path string) (models.LatestState, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NoFix(), nil
		}
		return models.LatestState{}, fmt.Errorf("failed to read location log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var lastLine []byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if line := scanner.Bytes(); len(line) > 0 {
			lastLine = append(lastLine[:0], line...)
		}
	}
	if err := scanner.Err(); err != nil {
		return models.LatestState{}, fmt.Errorf("failed to scan location log: %w", err)
	}

	if len(lastLine) == 0 {
		return models.NoFix(), nil
	}

	var r models.Reading
	if err := json.Unmarshal(lastLine, &r); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("final log line unparsable, starting without a fix")
		return models.NoFix(), nil
	}

	return models.StateFromReading(r), nil
}

// readAll parses every well-formed line of the log in order. Blank and
// malformed lines are skipped; a torn final line from a crash therefore
// drops out of history instead of failing the read.
func readAll(path string) ([]models.Reading, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.Reading{}, nil
		}
		return nil, fmt.Errorf("failed to read location log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var readings []models.Reading
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r models.Reading
		if err := json.Unmarshal(line, &r); err != nil {
			logging.Debug().Err(err).Str("path", path).Msg("skipping malformed log line")
			continue
		}
		readings = append(readings, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan location log: %w", err)
	}

	if readings == nil {
		readings = []models.Reading{}
	}
	return readings, nil
}
