// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package services

import (
	"context"
	"time"
)

// Publisher matches the hub's Publish method.
type Publisher interface {
	Publish(name string, payload interface{})
}

// HeartbeatService publishes a periodic heartbeat event through the hub so
// push subscribers and the intermediaries between them see regular traffic
// on otherwise idle channels.
type HeartbeatService struct {
	publisher Publisher
	event     string
	interval  time.Duration
	name      string
}

// NewHeartbeatService creates the heartbeat ticker. interval must be
// positive; event is the event name published on each tick.
func NewHeartbeatService(publisher Publisher, event string, interval time.Duration) *HeartbeatService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HeartbeatService{
		publisher: publisher,
		event:     event,
		interval:  interval,
		name:      "heartbeat",
	}
}

// Serve implements suture.Service. Publishes one heartbeat per interval
// until the context is canceled.
func (s *HeartbeatService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.publisher.Publish(s.event, nil)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *HeartbeatService) String() string {
	return s.name
}
