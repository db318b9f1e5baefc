// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package services wraps Fixpoint's long-running components as suture
// services.
package services

import (
	"context"
)

// ContextRunner matches the hub's RunWithContext method, keeping this
// package free of a direct hub dependency.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// BroadcastHubService wraps the broadcast hub as a supervised service. The
// hub's RunWithContext already follows the suture.Service pattern, so the
// wrapper only contributes a name for logging.
type BroadcastHubService struct {
	hub  ContextRunner
	name string
}

// NewBroadcastHubService creates the hub service wrapper.
func NewBroadcastHubService(hub ContextRunner) *BroadcastHubService {
	return &BroadcastHubService{
		hub:  hub,
		name: "broadcast-hub",
	}
}

// Serve implements suture.Service.
func (s *BroadcastHubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *BroadcastHubService) String() string {
	return s.name
}
