// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Command server runs the Fixpoint ingestion and fan-out service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/fixpoint/internal/api"
	"github.com/tomtom215/fixpoint/internal/config"
	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/pipeline"
	"github.com/tomtom215/fixpoint/internal/store"
	"github.com/tomtom215/fixpoint/internal/supervisor"
	"github.com/tomtom215/fixpoint/internal/supervisor/services"
	"github.com/tomtom215/fixpoint/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Addr()).
		Str("log_file", cfg.Tracker.LogFile).
		Bool("auth_enabled", cfg.Tracker.Token != "").
		Msg("Starting Fixpoint")

	// The store recovers the latest state from the log before anything is
	// allowed to ingest or subscribe.
	st, err := store.Open(cfg.Tracker.LogFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open location log")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing location log")
		}
	}()

	h := hub.New(cfg.Stream.SessionBuffer, func() (hub.Event, bool) {
		latest := st.Latest()
		if !latest.HasFix {
			return hub.Event{}, false
		}
		return hub.Event{Name: hub.EventLocation, Payload: latest}, true
	})

	p := pipeline.New(
		throttle.New(cfg.Throttle.Window, cfg.Throttle.MaxRequests),
		cfg.Tracker.Token,
		st,
		h,
	)

	handler := api.NewHandler(p, st, h, cfg.Tracker.BodyLimitBytes)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(services.NewBroadcastHubService(h))
	tree.AddMessagingService(services.NewHeartbeatService(h, hub.EventHeartbeat, cfg.Stream.HeartbeatInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		if err := <-errCh; err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor stopped with error")
		}
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logging.Fatal().Err(err).Msg("Supervisor terminated unexpectedly")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop in time")
		}
	}

	logging.Info().Msg("Fixpoint stopped")
}
