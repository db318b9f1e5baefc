// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fixpoint/internal/config"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/middleware"
)

// Router assembles the HTTP surface from the endpoint handlers and the
// security configuration.
type Router struct {
	handler *Handler
	cfg     *config.Config
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, cfg *config.Config) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup wires all routes and the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(recoverPanics)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PrometheusMetrics)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.Security.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Tracker-Token", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Ingestion is throttled inside the pipeline so denials carry the
	// retry hint; no httprate here.
	r.Post("/update-location", router.handler.UpdateLocation)

	// Read endpoints get a permissive per-IP limit to allow dashboard
	// polling while preventing abuse.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(
			router.cfg.Security.ReadRateLimitReqs,
			router.cfg.Security.ReadRateLimitWindow,
		))
		r.Get("/api/location", router.handler.Latest)
		r.Get("/api/location/history", router.handler.History)
		r.Get("/health", router.handler.Health)
	})

	// Long-lived subscriptions are bounded by the hub's session handling,
	// not by request rate.
	r.Get("/api/location/stream", router.handler.Stream)
	r.Get("/api/location/ws", router.handler.WebSocketStream)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// recoverPanics converts handler panics into a logged internal_error
// response instead of killing the connection silently.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.Ctx(r.Context()).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panic recovered")
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "Unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-DNS-Prefetch-Control", "off")
		next.ServeHTTP(w, r)
	})
}
