// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

// Package api provides the operational HTTP surface: health probes,
// Prometheus metrics, and a status endpoint for the reconciliation loop.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loyaltyops/bonussync/internal/sync"
)

// Router wires handlers to routes.
type Router struct {
	handler *Handler
}

// NewRouter creates the ops router.
func NewRouter(db Pinger, manager StatusProvider, backlog BacklogCounter) *Router {
	return &Router{
		handler: &Handler{db: db, manager: manager, backlog: backlog},
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Health probes get a permissive limit; monitoring agents poll often.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/healthz", router.handler.HealthLive)
		r.Get("/readyz", router.handler.HealthReady)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/api/v1/status", router.handler.Status)
	})

	return r
}

// StatusProvider exposes the reconciliation loop's pass statistics.
type StatusProvider interface {
	Status() sync.PassStatus
}
