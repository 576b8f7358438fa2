// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package api

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loyaltyops/bonussync/internal/logging"
	"github.com/loyaltyops/bonussync/internal/sync"
)

// Pinger checks storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BacklogCounter reports the pending notification count.
type BacklogCounter interface {
	CountUnnotified(ctx context.Context) (int64, error)
}

// Handler implements the ops endpoints.
type Handler struct {
	db      Pinger
	manager StatusProvider
	backlog BacklogCounter
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	Pass                sync.PassStatus `json:"pass"`
	NotificationBacklog int64           `json:"notification_backlog"`
}

// HealthLive is the liveness probe. Process up means alive; no
// dependencies are checked here.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// HealthReady is the readiness probe: the service is ready when the
// ledger answers a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Status reports the last reconciliation pass and the notification
// backlog.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Pass: h.manager.Status()}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if backlog, err := h.backlog.CountUnnotified(ctx); err == nil {
		resp.NotificationBacklog = backlog
	} else {
		logging.Warn().Err(err).Msg("Failed to count notification backlog for status")
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("Failed to encode response")
	}
}
