// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loyaltyops/bonussync/internal/sync"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeStatusProvider struct {
	status sync.PassStatus
}

func (f *fakeStatusProvider) Status() sync.PassStatus { return f.status }

type fakeBacklog struct {
	count int64
	err   error
}

func (f *fakeBacklog) CountUnnotified(context.Context) (int64, error) { return f.count, f.err }

func newTestRouter(db Pinger, status sync.PassStatus, backlog *fakeBacklog) http.Handler {
	return NewRouter(db, &fakeStatusProvider{status: status}, backlog).Setup()
}

func TestHealthLive(t *testing.T) {
	handler := newTestRouter(&fakePinger{}, sync.PassStatus{}, &fakeBacklog{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantCode int
	}{
		{"database up", nil, http.StatusOK},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestRouter(&fakePinger{err: tt.pingErr}, sync.PassStatus{}, &fakeBacklog{})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	passStatus := sync.PassStatus{
		LastPassID:  "abc-123",
		LastStarted: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		LastFetched: 42,
		LastAwarded: 7,
		TotalPasses: 9,
	}
	handler := newTestRouter(&fakePinger{}, passStatus, &fakeBacklog{count: 3})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding status response: %v", err)
	}
	if resp.Pass.LastPassID != "abc-123" || resp.Pass.LastAwarded != 7 {
		t.Errorf("unexpected pass status: %+v", resp.Pass)
	}
	if resp.NotificationBacklog != 3 {
		t.Errorf("backlog = %d, want 3", resp.NotificationBacklog)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestRouter(&fakePinger{}, sync.PassStatus{}, &fakeBacklog{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected metrics exposition body")
	}
}
