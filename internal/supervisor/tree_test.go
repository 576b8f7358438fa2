// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingService struct {
	started atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	s.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRunsServicesUntilCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tree := NewTree(logger, DefaultTreeConfig())

	syncSvc := &countingService{}
	apiSvc := &countingService{}
	tree.AddSyncService(syncSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tree.Serve(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for syncSvc.started.Load() == 0 || apiSvc.started.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("services did not start within 5s")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled or nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop within 5s of cancel")
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.FailureBackoff != 15*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
