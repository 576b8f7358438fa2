// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

/*
manager.go - Reconciliation Pass Orchestration

This file contains the sync manager: the periodic pass loop that pulls
changed records from the booking system and feeds them through the
idempotent award pipeline.

Pass Structure:
 1. Take the pass guard; a pass still running means skip, not queue
 2. Load the watermark and fetch all pages changed since it
 3. Run every fetched record through the award pipeline
 4. Advance the watermark to the pass start, only if pagination
    terminated normally

Thread Safety:
  - passMu: serializes pass execution; overlapping triggers are skipped
  - mu: protects last-pass status read by the ops API
*/

package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/database"
	"github.com/loyaltyops/bonussync/internal/logging"
	"github.com/loyaltyops/bonussync/internal/metrics"
	"github.com/loyaltyops/bonussync/internal/models"
	"github.com/loyaltyops/bonussync/internal/models/yclients"
)

// ErrPassInProgress is returned when a pass is requested while another
// one is still running.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// Store is the slice of the ledger the manager needs.
type Store interface {
	GetOrCreateSyncState(ctx context.Context, companyID int64, lookback time.Duration) (*models.SyncState, error)
	AdvanceSyncState(ctx context.Context, companyID int64, to time.Time) error
	ClientByExternalID(ctx context.Context, externalID int64) (*models.Client, error)
	ClientByPhone(ctx context.Context, phone string) (*models.Client, error)
	IsProcessed(ctx context.Context, recordID int64) (bool, error)
	AwardPoints(ctx context.Context, recordID, clientID, points int64) (*models.AwardEntry, error)
}

// PassStatus is a snapshot of the most recent pass, served by the ops API.
type PassStatus struct {
	LastPassID    string    `json:"last_pass_id"`
	LastStarted   time.Time `json:"last_started"`
	LastFinished  time.Time `json:"last_finished"`
	LastError     string    `json:"last_error,omitempty"`
	LastFetched   int       `json:"last_fetched"`
	LastAwarded   int       `json:"last_awarded"`
	TotalPasses   int64     `json:"total_passes"`
	TotalSkipped  int64     `json:"total_skipped_passes"`
	WatermarkSeen time.Time `json:"watermark"`
}

// Manager runs periodic reconciliation passes against one company scope.
type Manager struct {
	store  Store
	client SourceClient
	cfg    *config.Config

	passMu sync.Mutex
	mu     sync.RWMutex
	status PassStatus
}

// NewManager creates a reconciliation manager.
func NewManager(store Store, client SourceClient, cfg *config.Config) *Manager {
	logging.Info().
		Int64("company_id", cfg.Source.CompanyID).
		Dur("interval", cfg.Sync.Interval).
		Dur("lookback", cfg.Sync.Lookback).
		Int("page_size", cfg.Source.PageSize).
		Msg("Sync manager config loaded")

	return &Manager{
		store:  store,
		client: client,
		cfg:    cfg,
	}
}

// Serve runs the periodic pass loop until the context is canceled.
// Implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Sync.Interval)
	defer ticker.Stop()

	// First pass immediately; the ticker covers steady state.
	if err := m.RunPass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
		logging.Warn().Err(err).Msg("Initial reconciliation pass failed (will retry)")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.RunPass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
				logging.Warn().Err(err).Msg("Reconciliation pass failed (will retry)")
			}
		}
	}
}

// RunPass executes one reconciliation pass. When a pass is already
// running the call returns ErrPassInProgress immediately; ticks are
// skipped rather than queued so slow passes never pile up.
func (m *Manager) RunPass(ctx context.Context) error {
	if !m.passMu.TryLock() {
		metrics.PassesSkipped.Inc()
		m.mu.Lock()
		m.status.TotalSkipped++
		m.mu.Unlock()
		logging.Warn().Msg("Skipping reconciliation pass, previous pass still running")
		return ErrPassInProgress
	}
	defer m.passMu.Unlock()

	passID := uuid.NewString()
	passStart := time.Now().UTC()
	log := logging.With().Str("pass_id", passID).Logger()

	m.mu.Lock()
	m.status.LastPassID = passID
	m.status.LastStarted = passStart
	m.status.TotalPasses++
	m.mu.Unlock()

	err := m.runPass(ctx, log, passStart)

	m.mu.Lock()
	m.status.LastFinished = time.Now().UTC()
	if err != nil {
		m.status.LastError = err.Error()
	} else {
		m.status.LastError = ""
	}
	m.mu.Unlock()

	metrics.RecordPass(time.Since(passStart), err == nil)
	return err
}

func (m *Manager) runPass(ctx context.Context, log zerolog.Logger, passStart time.Time) error {
	state, err := m.store.GetOrCreateSyncState(ctx, m.cfg.Source.CompanyID, m.cfg.Sync.Lookback)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.status.WatermarkSeen = state.LastChecked
	m.mu.Unlock()

	// Strictly after the watermark; the boundary instant was covered by
	// the previous pass.
	since := state.LastChecked.Add(time.Millisecond)

	records, complete := m.fetchAllPages(ctx, log, since)
	metrics.RecordsFetched.Add(float64(len(records)))

	var awarded int
	for i := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.processRecord(ctx, log, &records[i]) {
			awarded++
		}
	}

	m.mu.Lock()
	m.status.LastFetched = len(records)
	m.status.LastAwarded = awarded
	m.mu.Unlock()

	if !complete {
		// Processed what we got, but the sweep did not cover the whole
		// window. Keeping the old watermark makes the next pass re-read
		// the gap; dedup makes the replay harmless.
		log.Warn().
			Int("fetched", len(records)).
			Int("awarded", awarded).
			Time("watermark", state.LastChecked).
			Msg("Pass incomplete, watermark not advanced")
		return errors.New("page sweep incomplete")
	}

	if err := m.store.AdvanceSyncState(ctx, m.cfg.Source.CompanyID, passStart); err != nil {
		return err
	}

	log.Info().
		Int("fetched", len(records)).
		Int("awarded", awarded).
		Time("watermark", passStart).
		Msg("Reconciliation pass completed")
	return nil
}

// fetchAllPages walks the paged records endpoint until a short or empty
// page. The complete flag reports whether pagination terminated
// normally; on a fetch error the records collected so far are returned
// with complete=false.
func (m *Manager) fetchAllPages(ctx context.Context, log zerolog.Logger, since time.Time) ([]yclients.Record, bool) {
	var all []yclients.Record

	for page := 1; ; page++ {
		records, err := m.client.FetchRecords(ctx, since, page)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("Page fetch failed, aborting sweep")
			return all, false
		}

		all = append(all, records...)

		if len(records) < m.cfg.Source.PageSize {
			return all, true
		}
	}
}

// processRecord runs one record through the award pipeline. Returns
// true when points were awarded. Every skip is counted under its
// reason; a skipped record is not an error.
func (m *Manager) processRecord(ctx context.Context, log zerolog.Logger, rec *yclients.Record) bool {
	if err := rec.Validate(); err != nil {
		metrics.RecordSkip("malformed")
		log.Debug().Err(err).Int64("record_id", rec.ID).Msg("Skipping malformed record")
		return false
	}

	processed, err := m.store.IsProcessed(ctx, rec.ID)
	if err != nil {
		log.Warn().Err(err).Int64("record_id", rec.ID).Msg("Processed check failed, skipping record")
		return false
	}
	if processed {
		metrics.RecordSkip("already_processed")
		return false
	}

	// A record qualifies only when fully paid and carrying at least one
	// line item; a paid record with no services earns nothing and must
	// not leave an award entry behind.
	if !rec.FullyPaid() || len(rec.Services) == 0 {
		metrics.RecordSkip("not_qualifying")
		return false
	}

	if rec.Client == nil {
		metrics.RecordSkip("no_client")
		return false
	}

	client, err := m.resolveClient(ctx, rec.Client)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.RecordSkip("unknown_client")
			log.Debug().
				Int64("record_id", rec.ID).
				Int64("external_client_id", rec.Client.ID).
				Msg("Record client not registered, skipping")
		} else {
			log.Warn().Err(err).Int64("record_id", rec.ID).Msg("Client lookup failed, skipping record")
		}
		return false
	}

	if !client.IsInLoyalty {
		metrics.RecordSkip("not_member")
		return false
	}

	points := rec.AwardablePoints()
	entry, err := m.store.AwardPoints(ctx, rec.ID, client.ID, points)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateAward) {
			// A concurrent pass won the insert race. Correct outcome,
			// just not ours to report.
			metrics.RecordSkip("raced")
			return false
		}
		log.Warn().Err(err).Int64("record_id", rec.ID).Msg("Award failed, record stays unprocessed")
		return false
	}

	metrics.RecordAward(points)
	log.Info().
		Int64("record_id", rec.ID).
		Int64("client_id", client.ID).
		Int64("points", entry.Points).
		Msg("Points awarded")
	return true
}

// resolveClient finds the loyalty member for a record's client block,
// first by external id, then by phone for clients registered before
// the external id backfill.
func (m *Manager) resolveClient(ctx context.Context, rc *yclients.RecordClient) (*models.Client, error) {
	client, err := m.store.ClientByExternalID(ctx, rc.ID)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if rc.Phone == "" {
		return nil, database.ErrNotFound
	}
	return m.store.ClientByPhone(ctx, rc.Phone)
}

// Status returns a snapshot of pass statistics.
func (m *Manager) Status() PassStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) String() string { return "sync-manager" }
