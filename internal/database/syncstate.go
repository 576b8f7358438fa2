// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loyaltyops/bonussync/internal/logging"
	"github.com/loyaltyops/bonussync/internal/metrics"
	"github.com/loyaltyops/bonussync/internal/models"
)

// GetOrCreateSyncState returns the watermark for a synchronization
// scope. When the scope has never been synced, a new state is created
// with the watermark set to now minus the lookback window, so the first
// pass picks up recent history instead of the full archive.
func (db *DB) GetOrCreateSyncState(ctx context.Context, companyID int64, lookback time.Duration) (*models.SyncState, error) {
	var state models.SyncState
	row := db.conn.QueryRowContext(ctx,
		"SELECT company_id, last_checked FROM sync_state WHERE company_id = ?", companyID)
	err := row.Scan(&state.CompanyID, &state.LastChecked)
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		metrics.DBQueryErrors.WithLabelValues("get_sync_state").Inc()
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	state = models.SyncState{
		CompanyID:   companyID,
		LastChecked: time.Now().UTC().Add(-lookback),
	}

	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO sync_state (company_id, last_checked) VALUES (?, ?)",
		state.CompanyID, state.LastChecked)
	if err != nil {
		// A concurrent creator may have won the insert race.
		if isUniqueViolation(err) {
			row := db.conn.QueryRowContext(ctx,
				"SELECT company_id, last_checked FROM sync_state WHERE company_id = ?", companyID)
			if scanErr := row.Scan(&state.CompanyID, &state.LastChecked); scanErr == nil {
				return &state, nil
			}
		}
		metrics.DBQueryErrors.WithLabelValues("create_sync_state").Inc()
		return nil, fmt.Errorf("failed to create sync state: %w", err)
	}

	logging.Info().
		Int64("company_id", companyID).
		Time("last_checked", state.LastChecked).
		Msg("Initialized sync state with lookback window")

	return &state, nil
}

// AdvanceSyncState moves the watermark forward. Moves backward are
// rejected so a slow overlapping pass can never rewind the scope.
func (db *DB) AdvanceSyncState(ctx context.Context, companyID int64, to time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE sync_state SET last_checked = ? WHERE company_id = ? AND last_checked < ?",
		to, companyID, to)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("advance_sync_state").Inc()
		return fmt.Errorf("failed to advance sync state: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		logging.Debug().
			Int64("company_id", companyID).
			Time("to", to).
			Msg("Watermark not advanced, already at or past target")
	}

	return nil
}
