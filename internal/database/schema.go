// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package database

import (
	"context"
	"fmt"
	"time"
)

const schemaTimeout = 60 * time.Second

// schemaContext returns a context with the standard schema operation timeout
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), schemaTimeout)
}

// createTables creates the ledger tables if they do not exist.
//
// Note: surrogate ids come from sequences since DuckDB doesn't support
// IDENTITY with PRIMARY KEY. The UNIQUE constraint on bonus_log.record_id
// is the idempotency guarantee: a source record can be awarded at most once
// no matter how many passes observe it.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_clients START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_bonus_log START 1`,
		`CREATE TABLE IF NOT EXISTS clients (
			id BIGINT PRIMARY KEY,
			external_id BIGINT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			points BIGINT NOT NULL DEFAULT 0,
			is_in_loyalty BOOLEAN NOT NULL DEFAULT FALSE,
			telegram_user_id BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			company_id BIGINT PRIMARY KEY,
			last_checked TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bonus_log (
			id BIGINT PRIMARY KEY,
			record_id BIGINT NOT NULL UNIQUE,
			client_id BIGINT NOT NULL,
			points BIGINT NOT NULL,
			awarded_at TIMESTAMP NOT NULL,
			notified BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bonus_log_notified ON bonus_log(notified)`,
		`CREATE INDEX IF NOT EXISTS idx_clients_phone ON clients(phone)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
