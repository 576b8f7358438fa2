// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

/*
awards.go - Bonus Ledger Operations

This file provides the award pipeline's persistence: the idempotent
point award transaction, the processed-record check, and the unnotified
award outbox drained by the notification sweep.

Idempotency:
The UNIQUE constraint on bonus_log.record_id is the single linearization
point. AwardPoints re-checks for an existing entry inside its own
transaction and treats a constraint violation on insert as a concurrent
award, so a record is awarded exactly once even when passes overlap.
*/

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/loyaltyops/bonussync/internal/metrics"
	"github.com/loyaltyops/bonussync/internal/models"
)

// IsProcessed reports whether a source record already has a ledger entry.
func (db *DB) IsProcessed(ctx context.Context, recordID int64) (bool, error) {
	var n int
	row := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bonus_log WHERE record_id = ?", recordID)
	if err := row.Scan(&n); err != nil {
		metrics.DBQueryErrors.WithLabelValues("is_processed").Inc()
		return false, fmt.Errorf("failed to check record %d: %w", recordID, err)
	}
	return n > 0, nil
}

// AwardPoints atomically appends a ledger entry for a source record and
// credits the client's balance. Each call is its own transaction so one
// failing record never rolls back its neighbours.
//
// Returns ErrDuplicateAward when the record already has an entry; the
// balance is untouched in that case. Zero-point awards are recorded
// like any other, the entry doubles as the processed marker.
func (db *DB) AwardPoints(ctx context.Context, recordID, clientID, points int64) (*models.AwardEntry, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	// Re-check inside the transaction. The caller's pre-check races with
	// concurrent passes; this one does not.
	var n int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bonus_log WHERE record_id = ?", recordID)
	if err := row.Scan(&n); err != nil {
		metrics.DBQueryErrors.WithLabelValues("award_points").Inc()
		return nil, fmt.Errorf("failed to re-check record %d: %w", recordID, err)
	}
	if n > 0 {
		return nil, ErrDuplicateAward
	}

	var nextID int64
	row = tx.QueryRowContext(ctx, "SELECT nextval('seq_bonus_log')")
	if err := row.Scan(&nextID); err != nil {
		return nil, fmt.Errorf("failed to get next ledger ID: %w", err)
	}

	entry := &models.AwardEntry{
		ID:        nextID,
		RecordID:  recordID,
		ClientID:  clientID,
		Points:    points,
		AwardedAt: time.Now().UTC(),
		Notified:  false,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bonus_log (id, record_id, client_id, points, awarded_at, notified)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecordID, entry.ClientID, entry.Points, entry.AwardedAt, entry.Notified,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAward
		}
		metrics.DBQueryErrors.WithLabelValues("award_points").Inc()
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE clients SET points = points + ? WHERE id = ?", points, clientID)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("award_points").Inc()
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit award: %w", err)
	}

	return entry, nil
}

// ListUnnotified returns deliverable pending notifications oldest-first,
// joined with their recipients. Clients without a messaging identity are
// excluded here, not just skipped by the sweep: oldest-first batching
// would otherwise fill every batch with undeliverable entries once
// enough of them accumulate. CountUnnotified still counts them, the
// backlog gauge reports the full outstanding set. Entries whose client
// row has vanished are excluded rather than failing the sweep.
func (db *DB) ListUnnotified(ctx context.Context, limit int) ([]models.PendingNotification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT b.id, b.record_id, b.client_id, b.points, b.awarded_at, b.notified,
		        c.id, c.external_id, c.phone, c.name, c.points, c.is_in_loyalty, c.telegram_user_id
		 FROM bonus_log b
		 JOIN clients c ON c.id = b.client_id
		 WHERE b.notified = FALSE AND c.telegram_user_id != 0
		 ORDER BY b.id
		 LIMIT ?`, limit)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("list_unnotified").Inc()
		return nil, fmt.Errorf("failed to list unnotified awards: %w", err)
	}
	defer closeQuietly(rows)

	var pending []models.PendingNotification
	for rows.Next() {
		var p models.PendingNotification
		err := rows.Scan(
			&p.Entry.ID, &p.Entry.RecordID, &p.Entry.ClientID, &p.Entry.Points,
			&p.Entry.AwardedAt, &p.Entry.Notified,
			&p.Client.ID, &p.Client.ExternalID, &p.Client.Phone, &p.Client.Name,
			&p.Client.Points, &p.Client.IsInLoyalty, &p.Client.TelegramUserID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending notification: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending notifications: %w", err)
	}

	return pending, nil
}

// MarkNotified flags a ledger entry as delivered. Marking only after a
// successful send keeps delivery at-least-once.
func (db *DB) MarkNotified(ctx context.Context, entryID int64) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE bonus_log SET notified = TRUE WHERE id = ?", entryID)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("mark_notified").Inc()
		return fmt.Errorf("failed to mark entry %d notified: %w", entryID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnnotified returns the size of the notification backlog.
func (db *DB) CountUnnotified(ctx context.Context) (int64, error) {
	var n int64
	row := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bonus_log WHERE notified = FALSE")
	if err := row.Scan(&n); err != nil {
		metrics.DBQueryErrors.WithLabelValues("count_unnotified").Inc()
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return n, nil
}
