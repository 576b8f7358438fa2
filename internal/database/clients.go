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

	"github.com/loyaltyops/bonussync/internal/metrics"
	"github.com/loyaltyops/bonussync/internal/models"
)

const clientColumns = "id, external_id, phone, name, points, is_in_loyalty, telegram_user_id"

func scanClient(row *sql.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.ExternalID, &c.Phone, &c.Name, &c.Points, &c.IsInLoyalty, &c.TelegramUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}
	return &c, nil
}

// ClientByExternalID looks up a client by their id in the remote booking
// system. Returns ErrNotFound when no such client is registered.
func (db *DB) ClientByExternalID(ctx context.Context, externalID int64) (*models.Client, error) {
	query := fmt.Sprintf("SELECT %s FROM clients WHERE external_id = ?", clientColumns)
	c, err := scanClient(db.conn.QueryRowContext(ctx, query, externalID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.DBQueryErrors.WithLabelValues("client_by_external_id").Inc()
	}
	return c, err
}

// ClientByPhone looks up a client by phone number. Returns ErrNotFound
// when no client has that number.
func (db *DB) ClientByPhone(ctx context.Context, phone string) (*models.Client, error) {
	query := fmt.Sprintf("SELECT %s FROM clients WHERE phone = ?", clientColumns)
	c, err := scanClient(db.conn.QueryRowContext(ctx, query, phone))
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.DBQueryErrors.WithLabelValues("client_by_phone").Inc()
	}
	return c, err
}

// InsertClient registers a new client and returns it with its assigned id.
func (db *DB) InsertClient(ctx context.Context, client *models.Client) (*models.Client, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	// Sequence-backed id; DuckDB doesn't support auto-increment with PRIMARY KEY
	var nextID int64
	row := tx.QueryRowContext(ctx, "SELECT nextval('seq_clients')")
	if err := row.Scan(&nextID); err != nil {
		return nil, fmt.Errorf("failed to get next client ID: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clients (id, external_id, phone, name, points, is_in_loyalty, telegram_user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nextID, client.ExternalID, client.Phone, client.Name,
		client.Points, client.IsInLoyalty, client.TelegramUserID,
	)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("insert_client").Inc()
		return nil, fmt.Errorf("failed to insert client: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit client insert: %w", err)
	}

	inserted := *client
	inserted.ID = nextID
	return &inserted, nil
}

// AdjustBalance applies a signed delta to a client's point balance.
// The balance never drops below zero: a deduction larger than the
// current balance clamps to zero instead of failing.
func (db *DB) AdjustBalance(ctx context.Context, clientID, delta int64) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var current int64
	row := tx.QueryRowContext(ctx, "SELECT points FROM clients WHERE id = ?", clientID)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		metrics.DBQueryErrors.WithLabelValues("adjust_balance").Inc()
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	next := current + delta
	if next < 0 {
		next = 0
	}

	if _, err := tx.ExecContext(ctx, "UPDATE clients SET points = ? WHERE id = ?", next, clientID); err != nil {
		metrics.DBQueryErrors.WithLabelValues("adjust_balance").Inc()
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit balance update: %w", err)
	}

	return next, nil
}
