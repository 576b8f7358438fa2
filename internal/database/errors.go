// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package database

import (
	"database/sql"
	"errors"
	"io"
	"strings"

	"github.com/loyaltyops/bonussync/internal/logging"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAward is returned when an award for the same source
	// record already exists in the ledger.
	ErrDuplicateAward = errors.New("record already awarded")
)

// isUniqueViolation checks if an error is a DuckDB unique constraint
// violation. The driver does not expose typed errors, so this matches
// the message text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "Constraint Error")
}

// closeQuietly closes an io.Closer, logging any error at debug level
func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing resource")
	}
}

// rollbackQuietly rolls back a transaction, ignoring the error when the
// transaction was already committed.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Debug().Err(err).Msg("Error rolling back transaction")
	}
}
