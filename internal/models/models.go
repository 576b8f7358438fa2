// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

// Package models defines the persistent domain types of the loyalty
// ledger: clients, the per-scope sync watermark, and award entries.
package models

import "time"

// Client is a loyalty program member.
type Client struct {
	ID             int64  `json:"id"`
	ExternalID     int64  `json:"external_id"` // id in the remote booking system
	Phone          string `json:"phone"`
	Name           string `json:"name"`
	Points         int64  `json:"points"`
	IsInLoyalty    bool   `json:"is_in_loyalty"`
	TelegramUserID int64  `json:"telegram_user_id"`
}

// SyncState is the persisted watermark for one synchronization scope.
// LastChecked is the upper bound of the last completed sweep.
type SyncState struct {
	CompanyID   int64     `json:"company_id"`
	LastChecked time.Time `json:"last_checked"`
}

// AwardEntry is one row of the append-only bonus ledger. RecordID is
// unique: it is the idempotency key tying an award to the source record
// that caused it.
type AwardEntry struct {
	ID        int64     `json:"id"`
	RecordID  int64     `json:"record_id"`
	ClientID  int64     `json:"client_id"`
	Points    int64     `json:"points"`
	AwardedAt time.Time `json:"awarded_at"`
	Notified  bool      `json:"notified"`
}

// PendingNotification pairs an unnotified award with its recipient.
type PendingNotification struct {
	Entry  AwardEntry `json:"entry"`
	Client Client     `json:"client"`
}
