// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

/*
records.go - YClients Records API Models

This file provides the wire types for the YClients records endpoint with
validation using go-playground/validator.

Features:
  - Record envelope with success flag and page payload
  - Payment and points derivation helpers
  - Structural validation of decoded records before processing
*/

package yclients

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// pointsRate converts paid currency units to loyalty points.
const pointsRate = 0.01

// changeDateLayout is the timestamp format YClients emits for
// last_change_date, e.g. "2023-04-01T15:04:05+0400".
const changeDateLayout = "2006-01-02T15:04:05-0700"

var validate = validator.New(validator.WithRequiredStructEnabled())

// RecordsResponse is the envelope of GET /records/{company_id}/.
type RecordsResponse struct {
	Success bool     `json:"success"`
	Data    []Record `json:"data"`
}

// Record is one visit record from the booking system.
type Record struct {
	ID             int64           `json:"id" validate:"required,gt=0"`
	PaidFull       int             `json:"paid_full"`
	LastChangeDate string          `json:"last_change_date"`
	Client         *RecordClient   `json:"client"`
	Services       []RecordService `json:"services" validate:"dive"`
}

// RecordClient is the client block nested inside a record. It may be
// absent for walk-in visits.
type RecordClient struct {
	ID    int64  `json:"id" validate:"required,gt=0"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// RecordService is one service line of a visit.
type RecordService struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Cost  float64 `json:"cost" validate:"gte=0"`
}

// Validate checks the structural invariants of a decoded record.
func (r *Record) Validate() error {
	return validate.Struct(r)
}

// FullyPaid reports whether the visit has been paid in full.
func (r *Record) FullyPaid() bool {
	return r.PaidFull == 1
}

// TotalCost returns the sum of all service costs.
func (r *Record) TotalCost() float64 {
	var total float64
	for _, s := range r.Services {
		total += s.Cost
	}
	return total
}

// AwardablePoints returns the loyalty points this record earns,
// rounded down. A zero result is still a valid award.
func (r *Record) AwardablePoints() int64 {
	return int64(math.Floor(r.TotalCost() * pointsRate))
}

// ChangedAt parses the record's last change timestamp. Used for
// diagnostics only; watermark advancement is driven by pass time.
func (r *Record) ChangedAt() (time.Time, error) {
	return time.Parse(changeDateLayout, r.LastChangeDate)
}
