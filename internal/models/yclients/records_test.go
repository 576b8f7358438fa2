// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package yclients

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestAwardablePoints(t *testing.T) {
	tests := []struct {
		name  string
		costs []float64
		want  int64
	}{
		{"single service", []float64{15000}, 150},
		{"rounds down", []float64{149}, 1},
		{"below one point", []float64{99}, 0},
		{"multiple services", []float64{5000, 2550.50}, 75},
		{"no services", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{}
			for _, c := range tt.costs {
				rec.Services = append(rec.Services, RecordService{Cost: c})
			}
			if got := rec.AwardablePoints(); got != tt.want {
				t.Errorf("AwardablePoints() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFullyPaid(t *testing.T) {
	if (&Record{PaidFull: 1}).FullyPaid() != true {
		t.Error("paid_full=1 should report fully paid")
	}
	if (&Record{PaidFull: 0}).FullyPaid() != false {
		t.Error("paid_full=0 should not report fully paid")
	}
}

func TestRecordDecodeAndValidate(t *testing.T) {
	raw := `{
		"success": true,
		"data": [{
			"id": 501,
			"paid_full": 1,
			"last_change_date": "2026-03-10T14:30:00+0300",
			"client": {"id": 9001, "phone": "+79001234567", "name": "Anna"},
			"services": [{"id": 1, "title": "Haircut", "cost": 2500}]
		}]
	}`

	var resp RecordsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success envelope")
	}
	if len(resp.Data) != 1 {
		t.Fatalf("expected 1 record, got %d", len(resp.Data))
	}

	rec := resp.Data[0]
	if err := rec.Validate(); err != nil {
		t.Errorf("valid record failed validation: %v", err)
	}
	if rec.Client == nil || rec.Client.ID != 9001 {
		t.Error("client block not decoded")
	}

	ts, err := rec.ChangedAt()
	if err != nil {
		t.Fatalf("ChangedAt: %v", err)
	}
	if ts.Hour() != 14 {
		t.Errorf("ChangedAt hour = %d, want 14", ts.Hour())
	}
}

func TestRecordValidateRejectsMissingID(t *testing.T) {
	rec := Record{PaidFull: 1}
	if err := rec.Validate(); err == nil {
		t.Error("expected validation error for missing record id")
	}
}

func TestRecordValidateRejectsNegativeCost(t *testing.T) {
	rec := Record{
		ID:       7,
		Services: []RecordService{{Cost: -50}},
	}
	if err := rec.Validate(); err == nil {
		t.Error("expected validation error for negative cost")
	}
}
