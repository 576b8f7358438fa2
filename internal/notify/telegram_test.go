// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loyaltyops/bonussync/internal/config"
)

func newTestTelegram(serverURL string) *Telegram {
	return NewTelegram(&config.TelegramConfig{
		APIURL:    serverURL,
		BotToken:  "test-token",
		RateLimit: 1000, // effectively unlimited in tests
		Timeout:   5 * time.Second,
	})
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"ok": true}`)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	tg := newTestTelegram(server.URL)
	if err := tg.Send(context.Background(), 777, "Вам начислено 150 баллов"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %q, want /bottest-token/sendMessage", gotPath)
	}
	if gotBody.ChatID != 777 {
		t.Errorf("chat_id = %d, want 777", gotBody.ChatID)
	}
	if !strings.Contains(gotBody.Text, "150") {
		t.Errorf("text %q missing points amount", gotBody.Text)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		if _, err := w.Write([]byte(`{"ok": false, "description": "bot was blocked by the user"}`)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	tg := newTestTelegram(server.URL)
	err := tg.Send(context.Background(), 1, "hello")
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error %q does not mention status code", err)
	}
}

func TestSendMessageRejectedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(`{"ok": false, "description": "chat not found"}`)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	tg := newTestTelegram(server.URL)
	err := tg.Send(context.Background(), 1, "hello")
	if err == nil {
		t.Fatal("expected error for ok=false envelope")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error %q does not carry API description", err)
	}
}

func TestSendRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(`{"ok": true}`)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	tg := NewTelegram(&config.TelegramConfig{
		APIURL:    server.URL,
		BotToken:  "test-token",
		RateLimit: 0.0001, // the second token takes hours
		Timeout:   5 * time.Second,
	})

	// The bucket starts with one token, so the first send goes through.
	if err := tg.Send(context.Background(), 1, "first"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tg.Send(ctx, 1, "second")
	if err == nil {
		t.Fatal("expected error when context expires during rate wait")
	}
	if !strings.Contains(err.Error(), "rate limiter") {
		t.Errorf("error %q should come from the rate limiter wait", err)
	}
}
