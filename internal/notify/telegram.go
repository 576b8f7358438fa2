// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

// Package notify delivers award notifications to clients. The outbound
// transport is behind the Messenger interface so the sweep logic can be
// tested without a live bot.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/logging"
)

// maxErrorBodySize bounds error response reads.
const maxErrorBodySize = 64 * 1024

// Messenger sends one text message to one recipient.
type Messenger interface {
	Send(ctx context.Context, recipientID int64, text string) error
}

// Telegram is a Messenger backed by the Telegram Bot API sendMessage
// method. Sends are rate limited client-side; the Bot API caps bots at
// roughly 30 messages per second and bans chronic offenders.
type Telegram struct {
	apiURL     string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram creates a Telegram messenger.
func NewTelegram(cfg *config.TelegramConfig) *Telegram {
	return &Telegram{
		apiURL:     cfg.APIURL,
		token:      cfg.BotToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// Send delivers a text message to a Telegram chat. Blocks on the rate
// limiter; the context bounds both the wait and the request.
func (t *Telegram) Send(ctx context.Context, recipientID int64, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logging.Debug().Err(closeErr).Msg("Error closing response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendMessage returned status %d: %s", resp.StatusCode, body)
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("sendMessage rejected: %s", parsed.Description)
	}

	return nil
}
