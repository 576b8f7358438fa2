// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

/*
yclients_client.go - YClients Records API Client

This file provides the HTTP client for the YClients records endpoint
with retry classification and exponential backoff.

Error Classification:
Transient failures (network errors, HTTP 5xx, HTTP 429) are retried up
to the configured attempt count with a doubling delay. Definitive
failures (other 4xx, malformed payloads) fail fast: retrying a request
the API has already rejected only burns the rate budget.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/logging"
	"github.com/loyaltyops/bonussync/internal/metrics"
	"github.com/loyaltyops/bonussync/internal/models/yclients"
)

// changedAfterLayout is the local-time format the records endpoint
// expects for the changed_after filter. The API interprets it in the
// company's timezone, so the value is rendered in the configured
// location rather than UTC.
const changedAfterLayout = "2006-01-02T15:04:05"

// maxErrorBodySize limits error response body reads to prevent memory
// exhaustion from malicious or misconfigured endpoints.
const maxErrorBodySize = 64 * 1024

// SourceClient fetches visit records from the remote booking system.
type SourceClient interface {
	// FetchRecords returns one page of records changed after the given
	// instant. Pages are 1-based.
	FetchRecords(ctx context.Context, since time.Time, page int) ([]yclients.Record, error)
}

// YClientsClient implements SourceClient against the YClients API.
type YClientsClient struct {
	baseURL      string
	partnerToken string
	userToken    string
	companyID    int64
	pageSize     int
	location     *time.Location
	httpClient   *http.Client

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// statusError is an HTTP-level failure carrying the response code for
// retry classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// NewYClientsClient creates a records API client. The configured
// timezone must be a valid IANA name.
func NewYClientsClient(src *config.SourceConfig, syncCfg *config.SyncConfig) (*YClientsClient, error) {
	loc, err := time.LoadLocation(src.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid source timezone %q: %w", src.Timezone, err)
	}

	return &YClientsClient{
		baseURL:        src.URL,
		partnerToken:   src.PartnerToken,
		userToken:      src.UserToken,
		companyID:      src.CompanyID,
		pageSize:       src.PageSize,
		location:       loc,
		httpClient:     &http.Client{Timeout: src.Timeout},
		retryAttempts:  syncCfg.RetryAttempts,
		retryBaseDelay: syncCfg.RetryBaseDelay,
		retryMaxDelay:  syncCfg.RetryMaxDelay,
	}, nil
}

// FetchRecords fetches one page, retrying transient failures with
// exponential backoff. The context cancels both requests and waits.
func (c *YClientsClient) FetchRecords(ctx context.Context, since time.Time, page int) ([]yclients.Record, error) {
	var lastErr error
	delay := c.retryBaseDelay

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		records, err := c.fetchPage(ctx, since, page)
		if err == nil {
			metrics.PageFetchSize.Observe(float64(len(records)))
			return records, nil
		}
		lastErr = err

		if !isRetryable(err) {
			metrics.FetchErrors.WithLabelValues(classifyError(err)).Inc()
			return nil, err
		}

		if attempt < c.retryAttempts-1 {
			metrics.FetchRetries.Inc()
			logging.Warn().Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", c.retryAttempts).
				Int("page", page).
				Dur("delay", delay).
				Msg("Retrying page fetch")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			delay *= 2
			if delay > c.retryMaxDelay {
				delay = c.retryMaxDelay
			}
		}
	}

	metrics.FetchErrors.WithLabelValues(classifyError(lastErr)).Inc()
	return nil, fmt.Errorf("max retry attempts reached: %w", lastErr)
}

// fetchPage performs one GET of the records endpoint.
func (c *YClientsClient) fetchPage(ctx context.Context, since time.Time, page int) ([]yclients.Record, error) {
	endpoint := fmt.Sprintf("%s/records/%d/", c.baseURL, c.companyID)

	params := url.Values{}
	params.Set("changed_after", since.In(c.location).Format(changedAfterLayout))
	params.Set("page", strconv.Itoa(page))
	params.Set("count", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.yclients.v2+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s, User %s", c.partnerToken, c.userToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logging.Debug().Err(closeErr).Msg("Error closing response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: readBodyForError(resp.Body)}
	}

	var envelope yclients.RecordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode records response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("records API reported failure for page %d", page)
	}

	return envelope.Data, nil
}

// readBodyForError reads a bounded prefix of an error response body.
func readBodyForError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil {
		return fmt.Sprintf("<failed to read body: %v>", err)
	}
	return string(data)
}

// isRetryable reports whether a fetch failure is worth another attempt.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Wrapped transport errors (connection refused, reset) come through
	// as *url.Error without a typed cause.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// classifyError buckets a fetch failure for metrics.
func classifyError(err error) string {
	var se *statusError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "network"
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return "network"
		}
		return "decode"
	}
}
