// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

// Package config provides layered configuration for bonussync.
//
// Configuration is loaded with Koanf v2 in three layers, later layers
// overriding earlier ones:
//
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config file: optional YAML file (config.yaml, or CONFIG_PATH)
//  3. Environment variables: SOURCE_URL, TELEGRAM_BOT_TOKEN, ...
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Source   SourceConfig   `koanf:"source"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Notify   NotifyConfig   `koanf:"notify"`
	Telegram TelegramConfig `koanf:"telegram"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SourceConfig holds connection settings for the remote booking system.
//
// Environment Variables:
//   - SOURCE_URL: API base URL (e.g. https://api.yclients.com/api/v1)
//   - SOURCE_PARTNER_TOKEN: partner bearer token
//   - SOURCE_USER_TOKEN: user token sent alongside the partner token
//   - SOURCE_COMPANY_ID: branch/company id, the synchronization scope
//   - SOURCE_PAGE_SIZE: records per page (default: 100)
//   - SOURCE_TIMEZONE: IANA reference timezone for the changed-since
//     filter (default: Europe/Moscow)
type SourceConfig struct {
	URL          string        `koanf:"url"`
	PartnerToken string        `koanf:"partner_token"`
	UserToken    string        `koanf:"user_token"`
	CompanyID    int64         `koanf:"company_id"`
	PageSize     int           `koanf:"page_size"`
	Timezone     string        `koanf:"timezone"`
	Timeout      time.Duration `koanf:"timeout"` // per-request HTTP timeout
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`       // database file, or empty for in-memory
	MaxMemory string `koanf:"max_memory"` // DuckDB memory limit, e.g. "1GB"
	Threads   int    `koanf:"threads"`    // 0 = runtime.NumCPU()
}

// SyncConfig holds reconciliation pass settings.
type SyncConfig struct {
	// Interval between reconciliation passes.
	Interval time.Duration `koanf:"interval"`

	// Lookback is the initial watermark window used when no sync state
	// exists for the scope yet.
	Lookback time.Duration `koanf:"lookback"`

	// RetryAttempts is the number of attempts per page fetch.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration `koanf:"retry_max_delay"`
}

// NotifyConfig holds notification sweep settings.
type NotifyConfig struct {
	// Interval between notification sweeps.
	Interval time.Duration `koanf:"interval"`

	// Message is the award notification text; it must contain one %d verb
	// for the points amount.
	Message string `koanf:"message"`
}

// TelegramConfig holds the messaging transport settings.
//
// Environment Variables:
//   - TELEGRAM_BOT_TOKEN: bot token from BotFather
//   - TELEGRAM_API_URL: Bot API base URL (override for tests/proxies)
//   - TELEGRAM_RATE_LIMIT: messages per second (default: 25)
type TelegramConfig struct {
	BotToken  string        `koanf:"bot_token"`
	APIURL    string        `koanf:"api_url"`
	RateLimit float64       `koanf:"rate_limit"`
	Timeout   time.Duration `koanf:"timeout"`
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json, console
	Caller bool   `koanf:"caller"`
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Source.PartnerToken == "" {
		return fmt.Errorf("source.partner_token is required")
	}
	if c.Source.CompanyID <= 0 {
		return fmt.Errorf("source.company_id must be positive, got %d", c.Source.CompanyID)
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if c.Source.Timezone == "" {
		return fmt.Errorf("source.timezone is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.Lookback <= 0 {
		return fmt.Errorf("sync.lookback must be positive, got %s", c.Sync.Lookback)
	}
	if c.Sync.RetryAttempts <= 0 {
		return fmt.Errorf("sync.retry_attempts must be positive, got %d", c.Sync.RetryAttempts)
	}
	if c.Notify.Interval <= 0 {
		return fmt.Errorf("notify.interval must be positive, got %s", c.Notify.Interval)
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
