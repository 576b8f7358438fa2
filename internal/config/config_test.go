// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Source.PartnerToken = "partner-token"
	cfg.Source.UserToken = "user-token"
	cfg.Source.CompanyID = 42
	cfg.Telegram.BotToken = "123456:bot-token"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing source url",
			mutate:  func(c *Config) { c.Source.URL = "" },
			wantErr: "source.url",
		},
		{
			name:    "missing partner token",
			mutate:  func(c *Config) { c.Source.PartnerToken = "" },
			wantErr: "source.partner_token",
		},
		{
			name:    "zero company id",
			mutate:  func(c *Config) { c.Source.CompanyID = 0 },
			wantErr: "source.company_id",
		},
		{
			name:    "negative page size",
			mutate:  func(c *Config) { c.Source.PageSize = -1 },
			wantErr: "source.page_size",
		},
		{
			name:    "zero sync interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: "sync.interval",
		},
		{
			name:    "zero lookback",
			mutate:  func(c *Config) { c.Sync.Lookback = 0 },
			wantErr: "sync.lookback",
		},
		{
			name:    "missing bot token",
			mutate:  func(c *Config) { c.Telegram.BotToken = "" },
			wantErr: "telegram.bot_token",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SOURCE_PARTNER_TOKEN", "env-partner")
	t.Setenv("SOURCE_USER_TOKEN", "env-user")
	t.Setenv("SOURCE_COMPANY_ID", "1234")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-bot")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source.PartnerToken != "env-partner" {
		t.Errorf("partner token = %q, want env-partner", cfg.Source.PartnerToken)
	}
	if cfg.Source.CompanyID != 1234 {
		t.Errorf("company id = %d, want 1234", cfg.Source.CompanyID)
	}
	if cfg.Sync.Interval != 90*time.Second {
		t.Errorf("sync interval = %s, want 90s", cfg.Sync.Interval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	// Defaults survive for untouched keys.
	if cfg.Source.PageSize != 100 {
		t.Errorf("page size = %d, want default 100", cfg.Source.PageSize)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
source:
  partner_token: file-partner
  user_token: file-user
  company_id: 77
  page_size: 50
telegram:
  bot_token: file-bot
sync:
  interval: 10m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source.PartnerToken != "file-partner" {
		t.Errorf("partner token = %q, want file-partner", cfg.Source.PartnerToken)
	}
	if cfg.Source.PageSize != 50 {
		t.Errorf("page size = %d, want 50", cfg.Source.PageSize)
	}
	if cfg.Sync.Interval != 10*time.Minute {
		t.Errorf("sync interval = %s, want 10m", cfg.Sync.Interval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
source:
  partner_token: file-partner
  company_id: 77
telegram:
  bot_token: file-bot
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SOURCE_PARTNER_TOKEN", "env-wins")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.PartnerToken != "env-wins" {
		t.Errorf("partner token = %q, want env-wins", cfg.Source.PartnerToken)
	}
}

func TestEnvTransformDropsUnknown(t *testing.T) {
	if got := envTransform("PATH"); got != "" {
		t.Errorf("envTransform(PATH) = %q, want empty", got)
	}
	if got := envTransform("SOURCE_URL"); got != "source.url" {
		t.Errorf("envTransform(SOURCE_URL) = %q, want source.url", got)
	}
}
