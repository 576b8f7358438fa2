// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envMapping maps environment variable names to koanf config paths.
var envMapping = map[string]string{
	"SOURCE_URL":           "source.url",
	"SOURCE_PARTNER_TOKEN": "source.partner_token",
	"SOURCE_USER_TOKEN":    "source.user_token",
	"SOURCE_COMPANY_ID":    "source.company_id",
	"SOURCE_PAGE_SIZE":     "source.page_size",
	"SOURCE_TIMEZONE":      "source.timezone",
	"SOURCE_TIMEOUT":       "source.timeout",

	"DATABASE_PATH":       "database.path",
	"DATABASE_MAX_MEMORY": "database.max_memory",
	"DATABASE_THREADS":    "database.threads",

	"SYNC_INTERVAL":         "sync.interval",
	"SYNC_LOOKBACK":         "sync.lookback",
	"SYNC_RETRY_ATTEMPTS":   "sync.retry_attempts",
	"SYNC_RETRY_BASE_DELAY": "sync.retry_base_delay",
	"SYNC_RETRY_MAX_DELAY":  "sync.retry_max_delay",

	"NOTIFY_INTERVAL": "notify.interval",
	"NOTIFY_MESSAGE":  "notify.message",

	"TELEGRAM_BOT_TOKEN":  "telegram.bot_token",
	"TELEGRAM_API_URL":    "telegram.api_url",
	"TELEGRAM_RATE_LIMIT": "telegram.rate_limit",
	"TELEGRAM_TIMEOUT":    "telegram.timeout",

	"SERVER_HOST":    "server.host",
	"SERVER_PORT":    "server.port",
	"SERVER_TIMEOUT": "server.timeout",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
	"LOG_CALLER": "logging.caller",
}

// defaultConfig returns the built-in defaults. Required credentials are
// intentionally left empty so Validate catches missing deployment config.
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:      "https://api.yclients.com/api/v1",
			PageSize: 100,
			Timezone: "Europe/Moscow",
			Timeout:  30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "./data/bonussync.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Sync: SyncConfig{
			Interval:       5 * time.Minute,
			Lookback:       24 * time.Hour,
			RetryAttempts:  3,
			RetryBaseDelay: 1 * time.Second,
			RetryMaxDelay:  10 * time.Second,
		},
		Notify: NotifyConfig{
			Interval: 1 * time.Minute,
			Message:  "Вам начислено %d бонусных баллов. Спасибо, что вы с нами!",
		},
		Telegram: TelegramConfig{
			APIURL:    "https://api.telegram.org",
			RateLimit: 25,
			Timeout:   10 * time.Second,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// envTransform maps known environment variables to config paths.
// Unknown variables are dropped so the process environment cannot
// pollute the config tree.
func envTransform(name string) string {
	if path, ok := envMapping[name]; ok {
		return path
	}
	return ""
}

// findConfigFile returns the path of the config file to load, or ""
// when no file is present. CONFIG_PATH overrides the search.
func findConfigFile() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	candidates := []string{
		"config.yaml",
		"config.yml",
		filepath.Join("config", "config.yaml"),
		"/etc/bonussync/config.yaml",
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
