// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

// Package main is the entry point for the bonussync server.
//
// Bonussync reconciles a local loyalty ledger against a remote booking
// system (YClients). It periodically pulls visit records changed since
// the last completed pass, awards points for fully paid visits of
// registered loyalty members, and notifies clients over Telegram.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and
//     config files (Koanf v2)
//  2. Database: Open DuckDB and create the ledger schema
//  3. Source client: YClients records API with retry and circuit breaker
//  4. Sync manager: Watermark-driven reconciliation pass loop
//  5. Notifier: Outbox sweep delivering awards over Telegram
//  6. HTTP server: Health probes, metrics, and pass status
//
// All long-running components run under a suture supervisor tree and
// are restarted independently on failure.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SOURCE_URL, TELEGRAM_BOT_TOKEN, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Required settings:
//   - SOURCE_PARTNER_TOKEN: YClients partner token
//   - SOURCE_USER_TOKEN: YClients user token
//   - SOURCE_COMPANY_ID: branch to reconcile
//   - TELEGRAM_BOT_TOKEN: bot token for notifications
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the
// running pass finishes its current record, the HTTP server drains
// in-flight requests, and the database is checkpointed before close.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/loyaltyops/bonussync/internal/api"
	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/database"
	"github.com/loyaltyops/bonussync/internal/logging"
	"github.com/loyaltyops/bonussync/internal/notify"
	"github.com/loyaltyops/bonussync/internal/supervisor"
	syncpkg "github.com/loyaltyops/bonussync/internal/sync"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Int64("company_id", cfg.Source.CompanyID).
		Str("db_path", cfg.Database.Path).
		Msg("Starting bonussync")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Error closing database")
		}
	}()

	source, err := syncpkg.NewYClientsClient(&cfg.Source, &cfg.Sync)
	if err != nil {
		return err
	}
	breaker := syncpkg.NewCircuitBreakerClient(source)

	manager := syncpkg.NewManager(db, breaker, cfg)
	messenger := notify.NewTelegram(&cfg.Telegram)
	notifier := syncpkg.NewNotifier(db, messenger, &cfg.Notify)

	router := api.NewRouter(db, manager, db)
	server := api.NewServer(&cfg.Server, router.Setup())

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(manager)
	tree.AddSyncService(notifier)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
