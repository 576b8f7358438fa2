// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/logging"
)

// Server runs the ops HTTP endpoint under supervision.
type Server struct {
	cfg     *config.ServerConfig
	handler http.Handler
}

// NewServer creates the ops HTTP server.
func NewServer(cfg *config.ServerConfig, handler http.Handler) *Server {
	return &Server{cfg: cfg, handler: handler}
}

// Serve listens until the context is canceled, then drains in-flight
// requests. Implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP server shutdown incomplete, closing")
		if closeErr := srv.Close(); closeErr != nil {
			logging.Debug().Err(closeErr).Msg("Error closing HTTP server")
		}
	}
	<-errCh

	return ctx.Err()
}

func (s *Server) String() string { return "http-server" }
