// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/logging"
	"github.com/loyaltyops/bonussync/internal/metrics"
	"github.com/loyaltyops/bonussync/internal/models"
	"github.com/loyaltyops/bonussync/internal/notify"
)

// sweepBatchSize bounds one sweep so a huge backlog cannot monopolize
// the loop.
const sweepBatchSize = 200

// NotifyStore is the slice of the ledger the notifier needs.
type NotifyStore interface {
	ListUnnotified(ctx context.Context, limit int) ([]models.PendingNotification, error)
	MarkNotified(ctx context.Context, entryID int64) error
	CountUnnotified(ctx context.Context) (int64, error)
}

// Notifier drains the award outbox: unnotified ledger entries are sent
// to their clients and marked delivered. Delivery is best effort and
// at-least-once; an entry is marked only after a successful send, so a
// crash between send and mark causes a duplicate message, never a
// silent drop.
type Notifier struct {
	store     NotifyStore
	messenger notify.Messenger
	message   string
	interval  time.Duration
}

// NewNotifier creates a notification sweeper. The message template must
// contain one %d verb for the points amount.
func NewNotifier(store NotifyStore, messenger notify.Messenger, cfg *config.NotifyConfig) *Notifier {
	return &Notifier{
		store:     store,
		messenger: messenger,
		message:   cfg.Message,
		interval:  cfg.Interval,
	}
}

// Serve runs the periodic sweep until the context is canceled.
// Implements suture.Service.
func (n *Notifier) Serve(ctx context.Context) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.Sweep(ctx); err != nil {
				logging.Warn().Err(err).Msg("Notification sweep failed (will retry)")
			}
		}
	}
}

// Sweep sends every pending notification in one batch. Individual send
// failures are logged and left pending for the next sweep; only listing
// failures abort the sweep.
func (n *Notifier) Sweep(ctx context.Context) error {
	pending, err := n.store.ListUnnotified(ctx, sweepBatchSize)
	if err != nil {
		return err
	}

	for i := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.deliver(ctx, &pending[i])
	}

	if backlog, err := n.store.CountUnnotified(ctx); err == nil {
		metrics.NotificationBacklog.Set(float64(backlog))
	}

	return nil
}

func (n *Notifier) deliver(ctx context.Context, p *models.PendingNotification) {
	if p.Client.TelegramUserID == 0 {
		// No chat to deliver to. The store excludes these from the batch;
		// this guard covers the window where a chat id was cleared after
		// listing. The entry stays pending so delivery happens once the
		// client links their account.
		logging.Debug().
			Int64("entry_id", p.Entry.ID).
			Int64("client_id", p.Client.ID).
			Msg("Client has no messenger chat, notification deferred")
		return
	}

	text := fmt.Sprintf(n.message, p.Entry.Points)
	if err := n.messenger.Send(ctx, p.Client.TelegramUserID, text); err != nil {
		metrics.NotificationFailures.Inc()
		logging.Warn().Err(err).
			Int64("entry_id", p.Entry.ID).
			Int64("client_id", p.Client.ID).
			Msg("Notification send failed, entry stays pending")
		return
	}

	if err := n.store.MarkNotified(ctx, p.Entry.ID); err != nil {
		// The message went out but the mark failed; the next sweep will
		// resend. At-least-once, as promised.
		logging.Warn().Err(err).
			Int64("entry_id", p.Entry.ID).
			Msg("Failed to mark entry notified after send")
		return
	}

	metrics.NotificationsSent.Inc()
}

func (n *Notifier) String() string { return "notifier" }
