// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loyaltyops/bonussync/internal/config"
	"github.com/loyaltyops/bonussync/internal/models"
)

type fakeNotifyStore struct {
	pending []models.PendingNotification
	marked  []int64
	listErr error
	markErr error
}

func (s *fakeNotifyStore) ListUnnotified(_ context.Context, limit int) ([]models.PendingNotification, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeNotifyStore) MarkNotified(_ context.Context, entryID int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, entryID)
	return nil
}

func (s *fakeNotifyStore) CountUnnotified(_ context.Context) (int64, error) {
	return int64(len(s.pending) - len(s.marked)), nil
}

type sentMessage struct {
	recipientID int64
	text        string
}

type fakeMessenger struct {
	sent    []sentMessage
	failFor map[int64]error
}

func (m *fakeMessenger) Send(_ context.Context, recipientID int64, text string) error {
	if err, ok := m.failFor[recipientID]; ok {
		return err
	}
	m.sent = append(m.sent, sentMessage{recipientID: recipientID, text: text})
	return nil
}

func notifyConfig() *config.NotifyConfig {
	return &config.NotifyConfig{
		Interval: time.Minute,
		Message:  "You earned %d points",
	}
}

func pendingFor(entryID, points, chatID int64) models.PendingNotification {
	return models.PendingNotification{
		Entry:  models.AwardEntry{ID: entryID, Points: points},
		Client: models.Client{ID: entryID, TelegramUserID: chatID},
	}
}

func TestSweepSendsAndMarks(t *testing.T) {
	store := &fakeNotifyStore{pending: []models.PendingNotification{
		pendingFor(1, 150, 777),
		pendingFor(2, 50, 888),
	}}
	messenger := &fakeMessenger{}
	n := NewNotifier(store, messenger, notifyConfig())

	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(messenger.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(messenger.sent))
	}
	if messenger.sent[0].recipientID != 777 || messenger.sent[0].text != "You earned 150 points" {
		t.Errorf("unexpected first message: %+v", messenger.sent[0])
	}
	if len(store.marked) != 2 || store.marked[0] != 1 || store.marked[1] != 2 {
		t.Errorf("marked = %v, want [1 2]", store.marked)
	}
}

func TestSweepLeavesFailedSendsPending(t *testing.T) {
	store := &fakeNotifyStore{pending: []models.PendingNotification{
		pendingFor(1, 150, 777),
		pendingFor(2, 50, 888),
	}}
	messenger := &fakeMessenger{
		failFor: map[int64]error{777: errors.New("bot was blocked by the user")},
	}
	n := NewNotifier(store, messenger, notifyConfig())

	// One failing recipient must not stop delivery to the others.
	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(messenger.sent) != 1 || messenger.sent[0].recipientID != 888 {
		t.Errorf("expected delivery to 888 only, got %+v", messenger.sent)
	}
	if len(store.marked) != 1 || store.marked[0] != 2 {
		t.Errorf("marked = %v, want [2]", store.marked)
	}
}

func TestSweepDefersClientsWithoutChat(t *testing.T) {
	store := &fakeNotifyStore{pending: []models.PendingNotification{
		pendingFor(1, 150, 0), // never linked a chat
	}}
	messenger := &fakeMessenger{}
	n := NewNotifier(store, messenger, notifyConfig())

	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(messenger.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(messenger.sent))
	}
	if len(store.marked) != 0 {
		t.Errorf("entry without chat must stay pending, marked = %v", store.marked)
	}
}

func TestSweepStaysPendingWhenMarkFails(t *testing.T) {
	store := &fakeNotifyStore{
		pending: []models.PendingNotification{pendingFor(1, 150, 777)},
		markErr: errors.New("disk full"),
	}
	messenger := &fakeMessenger{}
	n := NewNotifier(store, messenger, notifyConfig())

	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	// The message went out; the mark failure means the next sweep will
	// send it again. Duplicate over drop.
	if len(messenger.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(messenger.sent))
	}
	if len(store.marked) != 0 {
		t.Errorf("marked = %v, want none", store.marked)
	}
}

func TestSweepAbortsOnListFailure(t *testing.T) {
	store := &fakeNotifyStore{listErr: errors.New("database closed")}
	n := NewNotifier(store, &fakeMessenger{}, notifyConfig())

	if err := n.Sweep(context.Background()); err == nil {
		t.Fatal("expected error when listing fails")
	}
}
