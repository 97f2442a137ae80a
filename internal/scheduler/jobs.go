// Package scheduler runs the periodic housekeeping jobs: session reaping,
// expiry of unpaid holds and pickup reminders.  Jobs only read
// reservations; state changes go through the lifecycle service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/lifecycle"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
)

// Store lists the reservations the jobs act on.
type Store interface {
	ListPendingCreatedBefore(ctx context.Context, t time.Time) ([]model.Reservation, error)
	ListConfirmedPickupsBetween(ctx context.Context, from, to time.Time) ([]model.Reservation, error)
}

// Canceller cancels reservations.  *lifecycle.Service implements it.
type Canceller interface {
	Cancel(ctx context.Context, reservationID uint64, reason string) (*model.Reservation, error)
}

// Notifier dispatches customer notifications.
type Notifier interface {
	Notify(ctx context.Context, n queue.Notification) error
}

// Sweeper drops expired sessions.  *session.MemoryStore implements it.
type Sweeper interface {
	Sweep() int
}

// HoldExpiredReason is recorded on reservations cancelled for non-payment.
const HoldExpiredReason = "payment not received in time"

// Jobs holds the job implementations.
type Jobs struct {
	store    Store
	cancel   Canceller
	notify   Notifier
	sessions Sweeper // nil when sessions live in Redis
	holdTTL  time.Duration
	lead     time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu         sync.Mutex
	remindedTo time.Time // end of the last reminder window
}

func NewJobs(store Store, cancel Canceller, notify Notifier, sessions Sweeper, holdTTL, reminderLead time.Duration, log *zap.Logger) *Jobs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jobs{
		store: store, cancel: cancel, notify: notify, sessions: sessions,
		holdTTL: holdTTL, lead: reminderLead, now: time.Now, log: log,
	}
}

// WithClock replaces the job clock.
func (j *Jobs) WithClock(now func() time.Time) *Jobs {
	j.now = now
	return j
}

// ReapSessions drops expired in-memory sessions.
func (j *Jobs) ReapSessions() int {
	if j.sessions == nil {
		return 0
	}
	n := j.sessions.Sweep()
	if n > 0 {
		j.log.Debug("expired sessions reaped", zap.Int("count", n))
	}
	return n
}

// ExpireHolds cancels pending reservations older than the hold TTL and
// tells the customer.  A reservation confirmed in the meantime is skipped.
func (j *Jobs) ExpireHolds(ctx context.Context) (int, error) {
	stale, err := j.store.ListPendingCreatedBefore(ctx, j.now().Add(-j.holdTTL))
	if err != nil {
		return 0, fmt.Errorf("list stale holds: %w", err)
	}
	n := 0
	for _, r := range stale {
		cancelled, err := j.cancel.Cancel(ctx, r.ID, HoldExpiredReason)
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			j.log.Warn("expire hold failed", zap.String("reference", r.Reference), zap.Error(err))
			continue
		}
		n++
		j.send(ctx, queue.Notification{
			Kind:          queue.NotifyHoldExpired,
			CustomerID:    cancelled.CustomerID,
			ReservationID: cancelled.ID,
			Text:          fmt.Sprintf("Your reservation %s was released because the payment was not received.", cancelled.Reference),
		})
	}
	if n > 0 {
		j.log.Info("expired unpaid holds", zap.Int("count", n))
	}
	return n, nil
}

// SendReminders notifies customers whose pickup falls in the next window.
// Consecutive runs cover adjacent windows so each pickup is reminded once
// per process.
func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	to := j.now().Add(j.lead)
	from := j.remindedTo
	if from.IsZero() || from.After(to) {
		// first run looks back one hour
		from = to.Add(-time.Hour)
	}
	if !from.Before(to) {
		return 0, nil
	}
	due, err := j.store.ListConfirmedPickupsBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list upcoming pickups: %w", err)
	}
	for _, r := range due {
		j.send(ctx, queue.Notification{
			Kind:          queue.NotifyPickupReminder,
			CustomerID:    r.CustomerID,
			ReservationID: r.ID,
			Text:          fmt.Sprintf("Reminder: your reservation %s starts at %s.", r.Reference, r.PickupAt.Format("Mon 02 Jan 15:04")),
		})
	}
	j.remindedTo = to
	return len(due), nil
}

func (j *Jobs) send(ctx context.Context, n queue.Notification) {
	n.CreatedAt = j.now().UTC().Format(time.RFC3339)
	if err := j.notify.Notify(ctx, n); err != nil {
		j.log.Warn("notification failed", zap.String("kind", n.Kind), zap.Uint64("reservation_id", n.ReservationID), zap.Error(err))
	}
}
