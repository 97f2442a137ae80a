package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/lifecycle"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository/memstore"
	"github.com/iliyamo/vehicle-rental-bot/internal/session"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct{ sent []queue.Notification }

func (n *recordingNotifier) Notify(_ context.Context, note queue.Notification) error {
	n.sent = append(n.sent, note)
	return nil
}

func newJobs(store *memstore.Store, notes *recordingNotifier, sweeper Sweeper) *Jobs {
	lc := lifecycle.NewService(store, nil, zap.NewNop()).WithClock(func() time.Time { return now })
	return NewJobs(store, lc, notes, sweeper, 30*time.Minute, 24*time.Hour, zap.NewNop()).
		WithClock(func() time.Time { return now })
}

func TestExpireHolds(t *testing.T) {
	store := memstore.New()
	store.AddVehicle(model.Vehicle{ID: 1})
	pickup := now.Add(72 * time.Hour)
	store.AddReservation(model.Reservation{ID: 1, Reference: "RB-OLD", CustomerID: 7, VehicleID: 1, Status: model.ReservationPending,
		PickupAt: pickup, ReturnAt: pickup.Add(24 * time.Hour), CreatedAt: now.Add(-time.Hour)})
	store.AddReservation(model.Reservation{ID: 2, Reference: "RB-NEW", VehicleID: 1, Status: model.ReservationPending,
		PickupAt: pickup, ReturnAt: pickup.Add(24 * time.Hour), CreatedAt: now.Add(-5 * time.Minute)})
	store.AddReservation(model.Reservation{ID: 3, Reference: "RB-PAID", VehicleID: 1, Status: model.ReservationConfirmed,
		PickupAt: pickup, ReturnAt: pickup.Add(24 * time.Hour), CreatedAt: now.Add(-time.Hour)})
	notes := &recordingNotifier{}

	n, err := newJobs(store, notes, nil).ExpireHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, _ := store.GetReservation(context.Background(), 1)
	assert.Equal(t, model.ReservationCancelled, old.Status)
	assert.Equal(t, HoldExpiredReason, old.CancellationReason)
	assert.Zero(t, old.RefundAmount)
	fresh, _ := store.GetReservation(context.Background(), 2)
	assert.Equal(t, model.ReservationPending, fresh.Status)
	paid, _ := store.GetReservation(context.Background(), 3)
	assert.Equal(t, model.ReservationConfirmed, paid.Status)

	require.Len(t, notes.sent, 1)
	assert.Equal(t, queue.NotifyHoldExpired, notes.sent[0].Kind)
	assert.Equal(t, uint64(7), notes.sent[0].CustomerID)
	assert.Contains(t, notes.sent[0].Text, "RB-OLD")
}

func TestSendRemindersCoversEachPickupOnce(t *testing.T) {
	store := memstore.New()
	store.AddReservation(model.Reservation{ID: 1, Reference: "RB-SOON", Status: model.ReservationConfirmed,
		PickupAt: now.Add(23*time.Hour + 30*time.Minute)})
	store.AddReservation(model.Reservation{ID: 2, Reference: "RB-LATER", Status: model.ReservationConfirmed,
		PickupAt: now.Add(24*time.Hour + 5*time.Minute)})
	store.AddReservation(model.Reservation{ID: 3, Reference: "RB-UNPAID", Status: model.ReservationPending,
		PickupAt: now.Add(23*time.Hour + 30*time.Minute)})
	notes := &recordingNotifier{}
	jobs := newJobs(store, notes, nil)

	n, err := jobs.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, notes.sent, 1)
	assert.Equal(t, uint64(1), notes.sent[0].ReservationID)

	// same instant again: empty window
	n, err = jobs.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// ten minutes later the window reaches RB-LATER only
	later := now.Add(10 * time.Minute)
	jobs.WithClock(func() time.Time { return later })
	n, err = jobs.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(2), notes.sent[1].ReservationID)
}

func TestReapSessions(t *testing.T) {
	clock := now
	sessions := session.NewMemoryStore(time.Minute).WithClock(func() time.Time { return clock })
	require.NoError(t, sessions.Put(context.Background(), &model.Session{ContactID: "a", Flow: model.FlowSupport}))
	clock = clock.Add(2 * time.Minute)

	jobs := newJobs(memstore.New(), &recordingNotifier{}, sessions)
	assert.Equal(t, 1, jobs.ReapSessions())
	assert.Zero(t, sessions.Len())

	assert.Zero(t, newJobs(memstore.New(), &recordingNotifier{}, nil).ReapSessions())
}

func TestStartAndStop(t *testing.T) {
	jobs := newJobs(memstore.New(), &recordingNotifier{}, nil)
	s, err := Start(context.Background(), jobs, Intervals{Sessions: time.Hour, Holds: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}
