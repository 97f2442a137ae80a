package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository/memstore"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) PublishReservation(_ context.Context, ev queue.ReservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, ev.Type)
	return nil
}

func setup(t *testing.T, status model.ReservationStatus, pickupIn time.Duration) (*Service, *memstore.Store, *recorder, uint64) {
	t.Helper()
	store := memstore.New()
	store.Now = func() time.Time { return now }
	vehicleStatus := model.VehicleAvailable
	if status == model.ReservationActive {
		vehicleStatus = model.VehicleReserved
	}
	store.AddVehicle(model.Vehicle{ID: 1, Status: vehicleStatus})
	store.AddReservation(model.Reservation{
		ID: 50, VehicleID: 1, CustomerID: 2, Reference: "RB-00000050",
		PickupAt: now.Add(pickupIn), ReturnAt: now.Add(pickupIn + 72*time.Hour),
		BaseAmount: 9000, TaxAmount: 1440, TotalAmount: 10440, Status: status,
	})
	rec := &recorder{}
	svc := NewService(store, rec, zap.NewNop()).WithClock(func() time.Time { return now })
	return svc, store, rec, 50
}

func pay(t *testing.T, store *memstore.Store, intent string, amount int64) {
	t.Helper()
	require.NoError(t, store.CreatePayment(context.Background(), &model.Payment{
		ReservationID: 50, IntentID: intent, Amount: amount, Status: model.PaymentPending,
	}))
	require.NoError(t, store.SettlePayment(context.Background(), intent, model.PaymentSuccess, "ch_"+intent))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.ReservationPending, model.ReservationConfirmed))
	assert.True(t, CanTransition(model.ReservationConfirmed, model.ReservationActive))
	assert.True(t, CanTransition(model.ReservationActive, model.ReservationCompleted))
	for _, from := range []model.ReservationStatus{model.ReservationPending, model.ReservationConfirmed, model.ReservationActive} {
		assert.True(t, CanTransition(from, model.ReservationCancelled), from)
	}
	assert.False(t, CanTransition(model.ReservationPending, model.ReservationActive))
	assert.False(t, CanTransition(model.ReservationCompleted, model.ReservationCancelled))
	assert.False(t, CanTransition(model.ReservationCancelled, model.ReservationPending))
}

func TestRefundPercent(t *testing.T) {
	assert.Equal(t, 90, RefundPercent(72*time.Hour))
	assert.Equal(t, 90, RefundPercent(24*time.Hour))
	assert.Equal(t, 50, RefundPercent(24*time.Hour-time.Minute))
	assert.Equal(t, 50, RefundPercent(12*time.Hour))
	assert.Equal(t, 25, RefundPercent(12*time.Hour-time.Minute))
	assert.Equal(t, 25, RefundPercent(2*time.Hour))
	assert.Equal(t, 0, RefundPercent(2*time.Hour-time.Minute))
	assert.Equal(t, 0, RefundPercent(-time.Hour))
	assert.Equal(t, int64(9396), RefundAmount(10440, 48*time.Hour))
}

func TestRecordPaymentConfirmsWhenCovered(t *testing.T) {
	svc, store, rec, id := setup(t, model.ReservationPending, 48*time.Hour)
	ctx := context.Background()

	pay(t, store, "pi_1", 5000)
	r, err := svc.RecordPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, r.Status)

	pay(t, store, "pi_2", 5440)
	r, err = svc.RecordPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, r.Status)

	r, err = svc.RecordPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, r.Status)
	assert.Equal(t, []string{queue.EventReservationConfirmed}, rec.types)
}

func TestPickupAndReturn(t *testing.T) {
	svc, store, rec, id := setup(t, model.ReservationConfirmed, time.Hour)
	ctx := context.Background()

	r, err := svc.Pickup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationActive, r.Status)
	assert.Equal(t, model.VehicleReserved, store.Vehicle(1).Status)

	_, err = svc.Pickup(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	r, err = svc.Return(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCompleted, r.Status)
	assert.Equal(t, model.VehicleAvailable, store.Vehicle(1).Status)
	assert.Equal(t, []string{queue.EventReservationActive, queue.EventReservationCompleted}, rec.types)
}

func TestPickupRequiresConfirmed(t *testing.T) {
	svc, store, _, id := setup(t, model.ReservationPending, time.Hour)
	_, err := svc.Pickup(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.VehicleAvailable, store.Vehicle(1).Status)
}

func TestCancelConfirmedRecordsRefund(t *testing.T) {
	svc, store, rec, id := setup(t, model.ReservationConfirmed, 48*time.Hour)

	r, err := svc.Cancel(context.Background(), id, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, r.Status)
	assert.Equal(t, int64(9396), r.RefundAmount)
	assert.Equal(t, "plans changed", r.CancellationReason)
	require.NotNil(t, r.CancelledAt)

	stored := store.Reservations()[0]
	assert.Equal(t, model.ReservationCancelled, stored.Status)
	assert.Equal(t, int64(9396), stored.RefundAmount)
	assert.Equal(t, []string{queue.EventReservationCancelled}, rec.types)
}

func TestCancelPendingHasNoRefund(t *testing.T) {
	svc, _, _, id := setup(t, model.ReservationPending, 48*time.Hour)
	r, err := svc.Cancel(context.Background(), id, "expired")
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.RefundAmount)
}

func TestCancelActiveReleasesVehicle(t *testing.T) {
	svc, store, _, id := setup(t, model.ReservationActive, -time.Hour)
	r, err := svc.Cancel(context.Background(), id, "breakdown")
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.RefundAmount)
	assert.Equal(t, model.VehicleAvailable, store.Vehicle(1).Status)
}

func TestCancelKeepsMaintenanceStatus(t *testing.T) {
	svc, store, _, id := setup(t, model.ReservationActive, -time.Hour)
	store.AddVehicle(model.Vehicle{ID: 1, Status: model.VehicleMaintenance})

	_, err := svc.Cancel(context.Background(), id, "accident")
	require.NoError(t, err)
	assert.Equal(t, model.VehicleMaintenance, store.Vehicle(1).Status)
}

func TestCancelTerminalFails(t *testing.T) {
	svc, _, rec, id := setup(t, model.ReservationCompleted, -96*time.Hour)
	_, err := svc.Cancel(context.Background(), id, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, rec.types)
}
