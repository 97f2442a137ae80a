package booking

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/pricing"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository/memstore"
)

var (
	now    = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pickup = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday
	ret    = pickup.Add(72 * time.Hour)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (p *recordingPublisher) PublishReservation(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func intPtr(n int) *int { return &n }

func setup(t *testing.T) (*Manager, *memstore.Store, *recordingPublisher) {
	t.Helper()
	store := memstore.New()
	store.Now = func() time.Time { return now }
	store.AddVehicle(model.Vehicle{ID: 1, LocationID: 1, Category: "compact", DailyRate: 1000, SecurityDeposit: 5000})
	store.AddVehicle(model.Vehicle{ID: 2, LocationID: 1, Category: "suv", DailyRate: 2000})
	store.AddVehicle(model.Vehicle{ID: 3, LocationID: 1, Category: "suv", DailyRate: 2000, Status: model.VehicleMaintenance})
	store.AddExtra(model.Extra{ID: 10, Name: "GPS", Price: 100, PricingType: model.PricePerDay, IsActive: true})
	store.AddExtra(model.Extra{ID: 11, Name: "Child seat", Price: 300, PricingType: model.PricePerBooking, IsActive: true})
	store.AddPromo(model.PromoCode{ID: 20, Code: "SPRING10", DiscountType: model.DiscountPercentage, Value: 10,
		MaximumDiscount: 200, UsageLimit: intPtr(5), ValidFrom: now.AddDate(0, -1, 0), ValidTo: now.AddDate(0, 1, 0), IsActive: true})
	store.AddPromo(model.PromoCode{ID: 21, Code: "ONCE", DiscountType: model.DiscountFixed, Value: 500,
		UsageLimit: intPtr(1), UsedCount: 1, ValidFrom: now.AddDate(0, -1, 0), ValidTo: now.AddDate(0, 1, 0), IsActive: true})
	store.AddPromo(model.PromoCode{ID: 22, Code: "SUVONLY", DiscountType: model.DiscountFixed, Value: 500,
		ValidFrom: now.AddDate(0, -1, 0), ValidTo: now.AddDate(0, 1, 0), IsActive: true, ApplicableCategories: []string{"suv"}})

	engine := pricing.NewEngine(pricing.DefaultConfig(), store, zap.NewNop()).WithClock(func() time.Time { return now })
	pub := &recordingPublisher{}
	m := NewManager(store, engine, pub, zap.NewNop()).WithClock(func() time.Time { return now })
	return m, store, pub
}

func baseRequest() Request {
	return Request{CustomerID: 7, VehicleID: 1, PickupLocationID: 1, PickupAt: pickup, ReturnAt: ret}
}

func TestCreateReservation(t *testing.T) {
	m, store, pub := setup(t)
	req := baseRequest()
	req.Extras = []model.ExtraSelection{{ExtraID: 10, Quantity: 1}, {ExtraID: 11, Quantity: 2}}
	req.Insurance = model.InsurancePremium

	res, err := m.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, res.PromoErr)
	r := res.Reservation

	// 3 days at 950 (1000 * 0.95, three-day duration discount)
	assert.Equal(t, int64(950), r.PerDayRate)
	assert.Equal(t, int64(2850), r.BaseAmount)
	// GPS 100*3 + seats 300*2 + premium insurance 0.20*2850
	assert.Equal(t, int64(300+600+570), r.ExtrasAmount)
	assert.Equal(t, int64(691), r.TaxAmount) // round(4320 * 0.16)
	assert.Equal(t, int64(5011), r.TotalAmount)
	assert.True(t, r.AmountsBalanced())
	assert.Equal(t, model.ReservationPending, r.Status)
	assert.Equal(t, int64(5000), r.DepositAmount)
	assert.Equal(t, uint64(1), r.ReturnLocationID)
	assert.Regexp(t, regexp.MustCompile(`^RB-[0-9A-F]{8}$`), r.Reference)
	require.Len(t, r.Extras, 2)
	assert.Equal(t, r.ID, r.Extras[0].ReservationID)

	assert.Len(t, store.Reservations(), 1)
	assert.Equal(t, model.VehicleAvailable, store.Vehicle(1).Status, "pending bookings leave vehicle status alone")
	require.Len(t, pub.events, 1)
	assert.Equal(t, queue.EventReservationCreated, pub.events[0].Type)
}

func TestConcurrentBookingsSameSlotExactlyOneWins(t *testing.T) {
	m, store, _ := setup(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := baseRequest()
			req.CustomerID = uint64(100 + i)
			_, results[i] = m.CreateReservation(context.Background(), req)
		}(i)
	}
	wg.Wait()

	ok, unavailable := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrResourceUnavailable):
			unavailable++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, unavailable)
	require.Len(t, store.Reservations(), 1)
	assert.Equal(t, model.ReservationPending, store.Reservations()[0].Status)
}

func TestOverlapRules(t *testing.T) {
	cases := []struct {
		name   string
		status model.ReservationStatus
		start  time.Time
		end    time.Time
		wantOK bool
	}{
		{"confirmed overlap", model.ReservationConfirmed, pickup.Add(24 * time.Hour), ret.Add(24 * time.Hour), false},
		{"active overlap", model.ReservationActive, pickup.Add(-24 * time.Hour), pickup.Add(time.Hour), false},
		{"pending overlap", model.ReservationPending, pickup, ret, false},
		{"cancelled overlap", model.ReservationCancelled, pickup, ret, true},
		{"completed overlap", model.ReservationCompleted, pickup, ret, true},
		{"touching confirmed", model.ReservationConfirmed, ret, ret.Add(24 * time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, store, _ := setup(t)
			store.AddReservation(model.Reservation{VehicleID: 1, PickupAt: tc.start, ReturnAt: tc.end, Status: tc.status})

			_, err := m.CreateReservation(context.Background(), baseRequest())
			if tc.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrResourceUnavailable)
			}
		})
	}
}

func TestUnavailableVehicles(t *testing.T) {
	m, _, _ := setup(t)
	req := baseRequest()
	req.VehicleID = 3
	_, err := m.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	req.VehicleID = 99
	_, err = m.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestInvalidInterval(t *testing.T) {
	m, store, _ := setup(t)
	cases := map[string][2]time.Time{
		"reversed":  {ret, pickup},
		"empty":     {pickup, pickup},
		"too short": {pickup, pickup.Add(30 * time.Minute)},
		"too long":  {pickup, pickup.Add(31 * 24 * time.Hour)},
		"past":      {now.Add(-time.Hour), now.Add(24 * time.Hour)},
	}
	for name, iv := range cases {
		req := baseRequest()
		req.PickupAt, req.ReturnAt = iv[0], iv[1]
		_, err := m.CreateReservation(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidInterval, name)
	}
	assert.Empty(t, store.Reservations())
}

func TestUnknownExtraRollsBack(t *testing.T) {
	m, store, _ := setup(t)
	req := baseRequest()
	req.Extras = []model.ExtraSelection{{ExtraID: 404, Quantity: 1}}

	_, err := m.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownExtra)
	assert.Empty(t, store.Reservations())
}

func TestPromoApplied(t *testing.T) {
	m, store, _ := setup(t)
	req := baseRequest()
	req.PromoCode = "spring10"

	res, err := m.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, res.PromoErr)
	r := res.Reservation

	assert.Equal(t, int64(200), r.DiscountAmount, "10% of 2850 capped at 200")
	assert.Equal(t, int64(2850+456-200), r.TotalAmount)
	assert.True(t, r.AmountsBalanced())
	require.NotNil(t, r.PromoCodeID)
	assert.Equal(t, uint64(20), *r.PromoCodeID)
	assert.Equal(t, 1, store.Promo(20).UsedCount)
}

func TestExhaustedPromoStillBooksWithoutDiscount(t *testing.T) {
	m, store, _ := setup(t)
	req := baseRequest()
	req.PromoCode = "ONCE"

	res, err := m.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.ErrorIs(t, res.PromoErr, ErrInvalidPromoCode)

	r := res.Reservation
	assert.Equal(t, int64(0), r.DiscountAmount)
	assert.Equal(t, r.BaseAmount+r.ExtrasAmount+r.TaxAmount, r.TotalAmount)
	assert.Nil(t, r.PromoCodeID)
	assert.Equal(t, 1, store.Promo(21).UsedCount)
}

func TestPromoRejections(t *testing.T) {
	for _, code := range []string{"NOPE", "SUVONLY"} {
		m, _, _ := setup(t)
		req := baseRequest()
		req.PromoCode = code
		res, err := m.CreateReservation(context.Background(), req)
		require.NoError(t, err, code)
		assert.ErrorIs(t, res.PromoErr, ErrInvalidPromoCode, code)
		assert.Equal(t, int64(0), res.Reservation.DiscountAmount, code)
	}
}

func TestFailureAfterPromoLeavesUsageUnchanged(t *testing.T) {
	m, store, pub := setup(t)
	store.FailInsert = errors.New("connection reset")
	req := baseRequest()
	req.PromoCode = "SPRING10"

	_, err := m.CreateReservation(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, store.Promo(20).UsedCount)
	assert.Empty(t, store.Reservations())
	assert.Empty(t, pub.events)
}

func TestQuoteDoesNotRedeem(t *testing.T) {
	m, store, _ := setup(t)
	req := baseRequest()
	req.PromoCode = "SPRING10"

	q, err := m.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.NoError(t, q.PromoErr)
	assert.Equal(t, int64(200), q.Discount)
	assert.Equal(t, q.Breakdown.Total()-200, q.Total)
	assert.Equal(t, int64(5000), q.Deposit)
	assert.Equal(t, 0, store.Promo(20).UsedCount)
	assert.Empty(t, store.Reservations())
}

func TestDiscountNeverExceedsTotal(t *testing.T) {
	p := &model.PromoCode{DiscountType: model.DiscountFixed, Value: 99999}
	assert.Equal(t, int64(1160), discountFor(p, 1000, 1160))

	p = &model.PromoCode{DiscountType: model.DiscountPercentage, Value: 15}
	assert.Equal(t, int64(150), discountFor(p, 1000, 1160))
}
