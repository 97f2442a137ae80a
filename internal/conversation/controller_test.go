package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/availability"
	"github.com/iliyamo/vehicle-rental-bot/internal/booking"
	"github.com/iliyamo/vehicle-rental-bot/internal/lifecycle"
	"github.com/iliyamo/vehicle-rental-bot/internal/message"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/payment"
	"github.com/iliyamo/vehicle-rental-bot/internal/pricing"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository/memstore"
	"github.com/iliyamo/vehicle-rental-bot/internal/session"
)

const contact = "+5215550001"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	sent []queue.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note queue.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

type fixture struct {
	ctl      *Controller
	store    *memstore.Store
	sessions *session.MemoryStore
	notes    *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	log := zap.NewNop()

	store := memstore.New()
	store.Now = clk.now
	store.AddLocation(model.Location{ID: 1, Name: "Centro", Address: "Av. Juarez 10", City: "CDMX", IsActive: true})
	store.AddLocation(model.Location{ID: 2, Name: "Aeropuerto", Address: "Terminal 1", City: "CDMX", IsActive: true})
	store.AddVehicle(model.Vehicle{ID: 1, LocationID: 1, Category: "compact", Make: "Nissan", Model: "Versa", Year: 2024, Seats: 5, DailyRate: 1000, SecurityDeposit: 5000, Rating: 4.5})
	store.AddVehicle(model.Vehicle{ID: 2, LocationID: 1, Category: "suv", Make: "Kia", Model: "Sportage", Year: 2023, Seats: 5, DailyRate: 2000, SecurityDeposit: 8000, Rating: 4.7})
	store.AddVehicle(model.Vehicle{ID: 3, LocationID: 2, Category: "compact", Make: "VW", Model: "Polo", Year: 2022, Seats: 5, DailyRate: 900, Rating: 4.1})
	store.AddExtra(model.Extra{ID: 10, Name: "GPS", Price: 100, PricingType: model.PricePerDay, IsActive: true})

	engine := pricing.NewEngine(pricing.DefaultConfig(), store, log).WithClock(clk.now)
	checker := availability.NewChecker(store, engine)
	manager := booking.NewManager(store, engine, nil, log).WithClock(clk.now)
	lc := lifecycle.NewService(store, nil, log).WithClock(clk.now)
	payments := payment.NewService(payment.OfflineGateway{}, store, lc, "mxn", log)
	sessions := session.NewMemoryStore(session.DefaultTTL).WithClock(clk.now)
	notes := &recordingNotifier{}

	ctl := NewController(Deps{
		Sessions:  sessions,
		Locker:    session.NewKeyedMutex(),
		Store:     store,
		Finder:    checker,
		Booker:    manager,
		Lifecycle: lc,
		Payments:  payments,
		Notifier:  notes,
		Currency:  "mxn",
		Location:  time.UTC,
		Log:       log,
	}).WithClock(clk.now)

	return &fixture{ctl: ctl, store: store, sessions: sessions, notes: notes, clock: clk}
}

func (f *fixture) send(t *testing.T, kind EventKind, text string) message.Message {
	t.Helper()
	out, err := f.ctl.Handle(context.Background(), contact, Event{Kind: kind, Text: text})
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func (f *fixture) text(t *testing.T, s string) message.Message { return f.send(t, EventText, s) }
func (f *fixture) choose(t *testing.T, id string) message.Message {
	return f.send(t, EventSelection, id)
}

func (f *fixture) session(t *testing.T) *model.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), contact)
	require.NoError(t, err)
	return s
}

func itemIDs(m message.Message) []string {
	var ids []string
	for _, it := range m.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

// toConfirmation walks the booking flow up to the summary for vehicle 1.
func (f *fixture) toConfirmation(t *testing.T) message.Message {
	t.Helper()
	f.choose(t, menuBook)
	f.choose(t, "loc:1")
	f.text(t, "02/03/2026 10:00")
	f.text(t, "05/03/2026 10:00")
	f.choose(t, "cat:compact")
	return f.choose(t, "veh:1")
}

func TestGreetingLeavesNoSession(t *testing.T) {
	f := newFixture(t)

	m := f.text(t, "Hello")
	assert.Equal(t, message.KindList, m.Kind)
	assert.Contains(t, itemIDs(m), menuBook)
	assert.Nil(t, f.session(t))
}

func TestBookingFlowHappyPath(t *testing.T) {
	f := newFixture(t)

	m := f.choose(t, menuBook)
	assert.Equal(t, []string{"loc:2", "loc:1"}, itemIDs(m))
	assert.Equal(t, model.StepLocationSelection, f.session(t).Step)

	f.choose(t, "loc:1")
	assert.Equal(t, model.StepDateSelection, f.session(t).Step)

	f.text(t, "02/03/2026 10:00")
	s := f.session(t)
	assert.Equal(t, model.StepReturnDateSelection, s.Step)
	assert.True(t, s.Booking.PickupAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))

	m = f.text(t, "05/03/2026 10:00")
	assert.Equal(t, message.KindList, m.Kind)
	assert.Equal(t, []string{"cat:compact", "cat:suv"}, itemIDs(m))
	s = f.session(t)
	assert.Equal(t, model.StepCategorySelection, s.Step)
	require.Len(t, s.Booking.Results, 2)

	m = f.choose(t, "cat:compact")
	assert.Equal(t, []string{"veh:1", selBack}, itemIDs(m))

	m = f.choose(t, "veh:1")
	assert.Equal(t, message.KindButtons, m.Kind)
	assert.Contains(t, m.Text, "Nissan Versa (2024)")
	assert.Equal(t, model.StepVehicleConfirmation, f.session(t).Step)

	m = f.choose(t, "extra:10")
	assert.Contains(t, m.Text, "GPS added.")
	assert.Equal(t, []model.ExtraSelection{{ExtraID: 10, Quantity: 1}}, f.session(t).Booking.Extras)

	m = f.choose(t, selConfirm)
	assert.Equal(t, message.KindText, m.Kind)
	assert.Contains(t, m.Text, "Reservation RB-")
	assert.Contains(t, m.Text, "Payment reference: offline_")
	assert.Nil(t, f.session(t))

	res := f.store.Reservations()
	require.Len(t, res, 1)
	r := res[0]
	assert.Equal(t, model.ReservationPending, r.Status)
	assert.Equal(t, uint64(1), r.VehicleID)
	assert.True(t, r.AmountsBalanced())
	require.Len(t, r.Extras, 1)
	require.Len(t, f.store.Payments(), 1)
	assert.Equal(t, r.TotalAmount, f.store.Payments()[0].Amount)
}

func TestInvalidDateKeepsStep(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)
	f.choose(t, "loc:1")

	m := f.text(t, "31/13/2099 10:00")
	assert.Contains(t, m.Text, "couldn't read that date")
	assert.Equal(t, model.StepDateSelection, f.session(t).Step)

	m = f.text(t, "01/01/2026 10:00")
	assert.Contains(t, m.Text, "must be in the future")
	assert.Equal(t, model.StepDateSelection, f.session(t).Step)

	m = f.text(t, "01/12/2026 10:00")
	assert.Contains(t, m.Text, "6 months ahead")
	assert.Equal(t, model.StepDateSelection, f.session(t).Step)
}

func TestReturnDateRules(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)
	f.choose(t, "loc:1")
	f.text(t, "02/03/2026 10:00")

	m := f.text(t, "02/03/2026 09:00")
	assert.Contains(t, m.Text, "after the pickup")
	m = f.text(t, "02/03/2026 10:30")
	assert.Contains(t, m.Text, "minimum rental")
	m = f.text(t, "10/04/2026 10:00")
	assert.Contains(t, m.Text, "maximum rental")
	assert.Equal(t, model.StepReturnDateSelection, f.session(t).Step)
}

func TestExpiredSessionRestartsAtGreeting(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)
	f.choose(t, "loc:1")
	require.Equal(t, model.StepDateSelection, f.session(t).Step)

	f.clock.advance(session.DefaultTTL + time.Millisecond)

	m := f.text(t, "02/03/2026 10:00")
	assert.Equal(t, message.KindList, m.Kind)
	assert.Contains(t, m.Text, "What would you like to do?")
	assert.Nil(t, f.session(t))
}

func TestUnknownVehicleIsReprompted(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)
	f.choose(t, "loc:1")
	f.text(t, "02/03/2026 10:00")
	f.text(t, "05/03/2026 10:00")
	f.choose(t, "cat:compact")

	// vehicle 3 exists but is not in this search's results
	m := f.choose(t, "veh:3")
	assert.Contains(t, m.Text, "isn't in your search results")
	assert.Equal(t, model.StepVehicleSelection, f.session(t).Step)

	m = f.choose(t, "cat:luxury")
	assert.Contains(t, m.Text, "Please pick a vehicle")
}

func TestUnknownCategoryIsReprompted(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)
	f.choose(t, "loc:1")
	f.text(t, "02/03/2026 10:00")
	f.text(t, "05/03/2026 10:00")

	m := f.choose(t, "cat:luxury")
	assert.Contains(t, m.Text, "listed categories")
	assert.Equal(t, model.StepCategorySelection, f.session(t).Step)
}

func TestDeliveryAddress(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)

	m := f.text(t, "short")
	assert.Contains(t, m.Text, "at least 10 characters")
	assert.Equal(t, model.StepLocationSelection, f.session(t).Step)

	f.text(t, "Calle Roma 45, Col. Juarez")
	s := f.session(t)
	assert.Equal(t, model.StepDateSelection, s.Step)
	assert.Equal(t, "Calle Roma 45, Col. Juarez", s.Booking.DeliveryAddress)
	assert.Zero(t, s.Booking.PickupLocationID)
}

func TestLocationEventAccepted(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)

	_, err := f.ctl.Handle(context.Background(), contact, Event{Kind: EventLocation, Latitude: 19.4326, Longitude: -99.1332})
	require.NoError(t, err)
	s := f.session(t)
	assert.Equal(t, model.StepDateSelection, s.Step)
	assert.Equal(t, "19.43260,-99.13320", s.Booking.DeliveryAddress)
}

func TestNoResultsEndsFlow(t *testing.T) {
	f := newFixture(t)
	f.store.AddReservation(model.Reservation{ID: 70, VehicleID: 1, Status: model.ReservationConfirmed,
		PickupAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), ReturnAt: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)})
	f.store.AddReservation(model.Reservation{ID: 71, VehicleID: 2, Status: model.ReservationActive,
		PickupAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), ReturnAt: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)})

	f.choose(t, menuBook)
	f.choose(t, "loc:1")
	f.text(t, "02/03/2026 10:00")
	m := f.text(t, "05/03/2026 10:00")
	assert.Equal(t, message.KindButtons, m.Kind)
	assert.Contains(t, m.Text, "no vehicles are available")
	assert.Nil(t, f.session(t))
}

func TestConfirmationRejectReturnsToVehicles(t *testing.T) {
	f := newFixture(t)
	f.toConfirmation(t)

	m := f.choose(t, selReject)
	assert.Equal(t, message.KindList, m.Kind)
	s := f.session(t)
	assert.Equal(t, model.StepVehicleSelection, s.Step)
	assert.Zero(t, s.Booking.VehicleID)
}

func TestConfirmationPromoAndInsurance(t *testing.T) {
	f := newFixture(t)
	f.toConfirmation(t)

	m := f.text(t, "promo nothere")
	assert.Contains(t, m.Text, "Promo NOTHERE not applied.")
	assert.Equal(t, "NOTHERE", f.session(t).Booking.PromoCode)

	m = f.choose(t, "insurance:full")
	assert.Contains(t, m.Text, "Insurance set to full.")
	assert.Equal(t, model.InsuranceFull, f.session(t).Booking.Insurance)

	// invalid code still books at the regular price
	m = f.choose(t, selConfirm)
	assert.Contains(t, m.Text, "could not be applied")
	r := f.store.Reservations()[0]
	assert.Zero(t, r.DiscountAmount)
	assert.Equal(t, model.InsuranceFull, r.Insurance)
}

func TestFullyDiscountedBookingIsConfirmed(t *testing.T) {
	f := newFixture(t)
	now := f.clock.now()
	f.store.AddPromo(model.PromoCode{ID: 30, Code: "FREERIDE", DiscountType: model.DiscountFixed, Value: 1e9,
		ValidFrom: now.AddDate(0, -1, 0), ValidTo: now.AddDate(0, 1, 0), IsActive: true})
	f.toConfirmation(t)
	f.text(t, "promo freeride")

	m := f.choose(t, selConfirm)
	assert.Contains(t, m.Text, "Total: $0 MXN")
	assert.Contains(t, m.Text, "your booking is confirmed")
	assert.NotContains(t, m.Text, "couldn't")

	r := f.store.Reservations()[0]
	assert.Zero(t, r.TotalAmount)
	assert.Equal(t, model.ReservationConfirmed, r.Status)
	assert.Empty(t, f.store.Payments())
	assert.Nil(t, f.session(t))
}

func TestVehicleTakenAtCommit(t *testing.T) {
	f := newFixture(t)
	f.toConfirmation(t)

	f.store.AddReservation(model.Reservation{ID: 80, VehicleID: 1, Status: model.ReservationPending,
		PickupAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), ReturnAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)})

	m := f.choose(t, selConfirm)
	assert.Contains(t, m.Text, "just booked")
	s := f.session(t)
	require.NotNil(t, s)
	// vehicle 1 was the only compact, so the customer goes back to categories
	assert.Equal(t, model.StepCategorySelection, s.Step)
	assert.Equal(t, []string{"cat:suv"}, itemIDs(m))
	_, found := s.Booking.Option(1)
	assert.False(t, found)
}

func TestGlobalCancelAbortsFlow(t *testing.T) {
	f := newFixture(t)
	f.choose(t, menuBook)
	f.choose(t, "loc:1")

	m := f.text(t, "  CANCEL ")
	assert.Contains(t, m.Text, "I stopped that")
	assert.Nil(t, f.session(t))
}

func TestCancellationFlow(t *testing.T) {
	f := newFixture(t)
	cust, err := f.store.EnsureCustomer(context.Background(), contact, "")
	require.NoError(t, err)
	f.store.AddReservation(model.Reservation{ID: 50, Reference: "RB-0000ABCD", CustomerID: cust.ID, VehicleID: 1,
		Status: model.ReservationConfirmed, TotalAmount: 1000, BaseAmount: 1000,
		PickupAt: f.clock.now().Add(48 * time.Hour), ReturnAt: f.clock.now().Add(72 * time.Hour)})

	m := f.text(t, "cancel booking")
	assert.Equal(t, []string{"res:50"}, itemIDs(m))

	m = f.choose(t, "res:999")
	assert.Contains(t, m.Text, "pick one of your bookings")
	assert.Equal(t, model.StepSelectReservation, f.session(t).Step)

	m = f.choose(t, "res:50")
	assert.Contains(t, m.Text, "Estimated refund: $900 MXN")
	assert.Equal(t, model.StepConfirmCancellation, f.session(t).Step)

	m = f.choose(t, selCancelYes)
	assert.Contains(t, m.Text, "RB-0000ABCD is cancelled. Refund: $900 MXN")
	assert.Nil(t, f.session(t))

	r, err := f.store.GetReservation(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, r.Status)
}

func TestCancellationWithNothingToCancel(t *testing.T) {
	f := newFixture(t)
	m := f.choose(t, menuCancel)
	assert.Contains(t, m.Text, "no bookings that can be cancelled")
	assert.Nil(t, f.session(t))
}

func TestSupportFlow(t *testing.T) {
	f := newFixture(t)
	f.text(t, "support")
	assert.Equal(t, model.StepDescribeIssue, f.session(t).Step)

	m := f.text(t, "flat")
	assert.Contains(t, m.Text, "more detail")

	f.notes.err = errors.New("broker down")
	m = f.text(t, "The car has a flat tyre")
	assert.Contains(t, m.Text, "couldn't reach an agent")
	assert.Equal(t, model.StepDescribeIssue, f.session(t).Step)

	f.notes.err = nil
	f.text(t, "The car has a flat tyre")
	assert.Nil(t, f.session(t))
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, queue.NotifyEscalation, f.notes.sent[0].Kind)
	assert.Contains(t, f.notes.sent[0].Text, "flat tyre")
}

func TestDocumentAttachedToCustomer(t *testing.T) {
	f := newFixture(t)
	out, err := f.ctl.Handle(context.Background(), contact, Event{Kind: EventDocument, DocumentRef: "docs/licence-1.jpg"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "under review")

	cust, err := f.store.GetCustomerByContact(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, cust.Verification)
	assert.Equal(t, "docs/licence-1.jpg", cust.DocumentRef)
}

func TestCorruptSessionFallsBackToMenu(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.Put(context.Background(), &model.Session{
		ContactID: contact, Flow: model.FlowBooking, Step: model.Step("teleport"),
	}))

	m := f.text(t, "anything")
	assert.Equal(t, fallbackText, m.Text)
	assert.Nil(t, f.session(t))

	// a known step with its draft missing is handled the same way
	require.NoError(t, f.sessions.Put(context.Background(), &model.Session{
		ContactID: contact, Flow: model.FlowBooking, Step: model.StepDateSelection,
	}))
	m = f.text(t, "02/03/2026 10:00")
	assert.Equal(t, fallbackText, m.Text)
	assert.Nil(t, f.session(t))
}

func TestUnreadableRedisSessionIsCleared(t *testing.T) {
	f := newFixture(t)
	db, mock := redismock.NewClientMock()
	f.ctl.Sessions = session.NewRedisStore(db, session.DefaultTTL).WithClock(f.clock.now)

	mock.ExpectGet("session:" + contact).SetVal("{not json")
	mock.ExpectDel("session:" + contact).SetVal(1)

	out, err := f.ctl.Handle(context.Background(), contact, Event{Kind: EventText, Text: "hola"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, fallbackText, out[0].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDateTime(t *testing.T) {
	_, err := parseDateTime("tomorrow morning", time.UTC)
	require.Error(t, err)

	got, err := parseDateTime("2/3/2026  09:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), got)

	got, err = parseDateTime("2026-03-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), got)

	_, err = parseDateTime("31/13/2099 10:00", time.UTC)
	assert.ErrorIs(t, err, errDateFormat)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$0", money(0, ""))
	assert.Equal(t, "$999 MXN", money(999, "mxn"))
	assert.Equal(t, "$1,000", money(1000, ""))
	assert.Equal(t, "$12,345,678", money(12345678, ""))
	assert.Equal(t, "-$5,011", money(-5011, ""))
}
