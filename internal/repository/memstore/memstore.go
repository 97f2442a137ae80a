// Package memstore is an in-memory implementation of the repository
// surfaces used by the services.  Transactions run one at a time and roll
// back by restoring a snapshot, which gives service tests the same
// all-or-nothing behaviour as the MySQL store.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

// Store holds all entities in maps keyed by id.
type Store struct {
	txMu sync.Mutex // one transaction at a time
	mu   sync.Mutex // guards the maps

	vehicles     map[uint64]model.Vehicle
	locations    map[uint64]model.Location
	customers    map[uint64]model.Customer
	extras       map[uint64]model.Extra
	promos       map[uint64]model.PromoCode
	reservations map[uint64]model.Reservation
	payments     map[uint64]model.Payment
	nextID       uint64

	// FailInsert, when set, is returned by Tx.InsertReservation.
	FailInsert error
	// Now stamps CreatedAt on inserted rows.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		vehicles:     map[uint64]model.Vehicle{},
		locations:    map[uint64]model.Location{},
		customers:    map[uint64]model.Customer{},
		extras:       map[uint64]model.Extra{},
		promos:       map[uint64]model.PromoCode{},
		reservations: map[uint64]model.Reservation{},
		payments:     map[uint64]model.Payment{},
		nextID:       1000,
		Now:          time.Now,
	}
}

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

// Seeding helpers.

func (s *Store) AddVehicle(v model.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Status == "" {
		v.Status = model.VehicleAvailable
	}
	s.vehicles[v.ID] = v
}

func (s *Store) AddLocation(l model.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[l.ID] = l
}

func (s *Store) AddExtra(e model.Extra) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extras[e.ID] = e
}

func (s *Store) AddPromo(p model.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Code = strings.ToUpper(p.Code)
	s.promos[p.ID] = p
}

func (s *Store) AddReservation(r model.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.Now()
	}
	s.reservations[r.ID] = r
}

// Inspection helpers.

func (s *Store) Vehicle(id uint64) model.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vehicles[id]
}

func (s *Store) Promo(id uint64) model.PromoCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promos[id]
}

func (s *Store) Reservations() []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Payments() []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transactions.

type snapshot struct {
	vehicles     map[uint64]model.Vehicle
	promos       map[uint64]model.PromoCode
	reservations map[uint64]model.Reservation
	nextID       uint64
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		vehicles:     clone(s.vehicles),
		promos:       clone(s.promos),
		reservations: clone(s.reservations),
		nextID:       s.nextID,
	}
	s.mu.Unlock()

	if err := fn(&tx{s: s}); err != nil {
		s.mu.Lock()
		s.vehicles, s.promos, s.reservations, s.nextID = snap.vehicles, snap.promos, snap.reservations, snap.nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

type tx struct{ s *Store }

func (t *tx) LockVehicle(_ context.Context, id uint64) (*model.Vehicle, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (t *tx) SetVehicleStatus(_ context.Context, id uint64, status model.VehicleStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = status
	t.s.vehicles[id] = v
	return nil
}

func (t *tx) HasOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error) {
	return t.s.HasOverlap(ctx, vehicleID, start, end, statuses)
}

func (t *tx) ExtrasByIDs(ctx context.Context, ids []uint64) ([]model.Extra, error) {
	return t.s.ExtrasByIDs(ctx, ids)
}

func (t *tx) LockPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	return t.s.GetPromoByCode(ctx, code)
}

func (t *tx) IncrementPromoUse(_ context.Context, promoID uint64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.promos[promoID]
	if !ok {
		return repository.ErrNotFound
	}
	if !p.HasUsesLeft() {
		return repository.ErrPromoExhausted
	}
	p.UsedCount++
	t.s.promos[promoID] = p
	return nil
}

func (t *tx) InsertReservation(_ context.Context, r *model.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.FailInsert != nil {
		return t.s.FailInsert
	}
	r.ID = t.s.id()
	r.CreatedAt = t.s.Now()
	r.UpdatedAt = r.CreatedAt
	for i := range r.Extras {
		r.Extras[i].ReservationID = r.ID
	}
	t.s.reservations[r.ID] = *r
	return nil
}

func (t *tx) LockReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (t *tx) UpdateReservationStatus(_ context.Context, r *model.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur, ok := t.s.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Status = r.Status
	cur.RefundAmount = r.RefundAmount
	cur.CancellationReason = r.CancellationReason
	cur.CancelledAt = r.CancelledAt
	cur.UpdatedAt = t.s.Now()
	t.s.reservations[r.ID] = cur
	return nil
}

func (t *tx) SumSuccessfulPayments(_ context.Context, reservationID uint64) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var total int64
	for _, p := range t.s.payments {
		if p.ReservationID == reservationID && p.Status == model.PaymentSuccess {
			total += p.Amount
		}
	}
	return total, nil
}

// Non-transactional reads and writes.

func (s *Store) GetVehicle(_ context.Context, id uint64) (*model.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (s *Store) SearchVehicles(_ context.Context, q repository.VehicleSearchQuery) ([]model.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Vehicle
	for _, v := range s.vehicles {
		if v.Status != model.VehicleAvailable && v.Status != model.VehicleReserved {
			continue
		}
		if q.LocationID != 0 && v.LocationID != q.LocationID {
			continue
		}
		if q.Category != "" && !strings.EqualFold(v.Category, q.Category) {
			continue
		}
		if q.MinSeats > 0 && int(v.Seats) < q.MinSeats {
			continue
		}
		if q.Transmission != "" && !strings.EqualFold(v.Transmission, q.Transmission) {
			continue
		}
		if q.FuelType != "" && !strings.EqualFold(v.FuelType, q.FuelType) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) HasOverlap(_ context.Context, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.VehicleID != vehicleID || !r.PickupAt.Before(end) || !start.Before(r.ReturnAt) {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) CountPickupsOn(_ context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := repository.DayBounds(day)
	n := 0
	for _, r := range s.reservations {
		if r.PickupAt.Before(from) || !r.PickupAt.Before(to) {
			continue
		}
		switch r.Status {
		case model.ReservationConfirmed, model.ReservationActive, model.ReservationCompleted:
			n++
		}
	}
	return n, nil
}

func (s *Store) GetLocation(_ context.Context, id uint64) (*model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (s *Store) ListActiveLocations(context.Context) ([]model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Location
	for _, l := range s.locations {
		if l.IsActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListActiveExtras(context.Context) ([]model.Extra, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Extra
	for _, e := range s.extras {
		if e.IsActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ExtrasByIDs(_ context.Context, ids []uint64) ([]model.Extra, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Extra
	for _, id := range ids {
		if e, ok := s.extras[id]; ok && e.IsActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetPromoByCode(_ context.Context, code string) (*model.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, p := range s.promos {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetCustomerByContact(_ context.Context, contactID string) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ContactID == contactID {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) EnsureCustomer(ctx context.Context, contactID, name string) (*model.Customer, error) {
	c, err := s.GetCustomerByContact(ctx, contactID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	nc := model.Customer{ID: s.id(), ContactID: contactID, Name: name, Verification: model.VerificationNone, CreatedAt: s.Now()}
	s.customers[nc.ID] = nc
	return &nc, nil
}

func (s *Store) AttachDocument(_ context.Context, customerID uint64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return repository.ErrNotFound
	}
	c.DocumentRef = ref
	c.Verification = model.VerificationPending
	s.customers[customerID] = c
	return nil
}

func (s *Store) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ListByCustomer(_ context.Context, customerID uint64, statuses []model.ReservationStatus) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.CustomerID != customerID || !statusIn(r.Status, statuses) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupAt.Before(out[j].PickupAt) })
	return out, nil
}

func (s *Store) ListPendingCreatedBefore(_ context.Context, t time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.Status == model.ReservationPending && r.CreatedAt.Before(t) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListConfirmedPickupsBetween(_ context.Context, from, to time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.Status == model.ReservationConfirmed && !r.PickupAt.Before(from) && r.PickupAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupAt.Before(out[j].PickupAt) })
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.IntentID == p.IntentID {
			return repository.ErrConflict
		}
	}
	p.ID = s.id()
	p.CreatedAt = s.Now()
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) GetPaymentByIntent(_ context.Context, intentID string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.IntentID == intentID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) SettlePayment(_ context.Context, intentID string, status model.PaymentStatus, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.payments {
		if p.IntentID != intentID {
			continue
		}
		if p.Status != model.PaymentPending {
			return repository.ErrConflict
		}
		p.Status = status
		p.Reference = reference
		s.payments[id] = p
		return nil
	}
	return repository.ErrConflict
}

func statusIn(s model.ReservationStatus, set []model.ReservationStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
