// Package conversation drives customers through the chat flows: booking a
// vehicle, cancelling a reservation and reaching support.  State between
// turns lives in a session.Store; every turn for a contact runs under that
// contact's lock.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/availability"
	"github.com/iliyamo/vehicle-rental-bot/internal/booking"
	"github.com/iliyamo/vehicle-rental-bot/internal/message"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/session"
)

// Store is the catalog and customer data the controller reads.
type Store interface {
	ListActiveLocations(ctx context.Context) ([]model.Location, error)
	ListActiveExtras(ctx context.Context) ([]model.Extra, error)
	EnsureCustomer(ctx context.Context, contactID, name string) (*model.Customer, error)
	AttachDocument(ctx context.Context, customerID uint64, ref string) error
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	ListByCustomer(ctx context.Context, customerID uint64, statuses []model.ReservationStatus) ([]model.Reservation, error)
}

// Finder searches available vehicles.  *availability.Checker implements it.
type Finder interface {
	FindAvailable(ctx context.Context, crit availability.Criteria) ([]availability.Candidate, error)
}

// Booker quotes and commits reservations.  *booking.Manager implements it.
type Booker interface {
	Quote(ctx context.Context, req booking.Request) (*booking.Quote, error)
	CreateReservation(ctx context.Context, req booking.Request) (*booking.Result, error)
}

// Lifecycle moves reservations between statuses.  *lifecycle.Service
// implements it.
type Lifecycle interface {
	RecordPayment(ctx context.Context, reservationID uint64) (*model.Reservation, error)
	Cancel(ctx context.Context, reservationID uint64, reason string) (*model.Reservation, error)
}

// Payments starts payment for a new reservation.
type Payments interface {
	StartPayment(ctx context.Context, r *model.Reservation, payerContact, method string) (*model.Payment, error)
}

// Notifier dispatches staff notifications.
type Notifier interface {
	Notify(ctx context.Context, n queue.Notification) error
}

// Deps bundles the controller collaborators.
type Deps struct {
	Sessions  session.Store
	Locker    session.Locker
	Store     Store
	Finder    Finder
	Booker    Booker
	Lifecycle Lifecycle
	Payments  Payments
	Notifier  Notifier
	Currency  string
	Location  *time.Location
	Log       *zap.Logger
}

// Controller handles inbound events.
type Controller struct {
	Deps
	now   func() time.Time
	steps map[stepKey]stepHandler
}

type stepKey struct {
	flow model.Flow
	step model.Step
}

// turn is the state of one inbound event being handled.
type turn struct {
	ctx       context.Context
	contactID string
	sess      *model.Session
	ev        Event
	input     string // normalized text or selection id
}

type stepHandler func(t *turn) (message.Message, error)

// errCorruptSession marks a session whose (flow, step) has no handler or
// whose draft is missing.
var errCorruptSession = errors.New("session state is inconsistent")

const fallbackText = "Something went wrong, returning to the main menu."

func NewController(d Deps) *Controller {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Locker == nil {
		d.Locker = session.NewKeyedMutex()
	}
	c := &Controller{Deps: d, now: time.Now}
	c.steps = map[stepKey]stepHandler{
		{model.FlowBooking, model.StepLocationSelection}:        c.onLocation,
		{model.FlowBooking, model.StepDateSelection}:            c.onPickupDate,
		{model.FlowBooking, model.StepReturnDateSelection}:      c.onReturnDate,
		{model.FlowBooking, model.StepVehicleSearch}:            c.search,
		{model.FlowBooking, model.StepCategorySelection}:        c.onCategory,
		{model.FlowBooking, model.StepVehicleSelection}:         c.onVehicle,
		{model.FlowBooking, model.StepVehicleConfirmation}:      c.onConfirmation,
		{model.FlowCancellation, model.StepSelectReservation}:   c.onSelectReservation,
		{model.FlowCancellation, model.StepConfirmCancellation}: c.onConfirmCancellation,
		{model.FlowSupport, model.StepDescribeIssue}:            c.onDescribeIssue,
	}
	return c
}

// WithClock replaces the controller clock.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Handle processes one event for contactID and returns the messages to
// send back.  Customer mistakes never produce an error; the returned
// error is reserved for infrastructure failures (session store, lock).
func (c *Controller) Handle(ctx context.Context, contactID string, ev Event) ([]message.Message, error) {
	unlock, err := c.Locker.Lock(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("lock contact: %w", err)
	}
	defer unlock()

	sess, err := c.Sessions.Get(ctx, contactID)
	if errors.Is(err, session.ErrCorrupt) {
		c.Log.Error("discarding unreadable session",
			zap.String("contact_id", contactID), zap.Error(err))
		if derr := c.Sessions.Delete(ctx, contactID); derr != nil {
			return nil, fmt.Errorf("clear session: %w", derr)
		}
		return []message.Message{mainMenu(fallbackText)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = &model.Session{ContactID: contactID}
	}

	t := &turn{ctx: ctx, contactID: contactID, sess: sess, ev: ev, input: normalize(ev.Text)}

	msg, err := c.dispatch(t)
	if err != nil {
		c.Log.Error("conversation turn failed",
			zap.String("contact_id", contactID),
			zap.String("flow", string(sess.Flow)),
			zap.String("step", string(sess.Step)),
			zap.Error(err))
		if derr := c.Sessions.Delete(ctx, contactID); derr != nil {
			return nil, fmt.Errorf("clear session: %w", derr)
		}
		return []message.Message{mainMenu(fallbackText)}, nil
	}

	if sess.Flow == model.FlowNone {
		err = c.Sessions.Delete(ctx, contactID)
	} else {
		err = c.Sessions.Put(ctx, sess)
	}
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return []message.Message{msg}, nil
}

func (c *Controller) dispatch(t *turn) (message.Message, error) {
	if t.ev.Kind == EventDocument {
		return c.onDocument(t)
	}
	if t.ev.Kind != EventLocation {
		if cmd, ok := c.command(t.input); ok {
			return cmd(t)
		}
	}
	if h, ok := c.steps[stepKey{t.sess.Flow, t.sess.Step}]; ok {
		return h(t)
	}
	return c.unknownStep(t)
}

// unknownStep is the default handler.  A session with no flow gets the
// greeting; any other unmatched (flow, step) is treated as corrupt.
func (c *Controller) unknownStep(t *turn) (message.Message, error) {
	if t.sess.Flow != model.FlowNone {
		return message.Message{}, fmt.Errorf("%w: %s/%s", errCorruptSession, t.sess.Flow, t.sess.Step)
	}
	return c.greet(t)
}

// reset ends the current flow.  The session is deleted after the turn.
func reset(s *model.Session) {
	s.Flow = model.FlowNone
	s.Step = model.StepNone
	s.Booking = nil
	s.Cancellation = nil
	s.Support = nil
}

func (c *Controller) customer(t *turn) (*model.Customer, error) {
	return c.Store.EnsureCustomer(t.ctx, t.contactID, t.ev.Name)
}

func (c *Controller) onDocument(t *turn) (message.Message, error) {
	if t.ev.DocumentRef == "" {
		return message.Text("I couldn't read that file. Please send your driver's licence as a photo or PDF."), nil
	}
	cust, err := c.customer(t)
	if err != nil {
		return message.Message{}, err
	}
	if err := c.Store.AttachDocument(t.ctx, cust.ID, t.ev.DocumentRef); err != nil {
		return message.Message{}, err
	}
	return message.Text("Thanks, we received your document. It is now under review."), nil
}
