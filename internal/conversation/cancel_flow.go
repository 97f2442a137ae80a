package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/lifecycle"
	"github.com/iliyamo/vehicle-rental-bot/internal/message"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
)

const (
	selCancelYes = "cancel_yes"
	selCancelNo  = "cancel_no"
)

// MinIssueLength is the shortest support description accepted.
const MinIssueLength = 10

func (c *Controller) startCancellation(t *turn) (message.Message, error) {
	reset(t.sess)
	cust, err := c.customer(t)
	if err != nil {
		return message.Message{}, err
	}
	list, err := c.Store.ListByCustomer(t.ctx, cust.ID, []model.ReservationStatus{
		model.ReservationPending, model.ReservationConfirmed,
	})
	if err != nil {
		return message.Message{}, err
	}
	if len(list) == 0 {
		return mainMenu("You have no bookings that can be cancelled."), nil
	}
	if len(list) > maxListRows {
		list = list[:maxListRows]
	}
	draft := &model.CancellationDraft{}
	for _, r := range list {
		draft.Options = append(draft.Options, r.ID)
	}
	t.sess.Flow = model.FlowCancellation
	t.sess.Step = model.StepSelectReservation
	t.sess.Cancellation = draft
	return c.reservationPrompt("Which booking do you want to cancel?", list), nil
}

func (c *Controller) reservationPrompt(text string, list []model.Reservation) message.Message {
	items := make([]message.Item, 0, len(list))
	for _, r := range list {
		items = append(items, message.Item{
			ID:          "res:" + strconv.FormatUint(r.ID, 10),
			Title:       r.Reference,
			Description: fmt.Sprintf("%s, %s", c.when(r.PickupAt), money(r.TotalAmount, c.Currency)),
		})
	}
	return message.List(text, items...)
}

func cancellationDraft(t *turn) (*model.CancellationDraft, error) {
	if t.sess.Cancellation == nil {
		return nil, fmt.Errorf("%w: cancellation draft missing at %s", errCorruptSession, t.sess.Step)
	}
	return t.sess.Cancellation, nil
}

func (c *Controller) onSelectReservation(t *turn) (message.Message, error) {
	d, err := cancellationDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	id, ok := idAfter(t.input, "res:")
	if !ok || !containsID(d.Options, id) {
		var list []model.Reservation
		for _, opt := range d.Options {
			r, err := c.Store.GetReservation(t.ctx, opt)
			if err != nil {
				return message.Message{}, err
			}
			list = append(list, *r)
		}
		return c.reservationPrompt("Please pick one of your bookings from the list.", list), nil
	}
	r, err := c.Store.GetReservation(t.ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	d.ReservationID = id
	t.sess.Step = model.StepConfirmCancellation
	return message.Buttons(
		fmt.Sprintf("Cancel %s (%s)? Estimated refund: %s.", r.Reference, c.when(r.PickupAt), money(c.refundEstimate(r), c.Currency)),
		message.Button{ID: selCancelYes, Title: "Yes, cancel it"},
		message.Button{ID: selCancelNo, Title: "No, keep it"},
	), nil
}

func (c *Controller) refundEstimate(r *model.Reservation) int64 {
	if r.Status == model.ReservationPending {
		return 0
	}
	return lifecycle.RefundAmount(r.TotalAmount, r.PickupAt.Sub(c.now()))
}

func (c *Controller) onConfirmCancellation(t *turn) (message.Message, error) {
	d, err := cancellationDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	switch t.input {
	case selCancelYes, "yes":
	case selCancelNo, "no":
		reset(t.sess)
		return mainMenu("OK, your booking is unchanged. Anything else?"), nil
	default:
		return message.Buttons("Please confirm the cancellation.",
			message.Button{ID: selCancelYes, Title: "Yes, cancel it"},
			message.Button{ID: selCancelNo, Title: "No, keep it"},
		), nil
	}

	reset(t.sess)
	r, err := c.Lifecycle.Cancel(t.ctx, d.ReservationID, "cancelled by customer")
	if errors.Is(err, lifecycle.ErrInvalidTransition) {
		return mainMenu("That booking can no longer be cancelled here. Please contact support."), nil
	}
	if err != nil {
		return message.Message{}, err
	}
	return message.Text(fmt.Sprintf("Booking %s is cancelled. Refund: %s.", r.Reference, money(r.RefundAmount, c.Currency))), nil
}

func (c *Controller) startSupport(t *turn) (message.Message, error) {
	reset(t.sess)
	t.sess.Flow = model.FlowSupport
	t.sess.Step = model.StepDescribeIssue
	t.sess.Support = &model.SupportDraft{}
	return message.Text("Please describe the problem and an agent will get back to you."), nil
}

func (c *Controller) onDescribeIssue(t *turn) (message.Message, error) {
	text := strings.TrimSpace(t.ev.Text)
	if len([]rune(text)) < MinIssueLength {
		return message.Text(fmt.Sprintf("Please give a bit more detail (at least %d characters).", MinIssueLength)), nil
	}
	cust, err := c.customer(t)
	if err != nil {
		return message.Message{}, err
	}
	err = c.Notifier.Notify(t.ctx, queue.Notification{
		Kind:       queue.NotifyEscalation,
		CustomerID: cust.ID,
		Text:       fmt.Sprintf("Support request from %s: %s", t.contactID, text),
		CreatedAt:  c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		c.Log.Warn("support escalation failed", zap.String("contact_id", t.contactID), zap.Error(err))
		return message.Text("I couldn't reach an agent just now. Please send your message again in a moment."), nil
	}
	reset(t.sess)
	return message.Text("Thanks. An agent has your message and will contact you here shortly."), nil
}
