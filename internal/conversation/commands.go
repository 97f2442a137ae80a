package conversation

import (
	"fmt"
	"strings"

	"github.com/iliyamo/vehicle-rental-bot/internal/message"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// Menu selection ids.
const (
	menuMain     = "menu:main"
	menuBook     = "menu:book"
	menuBookings = "menu:bookings"
	menuCancel   = "menu:cancel"
	menuSupport  = "menu:support"
)

const helpText = "You can book a vehicle, check your bookings, cancel a booking or talk to support. " +
	"Reply \"menu\" at any time to see the options, or \"cancel\" to stop what you are doing."

// command resolves global commands.  They apply at any step.
func (c *Controller) command(input string) (stepHandler, bool) {
	switch input {
	case "hi", "hello", "hey", "hola", "menu", "start", menuMain:
		return c.greet, true
	case "book", "rent", "reserve", "new booking", menuBook:
		return c.startBooking, true
	case "my bookings", "my reservations", "bookings", menuBookings:
		return c.myBookings, true
	case "cancel booking", "cancel reservation", menuCancel:
		return c.startCancellation, true
	case "support", "agent", "human", menuSupport:
		return c.startSupport, true
	case "help", "?":
		return c.help, true
	case "cancel", "stop", "exit", "quit":
		return c.abort, true
	}
	return nil, false
}

func mainMenu(text string) message.Message {
	return message.List(text,
		message.Item{ID: menuBook, Title: "Book a vehicle"},
		message.Item{ID: menuBookings, Title: "My bookings"},
		message.Item{ID: menuCancel, Title: "Cancel a booking"},
		message.Item{ID: menuSupport, Title: "Talk to support"},
	)
}

func (c *Controller) greet(t *turn) (message.Message, error) {
	reset(t.sess)
	name := strings.TrimSpace(t.ev.Name)
	if name != "" {
		return mainMenu(fmt.Sprintf("Hi %s! What would you like to do?", name)), nil
	}
	return mainMenu("Hi! What would you like to do?"), nil
}

func (c *Controller) help(t *turn) (message.Message, error) {
	if t.sess.Flow == model.FlowNone {
		return mainMenu(helpText), nil
	}
	return message.Text(helpText), nil
}

func (c *Controller) abort(t *turn) (message.Message, error) {
	if t.sess.Flow == model.FlowNone {
		return mainMenu("Nothing to cancel. What would you like to do?"), nil
	}
	reset(t.sess)
	return mainMenu("OK, I stopped that. What would you like to do?"), nil
}

func (c *Controller) myBookings(t *turn) (message.Message, error) {
	reset(t.sess)
	cust, err := c.customer(t)
	if err != nil {
		return message.Message{}, err
	}
	list, err := c.Store.ListByCustomer(t.ctx, cust.ID, []model.ReservationStatus{
		model.ReservationPending, model.ReservationConfirmed, model.ReservationActive,
	})
	if err != nil {
		return message.Message{}, err
	}
	if len(list) == 0 {
		return mainMenu("You have no upcoming bookings."), nil
	}
	var b strings.Builder
	b.WriteString("Your bookings:")
	for _, r := range list {
		fmt.Fprintf(&b, "\n• %s, %s to %s, %s (%s)",
			r.Reference, c.when(r.PickupAt), c.when(r.ReturnAt), money(r.TotalAmount, c.Currency), r.Status)
	}
	return message.Text(b.String()), nil
}
