package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/availability"
	"github.com/iliyamo/vehicle-rental-bot/internal/booking"
	"github.com/iliyamo/vehicle-rental-bot/internal/message"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

const (
	// MinAddressLength is the shortest free-text delivery address accepted.
	MinAddressLength = 10
	// pickups may be booked at most this far ahead
	maxLeadMonths = 6
	// list messages render at most this many rows
	maxListRows = 10
	// search results kept in the session
	maxResults = 30
)

const (
	selConfirm = "confirm"
	selReject  = "reject"
	selExtras  = "extras"
	selBack    = "back"
)

const datePrompt = "Please use DD/MM/YYYY HH:MM, for example 15/08/2026 10:00."

func (c *Controller) when(t time.Time) string {
	return t.In(c.Location).Format("Mon 02 Jan 2006 15:04")
}

func bookingDraft(t *turn) (*model.BookingDraft, error) {
	if t.sess.Booking == nil {
		return nil, fmt.Errorf("%w: booking draft missing at %s", errCorruptSession, t.sess.Step)
	}
	return t.sess.Booking, nil
}

func (c *Controller) startBooking(t *turn) (message.Message, error) {
	reset(t.sess)
	locs, err := c.Store.ListActiveLocations(t.ctx)
	if err != nil {
		return message.Message{}, err
	}
	if len(locs) == 0 {
		return message.Message{}, errors.New("no active pickup locations")
	}
	if len(locs) > maxListRows {
		locs = locs[:maxListRows]
	}
	d := &model.BookingDraft{Insurance: model.InsuranceBasic}
	for _, l := range locs {
		d.LocationOptions = append(d.LocationOptions, l.ID)
	}
	t.sess.Flow = model.FlowBooking
	t.sess.Step = model.StepLocationSelection
	t.sess.Booking = d
	return locationPrompt("Where would you like to pick up the vehicle? Choose a branch or type a delivery address.", locs), nil
}

func locationPrompt(text string, locs []model.Location) message.Message {
	items := make([]message.Item, 0, len(locs))
	for _, l := range locs {
		items = append(items, message.Item{
			ID:          "loc:" + strconv.FormatUint(l.ID, 10),
			Title:       l.Name,
			Description: strings.TrimSpace(l.Address + ", " + l.City),
		})
	}
	return message.List(text, items...)
}

func (c *Controller) onLocation(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}

	if t.ev.Kind == EventLocation {
		addr := strings.TrimSpace(t.ev.Address)
		if addr == "" && (t.ev.Latitude != 0 || t.ev.Longitude != 0) {
			addr = fmt.Sprintf("%.5f,%.5f", t.ev.Latitude, t.ev.Longitude)
		}
		return c.acceptAddress(t, d, addr)
	}

	if strings.HasPrefix(t.input, "loc:") {
		id, ok := idAfter(t.input, "loc:")
		if ok && containsID(d.LocationOptions, id) {
			d.PickupLocationID = id
			d.DeliveryAddress = ""
			t.sess.Step = model.StepDateSelection
			return message.Text("When do you want to pick it up? " + datePrompt), nil
		}
		return c.repromptLocation(t, "That branch isn't on the list.")
	}
	return c.acceptAddress(t, d, strings.TrimSpace(t.ev.Text))
}

func (c *Controller) acceptAddress(t *turn, d *model.BookingDraft, addr string) (message.Message, error) {
	if len([]rune(addr)) < MinAddressLength {
		return c.repromptLocation(t, fmt.Sprintf("Please choose a branch or type a full delivery address (at least %d characters).", MinAddressLength))
	}
	d.PickupLocationID = 0
	d.DeliveryAddress = addr
	t.sess.Step = model.StepDateSelection
	return message.Text("We'll deliver to " + addr + ". When do you want it? " + datePrompt), nil
}

func (c *Controller) repromptLocation(t *turn, problem string) (message.Message, error) {
	locs, err := c.Store.ListActiveLocations(t.ctx)
	if err != nil {
		return message.Message{}, err
	}
	if len(locs) > maxListRows {
		locs = locs[:maxListRows]
	}
	return locationPrompt(problem, locs), nil
}

func (c *Controller) onPickupDate(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	at, err := parseDateTime(t.ev.Text, c.Location)
	if err != nil {
		return message.Text("I couldn't read that date. " + datePrompt), nil
	}
	now := c.now()
	if !at.After(now) {
		return message.Text("The pickup time must be in the future. " + datePrompt), nil
	}
	if at.After(now.AddDate(0, maxLeadMonths, 0)) {
		return message.Text(fmt.Sprintf("We take bookings up to %d months ahead. Please choose an earlier date.", maxLeadMonths)), nil
	}
	d.PickupAt = at
	t.sess.Step = model.StepReturnDateSelection
	return message.Text("Pickup on " + c.when(at) + ". When will you return it? " + datePrompt), nil
}

func (c *Controller) onReturnDate(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	at, err := parseDateTime(t.ev.Text, c.Location)
	if err != nil {
		return message.Text("I couldn't read that date. " + datePrompt), nil
	}
	if err := booking.ValidateInterval(d.PickupAt, at, c.now()); err != nil {
		return message.Text(intervalProblem(d.PickupAt, at) + " " + datePrompt), nil
	}
	d.ReturnAt = at
	t.sess.Step = model.StepVehicleSearch
	return c.search(t)
}

func intervalProblem(pickup, ret time.Time) string {
	switch dur := ret.Sub(pickup); {
	case dur <= 0:
		return "The return must be after the pickup."
	case dur < booking.MinDuration:
		return "The minimum rental is 1 hour."
	case dur > booking.MaxDuration:
		return "The maximum rental is 30 days."
	}
	return "The pickup time has already passed."
}

// search runs the availability query and stores the result set in the
// draft.  An empty result ends the flow.
func (c *Controller) search(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	found, err := c.Finder.FindAvailable(t.ctx, availability.Criteria{
		VehicleSearchQuery: repository.VehicleSearchQuery{LocationID: d.PickupLocationID},
		Start:              d.PickupAt,
		End:                d.ReturnAt,
	})
	if err != nil {
		return message.Message{}, err
	}
	if len(found) == 0 {
		reset(t.sess)
		return message.Buttons("Sorry, no vehicles are available for those dates.",
			message.Button{ID: menuBook, Title: "Search again"},
			message.Button{ID: menuMain, Title: "Main menu"},
		), nil
	}
	if len(found) > maxResults {
		found = found[:maxResults]
	}
	d.Results = d.Results[:0]
	for _, cand := range found {
		d.Results = append(d.Results, model.VehicleOption{
			VehicleID:  cand.Vehicle.ID,
			Name:       cand.Vehicle.DisplayName(),
			Category:   cand.Vehicle.Category,
			Seats:      cand.Vehicle.Seats,
			PerDayRate: cand.PerDayRate,
			Rating:     cand.Vehicle.Rating,
		})
	}
	d.Category = ""
	d.VehicleID = 0
	t.sess.Step = model.StepCategorySelection
	return c.categoryPrompt(d, fmt.Sprintf("Found %d vehicles from %s to %s. Which category?",
		len(d.Results), c.when(d.PickupAt), c.when(d.ReturnAt))), nil
}

func (c *Controller) categoryPrompt(d *model.BookingDraft, text string) message.Message {
	var items []message.Item
	for _, cat := range d.Categories() {
		opts := d.InCategory(cat)
		from := opts[0].PerDayRate
		for _, o := range opts[1:] {
			if o.PerDayRate < from {
				from = o.PerDayRate
			}
		}
		items = append(items, message.Item{
			ID:          "cat:" + cat,
			Title:       titleCase(cat),
			Description: fmt.Sprintf("%d available, from %s/day", len(opts), money(from, c.Currency)),
		})
	}
	if len(items) > maxListRows {
		items = items[:maxListRows]
	}
	return message.List(text, items...)
}

func (c *Controller) onCategory(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	want := strings.TrimPrefix(t.input, "cat:")
	for _, cat := range d.Categories() {
		if strings.EqualFold(cat, want) {
			d.Category = cat
			t.sess.Step = model.StepVehicleSelection
			return c.vehiclePrompt(d, "Pick a vehicle:"), nil
		}
	}
	return c.categoryPrompt(d, "Please choose one of the listed categories."), nil
}

func (c *Controller) vehiclePrompt(d *model.BookingDraft, text string) message.Message {
	var items []message.Item
	for _, o := range d.InCategory(d.Category) {
		items = append(items, message.Item{
			ID:          "veh:" + strconv.FormatUint(o.VehicleID, 10),
			Title:       o.Name,
			Description: fmt.Sprintf("%s/day, %d seats, rated %.1f", money(o.PerDayRate, c.Currency), o.Seats, o.Rating),
		})
	}
	if len(items) >= maxListRows {
		items = items[:maxListRows-1]
	}
	items = append(items, message.Item{ID: selBack, Title: "Other categories"})
	return message.List(text, items...)
}

func (c *Controller) onVehicle(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	if t.input == selBack {
		d.Category = ""
		t.sess.Step = model.StepCategorySelection
		return c.categoryPrompt(d, "Which category?"), nil
	}
	id, ok := idAfter(t.input, "veh:")
	if !ok {
		return c.vehiclePrompt(d, "Please pick a vehicle from the list."), nil
	}
	if _, found := d.Option(id); !found {
		return c.vehiclePrompt(d, "That vehicle isn't in your search results. Please pick one from the list."), nil
	}
	d.VehicleID = id
	t.sess.Step = model.StepVehicleConfirmation
	return c.summary(t, d, "")
}

func (c *Controller) request(custID uint64, d *model.BookingDraft) booking.Request {
	return booking.Request{
		CustomerID:       custID,
		VehicleID:        d.VehicleID,
		PickupLocationID: d.PickupLocationID,
		ReturnLocationID: d.PickupLocationID,
		PickupAt:         d.PickupAt,
		ReturnAt:         d.ReturnAt,
		Extras:           d.Extras,
		Insurance:        d.Insurance,
		PromoCode:        d.PromoCode,
		DeliveryAddress:  d.DeliveryAddress,
	}
}

// summary renders the current quote with the confirmation buttons.
func (c *Controller) summary(t *turn, d *model.BookingDraft, note string) (message.Message, error) {
	q, err := c.Booker.Quote(t.ctx, c.request(0, d))
	if errors.Is(err, booking.ErrInvalidInterval) {
		return c.restartDates(t, d)
	}
	if err != nil {
		return message.Message{}, err
	}

	var b strings.Builder
	if note != "" {
		b.WriteString(note + "\n\n")
	}
	fmt.Fprintf(&b, "%s\n%s to %s (%d days)\n", q.Vehicle.DisplayName(), c.when(d.PickupAt), c.when(d.ReturnAt), q.Breakdown.Days)
	if d.DeliveryAddress != "" {
		fmt.Fprintf(&b, "Delivery to: %s\n", d.DeliveryAddress)
	}
	fmt.Fprintf(&b, "Rental: %s (%s/day)\n", money(q.Breakdown.BaseAmount, c.Currency), money(q.Breakdown.PerDayRate, c.Currency))
	for _, l := range q.Breakdown.Lines {
		fmt.Fprintf(&b, "%s x%d: %s\n", l.Name, l.Quantity, money(l.Total, c.Currency))
	}
	fmt.Fprintf(&b, "Insurance (%s): %s\n", d.Insurance, money(q.Breakdown.InsuranceAmount, c.Currency))
	fmt.Fprintf(&b, "Tax: %s\n", money(q.Breakdown.TaxAmount, c.Currency))
	if q.Discount > 0 {
		fmt.Fprintf(&b, "Promo %s: -%s\n", strings.ToUpper(d.PromoCode), money(q.Discount, c.Currency))
	} else if q.PromoErr != nil {
		fmt.Fprintf(&b, "Promo %s not applied.\n", strings.ToUpper(d.PromoCode))
	}
	fmt.Fprintf(&b, "Total: %s\nRefundable deposit: %s", money(q.Total, c.Currency), money(q.Deposit, c.Currency))

	return message.Buttons(b.String(),
		message.Button{ID: selConfirm, Title: "Confirm"},
		message.Button{ID: selExtras, Title: "Extras & insurance"},
		message.Button{ID: selReject, Title: "Choose another"},
	), nil
}

func (c *Controller) restartDates(t *turn, d *model.BookingDraft) (message.Message, error) {
	d.PickupAt, d.ReturnAt = time.Time{}, time.Time{}
	d.Results, d.Category, d.VehicleID = nil, "", 0
	t.sess.Step = model.StepDateSelection
	return message.Text("Those dates are no longer valid. When do you want to pick up the vehicle? " + datePrompt), nil
}

func (c *Controller) onConfirmation(t *turn) (message.Message, error) {
	d, err := bookingDraft(t)
	if err != nil {
		return message.Message{}, err
	}
	switch {
	case t.input == selConfirm || t.input == "yes":
		return c.commit(t, d)
	case t.input == selReject || t.input == "no" || t.input == selBack:
		d.VehicleID = 0
		t.sess.Step = model.StepVehicleSelection
		return c.vehiclePrompt(d, "Pick a vehicle:"), nil
	case t.input == selExtras:
		return c.extrasPrompt(t, d)
	case strings.HasPrefix(t.input, "extra:"):
		return c.toggleExtra(t, d)
	case strings.HasPrefix(t.input, "insurance:"):
		tier := model.InsuranceTier(strings.TrimPrefix(t.input, "insurance:"))
		switch tier {
		case model.InsuranceBasic, model.InsurancePremium, model.InsuranceFull:
			d.Insurance = tier
			return c.summary(t, d, fmt.Sprintf("Insurance set to %s.", tier))
		}
		return c.summary(t, d, "Unknown insurance option.")
	case strings.HasPrefix(t.input, "promo "):
		d.PromoCode = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(t.input, "promo ")))
		return c.summary(t, d, "")
	}
	return c.summary(t, d, "Please confirm, add extras, or choose another vehicle. To use a promo code, type \"promo CODE\".")
}

func (c *Controller) extrasPrompt(t *turn, d *model.BookingDraft) (message.Message, error) {
	extras, err := c.Store.ListActiveExtras(t.ctx)
	if err != nil {
		return message.Message{}, err
	}
	var items []message.Item
	for _, e := range extras {
		if len(items) == maxListRows-3 {
			break
		}
		title := e.Name
		if hasExtra(d, e.ID) {
			title = "✓ " + title
		}
		unit := "per booking"
		if e.PricingType == model.PricePerDay {
			unit = "per day"
		}
		items = append(items, message.Item{
			ID:          "extra:" + strconv.FormatUint(e.ID, 10),
			Title:       title,
			Description: fmt.Sprintf("%s %s", money(e.Price, c.Currency), unit),
		})
	}
	items = append(items,
		message.Item{ID: "insurance:" + string(model.InsuranceBasic), Title: "Basic insurance", Description: "Included"},
		message.Item{ID: "insurance:" + string(model.InsurancePremium), Title: "Premium insurance"},
		message.Item{ID: "insurance:" + string(model.InsuranceFull), Title: "Full coverage"},
	)
	return message.List("Tap an extra to add or remove it, or choose an insurance level.", items...), nil
}

func (c *Controller) toggleExtra(t *turn, d *model.BookingDraft) (message.Message, error) {
	id, ok := idAfter(t.input, "extra:")
	if !ok {
		return c.summary(t, d, "Unknown extra.")
	}
	if hasExtra(d, id) {
		kept := d.Extras[:0]
		for _, sel := range d.Extras {
			if sel.ExtraID != id {
				kept = append(kept, sel)
			}
		}
		d.Extras = kept
		return c.summary(t, d, "Extra removed.")
	}
	extras, err := c.Store.ListActiveExtras(t.ctx)
	if err != nil {
		return message.Message{}, err
	}
	for _, e := range extras {
		if e.ID == id {
			d.Extras = append(d.Extras, model.ExtraSelection{ExtraID: id, Quantity: 1})
			return c.summary(t, d, e.Name+" added.")
		}
	}
	return c.summary(t, d, "Unknown extra.")
}

func hasExtra(d *model.BookingDraft, id uint64) bool {
	for _, sel := range d.Extras {
		if sel.ExtraID == id {
			return true
		}
	}
	return false
}

// commit creates the reservation and starts its payment, or confirms it
// straight away when the total is zero.  The flow ends on success; a lost
// race returns the customer to the vehicle list.
func (c *Controller) commit(t *turn, d *model.BookingDraft) (message.Message, error) {
	cust, err := c.customer(t)
	if err != nil {
		return message.Message{}, err
	}
	res, err := c.Booker.CreateReservation(t.ctx, c.request(cust.ID, d))
	switch {
	case errors.Is(err, booking.ErrResourceUnavailable):
		return c.vehicleTaken(t, d)
	case errors.Is(err, booking.ErrInvalidInterval):
		return c.restartDates(t, d)
	case errors.Is(err, booking.ErrUnknownExtra):
		d.Extras = nil
		return c.summary(t, d, "One of the extras is no longer offered, so I removed your extras.")
	case err != nil:
		return message.Message{}, err
	}
	r := res.Reservation
	reset(t.sess)

	var b strings.Builder
	fmt.Fprintf(&b, "Reservation %s created for %s to %s.\nTotal: %s", r.Reference, c.when(r.PickupAt), c.when(r.ReturnAt), money(r.TotalAmount, c.Currency))
	if r.DiscountAmount > 0 {
		fmt.Fprintf(&b, " (you saved %s)", money(r.DiscountAmount, c.Currency))
	}
	if res.PromoErr != nil {
		b.WriteString("\nYour promo code could not be applied, so the booking was made at the regular price.")
	}
	if r.TotalAmount == 0 {
		if _, err := c.Lifecycle.RecordPayment(t.ctx, r.ID); err != nil {
			c.Log.Warn("confirm free reservation failed", zap.String("reference", r.Reference), zap.Error(err))
			b.WriteString("\nWe couldn't confirm it right now. Your reservation is held as pending; reply \"my bookings\" to check it.")
			return message.Text(b.String()), nil
		}
		b.WriteString("\nNothing to pay, your booking is confirmed.")
		return message.Text(b.String()), nil
	}
	p, err := c.Payments.StartPayment(t.ctx, r, t.contactID, "")
	if err != nil {
		c.Log.Warn("start payment failed", zap.String("reference", r.Reference), zap.Error(err))
		b.WriteString("\nWe couldn't start the payment right now. Your reservation is held as pending; reply \"my bookings\" to check it.")
		return message.Text(b.String()), nil
	}
	fmt.Fprintf(&b, "\nPayment reference: %s. Your booking is confirmed as soon as the payment goes through.", p.IntentID)
	return message.Text(b.String()), nil
}

func (c *Controller) vehicleTaken(t *turn, d *model.BookingDraft) (message.Message, error) {
	kept := d.Results[:0]
	for _, o := range d.Results {
		if o.VehicleID != d.VehicleID {
			kept = append(kept, o)
		}
	}
	d.Results = kept
	d.VehicleID = 0
	const sorry = "Sorry, that vehicle was just booked by someone else."
	if len(d.Results) == 0 {
		reset(t.sess)
		return message.Buttons(sorry+" There are no other vehicles left for those dates.",
			message.Button{ID: menuBook, Title: "Search again"},
			message.Button{ID: menuMain, Title: "Main menu"},
		), nil
	}
	if len(d.InCategory(d.Category)) == 0 {
		d.Category = ""
		t.sess.Step = model.StepCategorySelection
		return c.categoryPrompt(d, sorry+" Here are the other categories:"), nil
	}
	t.sess.Step = model.StepVehicleSelection
	return c.vehiclePrompt(d, sorry+" Here are the other options:"), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsID(ids []uint64, id uint64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
