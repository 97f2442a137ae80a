// Package pricing computes dynamic per-day rates and reservation totals.
// Apart from the demand count the engine is pure: given the same inputs,
// clock and demand it returns the same numbers.
package pricing

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

const day = 24 * time.Hour

// DemandCounter counts reservations (confirmed, active or completed) whose
// pickup falls on the same calendar date as day.
type DemandCounter interface {
	CountPickupsOn(ctx context.Context, day time.Time) (int, error)
}

// Engine applies the pricing policy.
type Engine struct {
	cfg    Config
	demand DemandCounter
	now    func() time.Time
	log    *zap.Logger
}

// NewEngine builds an engine.  demand may be nil, in which case the demand
// term is always zero.
func NewEngine(cfg Config, demand DemandCounter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, demand: demand, now: time.Now, log: log}
}

// WithClock replaces the clock used for the early-booking term.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// TaxRate exposes the configured tax rate.
func (e *Engine) TaxRate() float64 { return e.cfg.TaxRate }

// RentalDays returns the number of charged days: whole 24h periods,
// rounded up, at least one.
func RentalDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 1
	}
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// Multiplier returns the situational multiplier for an interval, already
// clamped to [MinMultiplier, MaxMultiplier].
func (e *Engine) Multiplier(ctx context.Context, start, end time.Time) float64 {
	m := 1.0
	if isWeekend(start) || isWeekend(end) {
		m += e.cfg.WeekendSurcharge
	}
	if e.isHoliday(start) || e.isHoliday(end) {
		m += e.cfg.HolidaySurcharge
	}
	m += e.demandSurcharge(ctx, start)

	switch days := RentalDays(start, end); {
	case days >= 7:
		m -= 0.10
	case days >= 3:
		m -= 0.05
	}

	switch lead := start.Sub(e.now()); {
	case lead >= 14*day:
		m -= 0.08
	case lead >= 7*day:
		m -= 0.05
	}

	return e.clamp(m)
}

// PriceFor returns the per-day rate for the vehicle over the interval:
// round(DailyRate * multiplier), never negative.
func (e *Engine) PriceFor(ctx context.Context, v model.Vehicle, start, end time.Time) int64 {
	return rate(v.DailyRate, e.Multiplier(ctx, start, end))
}

// BaseAmount charges the weekly rate per full 7 days when the vehicle has
// one, and the computed per-day rate for the remaining days.  The monthly
// rate is informational only.
func BaseAmount(v model.Vehicle, perDay int64, days int) int64 {
	var total int64
	if v.WeeklyRate > 0 && days >= 7 {
		total += int64(days/7) * v.WeeklyRate
		days %= 7
	}
	return total + int64(days)*perDay
}

// ExtraItem is a catalog add-on with the requested quantity.
type ExtraItem struct {
	Extra    model.Extra
	Quantity int
}

// Line is a priced add-on.
type Line struct {
	ExtraID   uint64
	Name      string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Breakdown is the full price of a rental.
type Breakdown struct {
	Days            int
	Multiplier      float64
	PerDayRate      int64
	BaseAmount      int64
	ExtrasAmount    int64 // add-on lines only
	InsuranceAmount int64
	TaxAmount       int64
	Lines           []Line
}

// Subtotal is base + add-ons + insurance, the amount tax and promo
// minimums are measured against.
func (b Breakdown) Subtotal() int64 {
	return b.BaseAmount + b.ExtrasAmount + b.InsuranceAmount
}

// Total is the pre-discount total including tax.
func (b Breakdown) Total() int64 {
	return b.Subtotal() + b.TaxAmount
}

// TotalFor prices a rental of days at perDay with the given add-ons and
// insurance tier.
func (e *Engine) TotalFor(v model.Vehicle, perDay int64, days int, extras []ExtraItem, tier model.InsuranceTier) Breakdown {
	b := Breakdown{
		Days:       days,
		PerDayRate: perDay,
		BaseAmount: BaseAmount(v, perDay, days),
	}
	for _, it := range extras {
		if it.Quantity <= 0 {
			continue
		}
		var lineTotal int64
		switch it.Extra.PricingType {
		case model.PricePerDay:
			lineTotal = it.Extra.Price * int64(days) * int64(it.Quantity)
		default:
			lineTotal = it.Extra.Price * int64(it.Quantity)
		}
		b.Lines = append(b.Lines, Line{
			ExtraID:   it.Extra.ID,
			Name:      it.Extra.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.Extra.Price,
			Total:     lineTotal,
		})
		b.ExtrasAmount += lineTotal
	}
	b.InsuranceAmount = int64(math.Round(float64(perDay) * float64(days) * e.cfg.InsuranceRates[tier]))
	b.TaxAmount = int64(math.Round(float64(b.Subtotal()) * e.cfg.TaxRate))
	return b
}

// Quote prices a rental end to end: multiplier, per-day rate and totals.
func (e *Engine) Quote(ctx context.Context, v model.Vehicle, start, end time.Time, extras []ExtraItem, tier model.InsuranceTier) Breakdown {
	m := e.Multiplier(ctx, start, end)
	b := e.TotalFor(v, rate(v.DailyRate, m), RentalDays(start, end), extras, tier)
	b.Multiplier = m
	return b
}

func (e *Engine) demandSurcharge(ctx context.Context, start time.Time) float64 {
	if e.demand == nil {
		return 0
	}
	n, err := e.demand.CountPickupsOn(ctx, start)
	if err != nil {
		e.log.Warn("demand lookup failed, pricing without demand term",
			zap.Time("pickup", start), zap.Error(err))
		return 0
	}
	switch {
	case n >= 10:
		return 0.30
	case n >= 7:
		return 0.20
	case n >= 5:
		return 0.15
	case n >= 3:
		return 0.10
	}
	return 0
}

func (e *Engine) isHoliday(t time.Time) bool {
	for _, h := range e.cfg.Holidays {
		if h.Contains(t) {
			return true
		}
	}
	return false
}

func (e *Engine) clamp(m float64) float64 {
	lo, hi := e.cfg.MinMultiplier, e.cfg.MaxMultiplier
	if lo == 0 && hi == 0 {
		lo, hi = 0.8, 2.0
	}
	return math.Min(hi, math.Max(lo, m))
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func rate(base int64, m float64) int64 {
	r := int64(math.Round(float64(base) * m))
	if r < 0 {
		return 0
	}
	return r
}
