package pricing

import (
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// HolidayWindow is an inclusive range of calendar dates with surcharge.
type HolidayWindow struct {
	Name string
	From time.Time
	To   time.Time
}

// Contains reports whether t's calendar date lies inside the window.
func (w HolidayWindow) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(dateOf(w.From)) && !d.After(dateOf(w.To))
}

// Config is the pricing policy.
type Config struct {
	WeekendSurcharge float64
	HolidaySurcharge float64
	TaxRate          float64
	MinMultiplier    float64
	MaxMultiplier    float64
	InsuranceRates   map[model.InsuranceTier]float64
	Holidays         []HolidayWindow
}

// DefaultConfig returns the reference policy: +15% weekend, +25% holiday,
// 16% tax, multiplier clamped to [0.8, 2.0].
func DefaultConfig() Config {
	return Config{
		WeekendSurcharge: 0.15,
		HolidaySurcharge: 0.25,
		TaxRate:          0.16,
		MinMultiplier:    0.8,
		MaxMultiplier:    2.0,
		InsuranceRates: map[model.InsuranceTier]float64{
			model.InsuranceBasic:   0,
			model.InsurancePremium: 0.20,
			model.InsuranceFull:    0.35,
		},
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
