// Package availability answers whether a vehicle is free for an interval
// and lists free vehicles matching search criteria.  Results here are
// advisory; the booking transaction repeats the overlap check under a row
// lock before inserting.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

// BlockingStatuses are the reservation states that make a vehicle
// unavailable for an overlapping interval.
var BlockingStatuses = []model.ReservationStatus{
	model.ReservationConfirmed,
	model.ReservationActive,
}

// Overlaps is the half-open interval test for [aStart, aEnd) and
// [bStart, bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Store is the persistence surface the checker reads.
type Store interface {
	HasOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error)
	SearchVehicles(ctx context.Context, q repository.VehicleSearchQuery) ([]model.Vehicle, error)
}

// Pricer returns the effective per-day rate used for ordering and price
// filters.
type Pricer interface {
	PriceFor(ctx context.Context, v model.Vehicle, start, end time.Time) int64
}

// Criteria narrows FindAvailable.  Zero values mean "any".
type Criteria struct {
	repository.VehicleSearchQuery
	Start    time.Time
	End      time.Time
	MinPrice int64
	MaxPrice int64
}

// Candidate is an available vehicle with its effective per-day rate.
type Candidate struct {
	Vehicle    model.Vehicle
	PerDayRate int64
}

// Checker implements the availability queries.
type Checker struct {
	store  Store
	pricer Pricer
}

// NewChecker returns a checker.  pricer may be nil, in which case the
// vehicle's base daily rate is the effective price.
func NewChecker(store Store, pricer Pricer) *Checker {
	return &Checker{store: store, pricer: pricer}
}

// IsAvailable reports whether no confirmed or active reservation on the
// vehicle overlaps [start, end).
func (c *Checker) IsAvailable(ctx context.Context, vehicleID uint64, start, end time.Time) (bool, error) {
	if !start.Before(end) {
		return false, fmt.Errorf("availability: empty interval %s..%s", start, end)
	}
	busy, err := c.store.HasOverlap(ctx, vehicleID, start, end, BlockingStatuses)
	if err != nil {
		return false, err
	}
	return !busy, nil
}

// FindAvailable returns vehicles matching the attribute filters that are
// free for the criteria interval, cheapest first, then best rated.
func (c *Checker) FindAvailable(ctx context.Context, crit Criteria) ([]Candidate, error) {
	vehicles, err := c.store.SearchVehicles(ctx, crit.VehicleSearchQuery)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(vehicles))
	for _, v := range vehicles {
		if v.Status == model.VehicleMaintenance || v.Status == model.VehicleOutOfService {
			continue
		}
		if !hasAllFeatures(v, crit.Features) {
			continue
		}
		ok, err := c.IsAvailable(ctx, v.ID, crit.Start, crit.End)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		price := v.DailyRate
		if c.pricer != nil {
			price = c.pricer.PriceFor(ctx, v, crit.Start, crit.End)
		}
		if crit.MinPrice > 0 && price < crit.MinPrice {
			continue
		}
		if crit.MaxPrice > 0 && price > crit.MaxPrice {
			continue
		}
		out = append(out, Candidate{Vehicle: v, PerDayRate: price})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PerDayRate != out[j].PerDayRate {
			return out[i].PerDayRate < out[j].PerDayRate
		}
		return out[i].Vehicle.Rating > out[j].Vehicle.Rating
	})
	return out, nil
}

func hasAllFeatures(v model.Vehicle, want []string) bool {
	for _, f := range want {
		if !v.HasFeature(f) {
			return false
		}
	}
	return true
}
