package booking

import (
	"fmt"
	"math"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// validatePromo checks p against the booking it would discount.  subtotal
// is base + extras before tax.
func validatePromo(p *model.PromoCode, category string, subtotal int64, now time.Time) error {
	switch {
	case !p.IsActive:
		return fmt.Errorf("%w: code %s is not active", ErrInvalidPromoCode, p.Code)
	case now.Before(p.ValidFrom):
		return fmt.Errorf("%w: code %s is not valid yet", ErrInvalidPromoCode, p.Code)
	case !p.ValidTo.IsZero() && now.After(p.ValidTo):
		return fmt.Errorf("%w: code %s has expired", ErrInvalidPromoCode, p.Code)
	case !p.HasUsesLeft():
		return fmt.Errorf("%w: code %s has no uses left", ErrInvalidPromoCode, p.Code)
	case subtotal < p.MinimumAmount:
		return fmt.Errorf("%w: code %s needs a subtotal of at least %d", ErrInvalidPromoCode, p.Code, p.MinimumAmount)
	case !p.AppliesTo(category):
		return fmt.Errorf("%w: code %s does not apply to %s vehicles", ErrInvalidPromoCode, p.Code, category)
	}
	return nil
}

// discountFor returns the discount p grants on subtotal, never more than
// ceiling so the total cannot go negative.
func discountFor(p *model.PromoCode, subtotal, ceiling int64) int64 {
	var d int64
	switch p.DiscountType {
	case model.DiscountPercentage:
		d = int64(math.Round(float64(subtotal) * p.Value / 100))
		if p.MaximumDiscount > 0 && d > p.MaximumDiscount {
			d = p.MaximumDiscount
		}
	case model.DiscountFixed:
		d = int64(math.Round(p.Value))
	}
	if d < 0 {
		d = 0
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}
