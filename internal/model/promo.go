package model

import (
	"strings"
	"time"
)

// DiscountType is either a percentage or a fixed amount.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a redeemable discount descriptor.
//
// Fields:
//  Value                – percentage points or fixed amount.
//  MinimumAmount        – subtotal required to qualify (0 = none).
//  MaximumDiscount      – cap for percentage discounts (0 = uncapped).
//  UsageLimit           – total redemptions allowed (nil = unlimited).
//  UsedCount            – redemptions so far.
//  ValidFrom, ValidTo   – validity window (inclusive).
//  ApplicableCategories – vehicle categories; empty means all.
type PromoCode struct {
	ID                   uint64       // promo_codes.id
	Code                 string       // promo_codes.code
	DiscountType         DiscountType // promo_codes.discount_type
	Value                float64      // promo_codes.value
	MinimumAmount        int64        // promo_codes.minimum_amount
	MaximumDiscount      int64        // promo_codes.maximum_discount
	UsageLimit           *int         // promo_codes.usage_limit (nullable)
	UsedCount            int          // promo_codes.used_count
	ValidFrom            time.Time    // promo_codes.valid_from
	ValidTo              time.Time    // promo_codes.valid_to
	ApplicableCategories []string     // promo_codes.applicable_categories (comma separated)
	IsActive             bool         // promo_codes.is_active
}

// AppliesTo reports whether the code covers the category.
func (p PromoCode) AppliesTo(category string) bool {
	if len(p.ApplicableCategories) == 0 {
		return true
	}
	for _, c := range p.ApplicableCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// HasUsesLeft reports whether another redemption is allowed.
func (p PromoCode) HasUsesLeft() bool {
	return p.UsageLimit == nil || p.UsedCount < *p.UsageLimit
}
