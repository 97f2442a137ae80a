package booking

import "errors"

var (
	// ErrResourceUnavailable means the vehicle was taken, or is out of
	// service, by the time the booking transaction ran.  Callers offer
	// alternatives instead of a generic failure.
	ErrResourceUnavailable = errors.New("vehicle not available for the requested interval")
	// ErrInvalidPromoCode marks a promo code that failed validation.  It
	// is reported on Result.PromoErr; the booking itself proceeds.
	ErrInvalidPromoCode = errors.New("invalid promo code")
	// ErrInvalidInterval rejects empty, reversed or out-of-policy rental
	// intervals.
	ErrInvalidInterval = errors.New("invalid rental interval")
	// ErrUnknownExtra means a selected add-on does not exist or is inactive.
	ErrUnknownExtra = errors.New("unknown extra")
)
