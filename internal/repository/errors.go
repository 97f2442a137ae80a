// Package repository holds the MySQL data access layer.  The sentinel
// errors below are shared by every repository so that services and
// handlers can tell failure kinds apart with errors.Is.
package repository

import "errors"

// ErrNotFound is returned when a looked-up row does not exist.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be applied because the row
// is not in the expected state, such as a payment that was already
// settled.  Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrPromoExhausted is returned by the conditional promo increment when
// the code has no redemptions left.
var ErrPromoExhausted = errors.New("promo code exhausted")
