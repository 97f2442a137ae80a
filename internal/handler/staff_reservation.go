package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/lifecycle"
	"github.com/iliyamo/vehicle-rental-bot/internal/middleware"
	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/payment"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

// ReservationReader loads reservations.  *repository.ReservationRepo
// implements it.
type ReservationReader interface {
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
}

// Operations are the staff driven lifecycle transitions.
// *lifecycle.Service implements it.
type Operations interface {
	Pickup(ctx context.Context, reservationID uint64) (*model.Reservation, error)
	Return(ctx context.Context, reservationID uint64) (*model.Reservation, error)
	Cancel(ctx context.Context, reservationID uint64, reason string) (*model.Reservation, error)
}

// StaffHandler serves the back-office reservation endpoints.  Routes are
// protected by StaffAuth and RequireRole.
type StaffHandler struct {
	Reservations ReservationReader
	Ops          Operations
	Payments     PaymentResults
	Log          *zap.Logger
}

func NewStaffHandler(r ReservationReader, ops Operations, p PaymentResults, log *zap.Logger) *StaffHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StaffHandler{Reservations: r, Ops: ops, Payments: p, Log: log}
}

type extraPart struct {
	ExtraID   uint64 `json:"extra_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type reservationResp struct {
	ID                 uint64      `json:"id"`
	Reference          string      `json:"reference"`
	CustomerID         uint64      `json:"customer_id"`
	VehicleID          uint64      `json:"vehicle_id"`
	PickupLocationID   uint64      `json:"pickup_location_id"`
	ReturnLocationID   uint64      `json:"return_location_id"`
	PickupAt           time.Time   `json:"pickup_at"`
	ReturnAt           time.Time   `json:"return_at"`
	Status             string      `json:"status"`
	BaseAmount         int64       `json:"base_amount"`
	ExtrasAmount       int64       `json:"extras_amount"`
	TaxAmount          int64       `json:"tax_amount"`
	DiscountAmount     int64       `json:"discount_amount"`
	TotalAmount        int64       `json:"total_amount"`
	DepositAmount      int64       `json:"deposit_amount"`
	RefundAmount       int64       `json:"refund_amount"`
	Insurance          string      `json:"insurance,omitempty"`
	DeliveryAddress    string      `json:"delivery_address,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
	Extras             []extraPart `json:"extras"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	out := reservationResp{
		ID:                 r.ID,
		Reference:          r.Reference,
		CustomerID:         r.CustomerID,
		VehicleID:          r.VehicleID,
		PickupLocationID:   r.PickupLocationID,
		ReturnLocationID:   r.ReturnLocationID,
		PickupAt:           r.PickupAt,
		ReturnAt:           r.ReturnAt,
		Status:             string(r.Status),
		BaseAmount:         r.BaseAmount,
		ExtrasAmount:       r.ExtrasAmount,
		TaxAmount:          r.TaxAmount,
		DiscountAmount:     r.DiscountAmount,
		TotalAmount:        r.TotalAmount,
		DepositAmount:      r.DepositAmount,
		RefundAmount:       r.RefundAmount,
		Insurance:          string(r.Insurance),
		DeliveryAddress:    r.DeliveryAddress,
		CancellationReason: r.CancellationReason,
		CancelledAt:        r.CancelledAt,
		Extras:             make([]extraPart, 0, len(r.Extras)),
	}
	for _, e := range r.Extras {
		out.Extras = append(out.Extras, extraPart{
			ExtraID: e.ExtraID, Name: e.Name, Quantity: e.Quantity, UnitPrice: e.UnitPrice, LineTotal: e.LineTotal,
		})
	}
	return out
}

func reservationID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// writeLifecycleErr maps lifecycle and repository errors to responses.
func (h *StaffHandler) writeLifecycleErr(c echo.Context, id uint64, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	h.Log.Error("staff operation failed", zap.Uint64("reservation_id", id), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
}

// Get handles GET /v1/staff/reservations/:id.
func (h *StaffHandler) Get(c echo.Context) error {
	id, ok := reservationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	r, err := h.Reservations.GetReservation(ctx, id)
	if err != nil {
		return h.writeLifecycleErr(c, id, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(r))
}

// Pickup handles POST /v1/staff/reservations/:id/pickup.
func (h *StaffHandler) Pickup(c echo.Context) error {
	return h.apply(c, "pickup", h.Ops.Pickup)
}

// Return handles POST /v1/staff/reservations/:id/return.
func (h *StaffHandler) Return(c echo.Context) error {
	return h.apply(c, "return", h.Ops.Return)
}

func (h *StaffHandler) apply(c echo.Context, op string, fn func(context.Context, uint64) (*model.Reservation, error)) error {
	id, ok := reservationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	r, err := fn(ctx, id)
	if err != nil {
		return h.writeLifecycleErr(c, id, err)
	}
	h.Log.Info("staff "+op, zap.Uint64("reservation_id", id), zap.Any("staff_id", c.Get(middleware.CtxUserID)))
	return c.JSON(http.StatusOK, toReservationResp(r))
}

type cancelReq struct {
	Reason string `json:"reason" validate:"required,min=3,max=255"`
}

// Cancel handles POST /v1/staff/reservations/:id/cancel.
func (h *StaffHandler) Cancel(c echo.Context) error {
	id, ok := reservationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	r, err := h.Ops.Cancel(ctx, id, req.Reason)
	if err != nil {
		return h.writeLifecycleErr(c, id, err)
	}
	h.Log.Info("staff cancel", zap.Uint64("reservation_id", id), zap.Any("staff_id", c.Get(middleware.CtxUserID)))
	return c.JSON(http.StatusOK, toReservationResp(r))
}

type paymentResultReq struct {
	Status    string `json:"status" validate:"required,oneof=success failed"`
	Reference string `json:"reference" validate:"max=128"`
}

// PaymentResult handles POST /v1/staff/payments/:intent/result.  Staff use
// it to settle payments taken outside the card gateway (cash at the
// counter, bank transfer).
func (h *StaffHandler) PaymentResult(c echo.Context) error {
	intentID := strings.TrimSpace(c.Param("intent"))
	var req paymentResultReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if intentID == "" || c.Validate(&req) != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be success or failed"})
	}
	err := h.Payments.HandleResult(c.Request().Context(), intentID, model.PaymentStatus(req.Status), req.Reference)
	switch {
	case errors.Is(err, payment.ErrUnknownIntent):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
	case err != nil:
		h.Log.Error("staff payment result failed", zap.String("intent", intentID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
