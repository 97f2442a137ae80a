package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/payment"
)

// maxWebhookBody caps the payload read from the gateway.
const maxWebhookBody = 64 << 10

// PaymentResults applies gateway outcomes.  *payment.Service implements it.
type PaymentResults interface {
	HandleResult(ctx context.Context, intentID string, status model.PaymentStatus, reference string) error
}

// PaymentWebhook receives Stripe events.  With an empty Secret signature
// verification is skipped, which is only meant for local development.
type PaymentWebhook struct {
	Payments PaymentResults
	Secret   string
	Log      *zap.Logger
}

func NewPaymentWebhook(p PaymentResults, secret string, log *zap.Logger) *PaymentWebhook {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentWebhook{Payments: p, Secret: secret, Log: log}
}

// Stripe handles POST /v1/payments/stripe/webhook.  Unknown event types
// and intents are acknowledged so the gateway stops retrying them; only
// processing failures return 5xx.
func (h *PaymentWebhook) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil || len(payload) > maxWebhookBody {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if h.Secret != "" {
		_, err := webhook.ConstructEventWithOptions(payload, c.Request().Header.Get("Stripe-Signature"), h.Secret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			h.Log.Warn("stripe signature rejected", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}
	}
	if !gjson.ValidBytes(payload) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	evType := gjson.GetBytes(payload, "type").String()
	var status model.PaymentStatus
	switch evType {
	case "payment_intent.succeeded":
		status = model.PaymentSuccess
	case "payment_intent.payment_failed":
		status = model.PaymentFailed
	default:
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	}

	obj := gjson.GetBytes(payload, "data.object")
	intentID := obj.Get("id").String()
	if intentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing payment intent id"})
	}
	reference := obj.Get("latest_charge").String()
	if reference == "" {
		reference = gjson.GetBytes(payload, "id").String()
	}

	err = h.Payments.HandleResult(c.Request().Context(), intentID, status, reference)
	switch {
	case errors.Is(err, payment.ErrUnknownIntent):
		h.Log.Warn("webhook for unknown intent", zap.String("intent", intentID), zap.String("type", evType))
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	case err != nil:
		h.Log.Error("apply payment result failed", zap.String("intent", intentID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "processed"})
}
