package payment

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

// IntentRequest asks the gateway to collect Amount for a reservation.
// Amount is in whole currency units.
type IntentRequest struct {
	ReservationID uint64
	Reference     string
	Amount        int64
	Currency      string
	PayerContact  string
	Method        string
}

// Intent is a created gateway payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// Gateway creates payment intents.  Results arrive later through
// Service.HandleResult.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// StripeGateway creates Stripe PaymentIntents.
type StripeGateway struct {
	sc *stripe.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: stripe.NewClient(secretKey)}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(req.Amount * 100), // minor units
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String("Vehicle reservation " + req.Reference),
		Metadata: map[string]string{
			"reservation_id": strconv.FormatUint(req.ReservationID, 10),
			"reference":      req.Reference,
			"contact":        req.PayerContact,
		},
	}
	if req.Method != "" {
		params.PaymentMethodTypes = []*string{stripe.String(req.Method)}
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	params.SetIdempotencyKey("reservation-" + req.Reference)

	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// OfflineGateway issues local intent ids without contacting a provider.
// Used in development when no Stripe key is configured; results are fed
// through the staff or webhook endpoints by hand.
type OfflineGateway struct{}

func (OfflineGateway) CreatePaymentIntent(_ context.Context, _ IntentRequest) (Intent, error) {
	return Intent{ID: "offline_" + uuid.NewString()}, nil
}
