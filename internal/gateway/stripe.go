package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/config"
	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrClientInitFailed = errors.New("failed to initialize Stripe client")

// PaymentState is the internal payment vocabulary. Gateway statuses are
// mapped into it at the adapter boundary and never propagated raw.
type PaymentState string

const (
	PaymentPending        PaymentState = "pending"
	PaymentRequiresAction PaymentState = "requires_action"
	PaymentProcessing     PaymentState = "processing"
	PaymentSucceeded      PaymentState = "succeeded"
	PaymentFailed         PaymentState = "failed"
	PaymentCancelled      PaymentState = "cancelled"
)

// Intent is the adapter's view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	State        PaymentState
	AmountCents  int64
	Currency     string
	OrderID      string
}

// StripeGateway wraps the Stripe client behind the narrow surface the
// fulfillment pipeline needs. It is constructed once in main and injected;
// there is no package-level client.
type StripeGateway struct {
	client  *client.API
	timeout time.Duration
	log     *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not set")
		return nil, ErrClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		return nil, ErrClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized")
	return &StripeGateway{client: sc, timeout: cfg.Timeout, log: log}, nil
}

// CreateIntent creates a payment intent for the given amount. Each call
// carries a fresh idempotency key so a network-level retry of the same
// logical attempt can never double-charge.
func (g *StripeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	if amountCents <= 0 {
		return nil, errs.E(errs.Validation, fmt.Sprintf("invalid payment amount: %d", amountCents))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("failed to create payment intent: %v", err))
		return nil, errs.Wrap(errs.Gateway, "payment processor error", err)
	}

	g.log.LogPayment("CREATE", pi.ID, fmt.Sprintf("intent created for %d %s", amountCents, currency))
	return g.toIntent(pi), nil
}

// Retrieve fetches the current state of an intent.
func (g *StripeGateway) Retrieve(ctx context.Context, intentID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("failed to retrieve intent %s: %v", intentID, err))
		return nil, errs.Wrap(errs.Gateway, "payment processor error", err)
	}
	return g.toIntent(pi), nil
}

// UpdatePaymentMethod attaches a new payment method to an existing intent,
// used by the manual retry flow after a decline.
func (g *StripeGateway) UpdatePaymentMethod(ctx context.Context, intentID, paymentMethodID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	pi, err := g.client.PaymentIntents.Update(intentID, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("failed to update payment method on %s: %v", intentID, err))
		return nil, errs.Wrap(errs.Gateway, "payment processor error", err)
	}
	return g.toIntent(pi), nil
}

// Confirm attempts to confirm an intent server-side.
func (g *StripeGateway) Confirm(ctx context.Context, intentID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	pi, err := g.client.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("failed to confirm intent %s: %v", intentID, err))
		return nil, errs.Wrap(errs.Gateway, "payment processor error", err)
	}
	return g.toIntent(pi), nil
}

func (g *StripeGateway) toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		State:        MapIntentStatus(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		OrderID:      pi.Metadata["order_id"],
	}
}

// MapIntentStatus translates Stripe's intent status into the internal enum.
func MapIntentStatus(status stripe.PaymentIntentStatus) PaymentState {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return PaymentSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return PaymentProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return PaymentRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return PaymentPending
	case stripe.PaymentIntentStatusCanceled:
		return PaymentCancelled
	default:
		return PaymentFailed
	}
}

// ErrorCode extracts the processor's error code (e.g. card_declined) for
// audit metadata. Empty when err did not come from Stripe.
func ErrorCode(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.DeclineCode != "" {
			return string(se.DeclineCode)
		}
		return string(se.Code)
	}
	return ""
}
