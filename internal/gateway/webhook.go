package gateway

import (
	"encoding/json"
	"fmt"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventIgnored          EventType = "ignored"
)

// Event is a verified, normalized payment event. Raw gateway payloads stay
// inside this package.
type Event struct {
	ID           string
	Type         EventType
	RawType      string
	IntentID     string
	OrderID      string
	ErrorCode    string
	ErrorMessage string
}

// WebhookVerifier checks webhook signatures and normalizes event payloads.
type WebhookVerifier struct {
	secret string
	log    *logger.Logger
}

func NewWebhookVerifier(secret string, log *logger.Logger) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, log: log}
}

// Verify rejects unsigned or tampered payloads and maps the event into the
// internal shape. Unknown event types come back as EventIgnored rather than
// an error so the caller can acknowledge them.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (*Event, error) {
	if v.secret == "" {
		return nil, errs.E(errs.Internal, "webhook secret is not configured")
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, opts)
	if err != nil {
		v.log.Error("WEBHOOK", fmt.Sprintf("signature verification failed: %v", err))
		return nil, errs.Wrap(errs.Validation, "webhook signature verification failed", err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		return v.fromIntentEvent(&event, EventPaymentSucceeded)
	case "payment_intent.payment_failed":
		return v.fromIntentEvent(&event, EventPaymentFailed)
	default:
		v.log.LogWebhook(string(event.Type), "unhandled event type, acknowledging")
		return &Event{ID: event.ID, Type: EventIgnored, RawType: string(event.Type)}, nil
	}
}

func (v *WebhookVerifier) fromIntentEvent(event *stripe.Event, typ EventType) (*Event, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid payment intent payload", err)
	}

	out := &Event{
		ID:       event.ID,
		Type:     typ,
		RawType:  string(event.Type),
		IntentID: pi.ID,
		OrderID:  pi.Metadata["order_id"],
	}
	if pi.LastPaymentError != nil {
		out.ErrorCode = string(pi.LastPaymentError.Code)
		if pi.LastPaymentError.DeclineCode != "" {
			out.ErrorCode = string(pi.LastPaymentError.DeclineCode)
		}
		out.ErrorMessage = pi.LastPaymentError.Msg
	}
	return out, nil
}
