package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/gateway"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/order"
	"ms-checkout/internal/payment/storage"
	"ms-checkout/internal/pricing"

	"github.com/google/uuid"
)

// Gateway is the narrow payment-processor surface the orchestrator needs.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*gateway.Intent, error)
	Retrieve(ctx context.Context, intentID string) (*gateway.Intent, error)
	UpdatePaymentMethod(ctx context.Context, intentID, paymentMethodID string) (*gateway.Intent, error)
	Confirm(ctx context.Context, intentID string) (*gateway.Intent, error)
}

type TicketIssuer interface {
	IssueForOrder(ctx context.Context, order *models.Order) ([]models.Ticket, error)
}

type EventPublisher interface {
	PublishOrderCreated(order *models.Order) error
	PublishOrderPaid(order *models.Order) error
	PublishOrderFailed(order *models.Order) error
	PublishTicketsIssued(orderID string, tickets []models.Ticket) error
}

type AttemptRecorder interface {
	SaveAttempt(ctx context.Context, attempt *storage.Attempt) error
}

type CatalogWriter interface {
	IncrementDiscountUse(ctx context.Context, code string) error
	RecordSold(ctx context.Context, tierID string, quantity int) error
}

// Orchestrator coordinates the pricing engine, the order ledger, the
// payment gateway and ticket issuance across the three entry points:
// synchronous confirmation, webhook delivery and manual retry.
type Orchestrator struct {
	Pricing  *pricing.Engine
	Ledger   *order.Ledger
	Gateway  Gateway
	Tickets  TicketIssuer
	Events   EventPublisher
	Attempts AttemptRecorder
	Catalog  CatalogWriter
	Guard    *EventGuard
	Logger   *logger.Logger
}

// StartCheckout prices the selection, opens a pending order and creates the
// payment intent the buyer completes client-side.
func (o *Orchestrator) StartCheckout(ctx context.Context, buyerID string, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	calc, err := o.Pricing.Calculate(ctx, req.Selections, req.DiscountCode, req.Currency)
	if err != nil {
		return nil, err
	}

	quantity := 0
	for _, sel := range req.Selections {
		quantity += sel.Quantity
	}

	selectionsJSON, err := json.Marshal(req.Selections)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to encode selections", err)
	}
	meta := map[string]string{
		models.MetaSelections: string(selectionsJSON),
		"attendee_name":       req.AttendeeName,
		"attendee_email":      req.AttendeeEmail,
	}
	if calc.DiscountSource == "code" && calc.CodeResult != nil {
		meta[models.MetaDiscountCode] = calc.CodeResult.Code
	}

	ord, err := o.Ledger.Create(ctx, req.EventID, buyerID, quantity, calc, meta)
	if err != nil {
		return nil, err
	}

	intent, err := o.Gateway.CreateIntent(ctx, ord.AmountCents, ord.Currency, map[string]string{"order_id": ord.OrderID})
	if err != nil {
		o.recordAttempt(ctx, ord.OrderID, "", string(gateway.PaymentFailed), gateway.ErrorCode(err), err.Error())
		if _, ferr := o.Ledger.MarkFailed(ctx, ord.OrderID, gateway.ErrorCode(err), "payment intent creation failed"); ferr != nil {
			o.Logger.Error("FULFILL", fmt.Sprintf("could not fail order %s after gateway error: %v", ord.OrderID, ferr))
		}
		return nil, err
	}

	if err := o.Ledger.AttachPaymentRefs(ctx, ord, "", intent.ID); err != nil {
		return nil, err
	}
	o.recordAttempt(ctx, ord.OrderID, intent.ID, string(intent.State), "", "")

	if o.Events != nil {
		if err := o.Events.PublishOrderCreated(ord); err != nil {
			o.Logger.Error("KAFKA", fmt.Sprintf("order created publish failed for %s: %v", ord.OrderID, err))
		}
	}

	return &models.CheckoutResponse{Order: ord, Pricing: calc, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmPayment is the synchronous entry point, called by the buyer right
// after client-side payment completion. The gateway is the source of truth:
// the order is only marked paid once the intent reports succeeded.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, orderID string) (*models.ConfirmResponse, error) {
	ord, err := o.Ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if ord.Status == models.OrderCompleted {
		tickets, terr := o.Tickets.IssueForOrder(ctx, ord)
		if terr != nil {
			return nil, terr
		}
		return &models.ConfirmResponse{Order: ord, Tickets: tickets}, nil
	}

	intentID := paymentIntentRef(ord)
	if intentID == "" {
		return nil, errs.E(errs.Validation, fmt.Sprintf("order %s has no payment intent", orderID))
	}

	intent, err := o.Gateway.Retrieve(ctx, intentID)
	if err != nil {
		o.recordAttempt(ctx, ord.OrderID, intentID, string(gateway.PaymentFailed), gateway.ErrorCode(err), err.Error())
		return nil, err
	}
	if intent.State != gateway.PaymentSucceeded {
		o.recordAttempt(ctx, ord.OrderID, intentID, string(intent.State), "", "")
		return nil, errs.E(errs.Conflict, fmt.Sprintf("payment for order %s has not completed (%s)", orderID, intent.State))
	}

	return o.applyPayment(ctx, ord, intentID, "card")
}

// RetryPayment is the manual retry entry point: the buyer supplies a new
// payment method after a decline.
func (o *Orchestrator) RetryPayment(ctx context.Context, orderID, paymentMethodID string) (*models.ConfirmResponse, error) {
	if paymentMethodID == "" {
		return nil, errs.E(errs.Validation, "payment_method_id is required")
	}

	ord, err := o.Ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status.IsTerminal() {
		return nil, errs.E(errs.Conflict, fmt.Sprintf("order %s is %s and cannot be retried", orderID, ord.Status))
	}

	intentID := paymentIntentRef(ord)
	if intentID == "" {
		return nil, errs.E(errs.Validation, fmt.Sprintf("order %s has no payment intent", orderID))
	}

	current, err := o.Gateway.Retrieve(ctx, intentID)
	if err != nil {
		return nil, err
	}
	switch current.State {
	case gateway.PaymentSucceeded:
		return nil, errs.E(errs.Conflict, fmt.Sprintf("payment for order %s already succeeded", orderID))
	case gateway.PaymentCancelled:
		return nil, errs.E(errs.Conflict, fmt.Sprintf("payment for order %s was cancelled", orderID))
	}

	if _, err := o.Ledger.MarkProcessing(ctx, orderID); err != nil {
		return nil, err
	}
	// Every manual retry attempt counts, whatever its outcome.
	if _, err := o.Ledger.IncrementRetry(ctx, ord); err != nil {
		o.Logger.Error("FULFILL", fmt.Sprintf("retry count update failed for %s: %v", ord.OrderID, err))
	}

	if _, err := o.Gateway.UpdatePaymentMethod(ctx, intentID, paymentMethodID); err != nil {
		return nil, o.failAttempt(ctx, ord, intentID, err)
	}
	intent, err := o.Gateway.Confirm(ctx, intentID)
	if err != nil {
		return nil, o.failAttempt(ctx, ord, intentID, err)
	}

	o.recordAttempt(ctx, ord.OrderID, intentID, string(intent.State), "", "")

	if intent.State != gateway.PaymentSucceeded {
		// Requires-action and processing outcomes finish asynchronously;
		// the webhook completes the order.
		ord, err = o.Ledger.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return &models.ConfirmResponse{Order: ord}, nil
	}

	return o.applyPayment(ctx, ord, intentID, "card")
}

// failAttempt records a failed gateway attempt and moves the order to
// failed. Prior state is never corrupted: the error lands in metadata and
// the order can be retried again.
func (o *Orchestrator) failAttempt(ctx context.Context, ord *models.Order, intentID string, cause error) error {
	code := gateway.ErrorCode(cause)
	o.recordAttempt(ctx, ord.OrderID, intentID, string(gateway.PaymentFailed), code, cause.Error())

	failed, err := o.Ledger.MarkFailed(ctx, ord.OrderID, code, "payment attempt failed")
	if err != nil {
		o.Logger.Error("FULFILL", fmt.Sprintf("could not fail order %s: %v", ord.OrderID, err))
	} else if o.Events != nil {
		if perr := o.Events.PublishOrderFailed(failed); perr != nil {
			o.Logger.Error("KAFKA", fmt.Sprintf("order failed publish failed for %s: %v", ord.OrderID, perr))
		}
	}
	return cause
}

// applyPayment is the terminal effect shared by all entry points: mark the
// order paid exactly once, then issue tickets. A partial issuance failure
// leaves the order paid; re-running this path completes the missing
// tickets without re-charging.
func (o *Orchestrator) applyPayment(ctx context.Context, ord *models.Order, intentID, paymentMethod string) (*models.ConfirmResponse, error) {
	paid, applied, err := o.Ledger.MarkPaid(ctx, ord.OrderID, paymentMethod, intentID)
	if err != nil {
		return nil, err
	}

	if applied {
		o.onFirstPayment(ctx, paid)
	}

	tickets, err := o.Tickets.IssueForOrder(ctx, paid)
	if err != nil {
		o.Logger.Error("FULFILL", fmt.Sprintf("ticket issuance incomplete for %s: %v", paid.OrderID, err))
		return nil, err
	}

	if applied && o.Events != nil {
		if perr := o.Events.PublishTicketsIssued(paid.OrderID, tickets); perr != nil {
			o.Logger.Error("KAFKA", fmt.Sprintf("tickets issued publish failed for %s: %v", paid.OrderID, perr))
		}
	}

	return &models.ConfirmResponse{Order: paid, Tickets: tickets}, nil
}

// onFirstPayment runs the side effects that belong to the single winning
// transition into completed: usage counters and the paid event.
func (o *Orchestrator) onFirstPayment(ctx context.Context, ord *models.Order) {
	if o.Catalog != nil {
		if code := ord.Metadata[models.MetaDiscountCode]; code != "" {
			if err := o.Catalog.IncrementDiscountUse(ctx, code); err != nil {
				o.Logger.Error("FULFILL", fmt.Sprintf("discount usage update failed for %s: %v", ord.OrderID, err))
			}
		}
		var selections []models.Selection
		if raw := ord.Metadata[models.MetaSelections]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &selections); err == nil {
				for _, sel := range selections {
					if err := o.Catalog.RecordSold(ctx, sel.TierID, sel.Quantity); err != nil {
						o.Logger.Error("FULFILL", fmt.Sprintf("sold counter update failed for tier %s: %v", sel.TierID, err))
					}
				}
			}
		}
	}

	if o.Events != nil {
		if err := o.Events.PublishOrderPaid(ord); err != nil {
			o.Logger.Error("KAFKA", fmt.Sprintf("order paid publish failed for %s: %v", ord.OrderID, err))
		}
	}
}

func (o *Orchestrator) recordAttempt(ctx context.Context, orderID, intentID, status, errorCode, errorMessage string) {
	if o.Attempts == nil {
		return
	}
	attempt := &storage.Attempt{
		AttemptID:    uuid.NewString(),
		OrderID:      orderID,
		IntentID:     intentID,
		Status:       status,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		CreatedAt:    time.Now(),
	}
	if err := o.Attempts.SaveAttempt(ctx, attempt); err != nil {
		o.Logger.Error("FULFILL", fmt.Sprintf("attempt record failed for %s: %v", orderID, err))
	}
}

// paymentIntentRef returns the canonical intent reference, falling back to
// the legacy metadata copy for rows written before the column existed.
func paymentIntentRef(ord *models.Order) string {
	if ord.PaymentIntentID != "" {
		return ord.PaymentIntentID
	}
	if ord.Metadata != nil {
		return ord.Metadata[models.MetaPaymentIntentID]
	}
	return ""
}
