package fulfillment

import (
	"context"
	"fmt"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/gateway"
)

// HandleWebhookEvent is the asynchronous reconciliation entry point. The
// gateway delivers events at least once and in no particular order, so the
// whole path must be replay-safe: the redis guard short-circuits known
// event ids, and the ledger's conditional update guarantees a replayed
// success event past the guard is still a no-op.
func (o *Orchestrator) HandleWebhookEvent(ctx context.Context, ev *gateway.Event) error {
	if ev.Type == gateway.EventIgnored {
		return nil
	}

	if o.Guard != nil {
		claimed, err := o.Guard.Acquire(ctx, ev.ID)
		if err != nil {
			// Redis being down must not stall reconciliation; the
			// conditional update below stays authoritative.
			o.Logger.Warn("WEBHOOK", fmt.Sprintf("event guard unavailable for %s: %v", ev.ID, err))
		} else if !claimed {
			o.Logger.LogWebhook(ev.RawType, fmt.Sprintf("event %s already processed, skipping", ev.ID))
			return nil
		}
	}

	err := o.reconcile(ctx, ev)
	if err != nil && o.Guard != nil && errs.IsRetryable(err) {
		// Free the guard so the redelivery is not silently swallowed.
		_ = o.Guard.Release(ctx, ev.ID)
	}
	return err
}

func (o *Orchestrator) reconcile(ctx context.Context, ev *gateway.Event) error {
	ref := ev.OrderID
	if ref == "" {
		ref = ev.IntentID
	}
	if ref == "" {
		return errs.E(errs.Validation, fmt.Sprintf("event %s carries no order reference", ev.ID))
	}

	ord, err := o.Ledger.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	switch ev.Type {
	case gateway.EventPaymentSucceeded:
		o.Logger.LogWebhook(ev.RawType, fmt.Sprintf("payment succeeded for order %s", ord.OrderID))
		if _, err := o.applyPayment(ctx, ord, ev.IntentID, "card"); err != nil {
			return err
		}
		return nil

	case gateway.EventPaymentFailed:
		o.Logger.LogWebhook(ev.RawType, fmt.Sprintf("payment failed for order %s: %s", ord.OrderID, ev.ErrorCode))
		o.recordAttempt(ctx, ord.OrderID, ev.IntentID, string(gateway.PaymentFailed), ev.ErrorCode, ev.ErrorMessage)

		failed, err := o.Ledger.MarkFailed(ctx, ord.OrderID, ev.ErrorCode, ev.ErrorMessage)
		if err != nil {
			// A replayed failure event against an already-failed or
			// completed order is a no-op, not a problem.
			if errs.KindOf(err) == errs.Conflict {
				return nil
			}
			return err
		}
		if o.Events != nil {
			if perr := o.Events.PublishOrderFailed(failed); perr != nil {
				o.Logger.Error("KAFKA", fmt.Sprintf("order failed publish failed for %s: %v", ord.OrderID, perr))
			}
		}
		return nil

	default:
		return nil
	}
}
