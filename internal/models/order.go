package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Metadata keys carried on orders for audit and retry bookkeeping.
const (
	MetaRetryCount       = "retry_count"
	MetaLastError        = "last_error"
	MetaGatewayErrorCode = "gateway_error_code"
	MetaPaymentIntentID  = "payment_intent_id"
	MetaSessionID        = "checkout_session_id"
	MetaProvenance       = "provenance"
	MetaSelections       = "selections"
	MetaDiscountCode     = "discount_code"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID  string `bun:"order_id,pk" json:"order_id"`
	EventID  string `bun:"event_id,notnull" json:"event_id"`
	BuyerID  string `bun:"buyer_id,notnull" json:"buyer_id"`
	Quantity int    `bun:"quantity,notnull" json:"quantity"`

	SubtotalCents int64  `bun:"subtotal_cents,notnull" json:"subtotal_cents"`
	DiscountCents int64  `bun:"discount_cents,notnull" json:"discount_cents"`
	FeeCents      int64  `bun:"fee_cents,notnull" json:"fee_cents"`
	AmountCents   int64  `bun:"amount_cents,notnull" json:"amount_cents"`
	Currency      string `bun:"currency,notnull" json:"currency"`

	Status OrderStatus `bun:"status,notnull" json:"status"`

	// Canonical external payment references. Metadata may carry legacy
	// copies under the same keys; lookups consult both.
	CheckoutSessionID string `bun:"checkout_session_id,nullzero" json:"checkout_session_id,omitempty"`
	PaymentIntentID   string `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	PaymentMethod     string `bun:"payment_method,nullzero" json:"payment_method,omitempty"`

	Metadata map[string]string `bun:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	PaidAt    time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	FailedAt  time.Time `bun:"failed_at,nullzero" json:"failed_at,omitempty"`
}

// IsTerminal reports whether no further status transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CanTransition encodes the order state machine:
// pending -> processing -> completed | failed, with failed/processing
// re-entering processing on retry. Terminal states admit nothing.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch to {
	case OrderProcessing:
		return s == OrderPending || s == OrderFailed || s == OrderProcessing
	case OrderCompleted:
		return s == OrderPending || s == OrderProcessing || s == OrderFailed
	case OrderFailed:
		return s == OrderPending || s == OrderProcessing
	case OrderCancelled:
		return s == OrderPending || s == OrderProcessing || s == OrderFailed
	default:
		return false
	}
}

type OrderWithTickets struct {
	Order   Order    `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
