package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid TicketStatus = "valid"
	TicketUsed  TicketStatus = "used"
	TicketVoid  TicketStatus = "void"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID   string `bun:"ticket_id,pk" json:"ticket_id"`
	OrderID    string `bun:"order_id,notnull" json:"order_id"`
	EventID    string `bun:"event_id,notnull" json:"event_id"`
	TierID     string `bun:"tier_id,notnull" json:"tier_id"`
	TicketCode string `bun:"ticket_code,notnull,unique" json:"ticket_code"`

	Status TicketStatus `bun:"status,notnull" json:"status"`

	AttendeeName  string `bun:"attendee_name,nullzero" json:"attendee_name,omitempty"`
	AttendeeEmail string `bun:"attendee_email,nullzero" json:"attendee_email,omitempty"`

	// Snapshot of tier/event at purchase time. Kept denormalized so the
	// ticket stays historically accurate if the tier is edited later.
	TierName             string `bun:"tier_name,notnull" json:"tier_name"`
	EventName            string `bun:"event_name,notnull" json:"event_name"`
	PriceAtPurchaseCents int64  `bun:"price_at_purchase_cents,notnull" json:"price_at_purchase_cents"`
	Currency             string `bun:"currency,notnull" json:"currency"`

	QRCode []byte `bun:"qr_code" json:"qr_code,omitempty"`

	IssuedAt time.Time `bun:"issued_at,notnull" json:"issued_at"`
	UsedAt   time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
}
