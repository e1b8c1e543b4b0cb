package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	TierID     string `bun:"tier_id,pk" json:"tier_id"`
	EventID    string `bun:"event_id,notnull" json:"event_id"`
	EventName  string `bun:"event_name,notnull" json:"event_name"`
	Name       string `bun:"name,notnull" json:"name"`
	PriceCents int64  `bun:"price_cents,notnull" json:"price_cents"`
	Currency   string `bun:"currency,notnull" json:"currency"`

	QuantityAvailable int `bun:"quantity_available,notnull" json:"quantity_available"`
	QuantitySold      int `bun:"quantity_sold,notnull" json:"quantity_sold"`
	MinPerOrder       int `bun:"min_per_order,notnull" json:"min_per_order"`
	MaxPerOrder       int `bun:"max_per_order,notnull" json:"max_per_order"`

	Hidden    bool `bun:"hidden,notnull" json:"hidden"`
	SortOrder int  `bun:"sort_order,notnull" json:"sort_order"`

	SaleStartsAt time.Time `bun:"sale_starts_at,nullzero" json:"sale_starts_at,omitempty"`
	SaleEndsAt   time.Time `bun:"sale_ends_at,nullzero" json:"sale_ends_at,omitempty"`
}

// Remaining reports how many units of the tier are still purchasable.
func (t *TicketTier) Remaining() int {
	return t.QuantityAvailable - t.QuantitySold
}

// OnSale reports whether the tier is visible and inside its sale window.
func (t *TicketTier) OnSale(now time.Time) bool {
	if t.Hidden {
		return false
	}
	if !t.SaleStartsAt.IsZero() && now.Before(t.SaleStartsAt) {
		return false
	}
	if !t.SaleEndsAt.IsZero() && now.After(t.SaleEndsAt) {
		return false
	}
	return true
}

type GroupPricingRule struct {
	bun.BaseModel `bun:"table:group_pricing_rules"`

	RuleID          string  `bun:"rule_id,pk" json:"rule_id"`
	TierID          string  `bun:"tier_id,notnull" json:"tier_id"`
	MinQuantity     int     `bun:"min_quantity,notnull" json:"min_quantity"`
	DiscountPercent float64 `bun:"discount_percent,notnull" json:"discount_percent"`
}
