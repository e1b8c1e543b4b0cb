package models

import (
	"time"

	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type DiscountCode struct {
	bun.BaseModel `bun:"table:discount_codes"`

	Code string       `bun:"code,pk" json:"code"`
	Type DiscountType `bun:"type,notnull" json:"type"`

	Percent     float64 `bun:"percent,nullzero" json:"percent,omitempty"`
	AmountCents int64   `bun:"amount_cents,nullzero" json:"amount_cents,omitempty"`

	MinPurchaseCents int64 `bun:"min_purchase_cents,nullzero" json:"min_purchase_cents,omitempty"`
	MaxUses          int   `bun:"max_uses,nullzero" json:"max_uses,omitempty"`
	UseCount         int   `bun:"use_count,notnull" json:"use_count"`

	// Empty means the code applies to every tier.
	ApplicableTierIDs []string `bun:"applicable_tier_ids" json:"applicable_tier_ids,omitempty"`

	ValidFrom  time.Time `bun:"valid_from,nullzero" json:"valid_from,omitempty"`
	ValidUntil time.Time `bun:"valid_until,nullzero" json:"valid_until,omitempty"`
}

// AppliesToTier reports whether the code covers the given tier.
func (d *DiscountCode) AppliesToTier(tierID string) bool {
	if len(d.ApplicableTierIDs) == 0 {
		return true
	}
	for _, id := range d.ApplicableTierIDs {
		if id == tierID {
			return true
		}
	}
	return false
}
