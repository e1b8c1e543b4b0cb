// Package catalog reads the pricing inputs owned by the event-management
// side of the platform: ticket tiers, group pricing rules and discount
// codes. This core only ever mutates a discount code's usage counter.
package catalog

import (
	"context"
	"database/sql"
	"errors"

	"ms-checkout/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetTier → one tier by id; (nil, nil) when absent
func (d *DB) GetTier(ctx context.Context, tierID string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := d.Bun.NewSelect().
		Model(&tier).
		Where("tier_id = ?", tierID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// GroupRulesForTier → all quantity-tier rules attached to a tier
func (d *DB) GroupRulesForTier(ctx context.Context, tierID string) ([]models.GroupPricingRule, error) {
	var rules []models.GroupPricingRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Where("tier_id = ?", tierID).
		Order("min_quantity ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// GetDiscountCode → one code; (nil, nil) when absent
func (d *DB) GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := d.Bun.NewSelect().
		Model(&dc).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// IncrementDiscountUse bumps a code's usage counter once an order that used
// it reaches completed.
func (d *DB) IncrementDiscountUse(ctx context.Context, code string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.DiscountCode)(nil)).
		Set("use_count = use_count + 1").
		Where("code = ?", code).
		Exec(ctx)
	return err
}

// RecordSold adds sold units to a tier's counter when an order completes.
func (d *DB) RecordSold(ctx context.Context, tierID string, quantity int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("quantity_sold = quantity_sold + ?", quantity).
		Where("tier_id = ?", tierID).
		Exec(ctx)
	return err
}
