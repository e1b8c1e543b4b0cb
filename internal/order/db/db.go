package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-checkout/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder → insert new order
func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order by its ID; (nil, nil) when absent
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByExternalRef resolves an order by either external payment
// reference. Different gateway call sites populate different fields at
// different times, so both columns are checked with OR semantics.
func (d *DB) GetOrderByExternalRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("checkout_session_id = ?", ref).
		WhereOr("payment_intent_id = ?", ref).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return d.legacyLookup(ctx, ref)
}

// legacyLookup covers rows written before the reference columns became
// canonical, where the reference lives only inside the metadata map. Only
// rows with empty canonical columns qualify, which keeps the scan bounded
// to the migration window.
func (d *DB) legacyLookup(ctx context.Context, ref string) (*models.Order, error) {
	var candidates []models.Order
	err := d.Bun.NewSelect().
		Model(&candidates).
		Where("checkout_session_id IS NULL").
		Where("payment_intent_id IS NULL").
		Where("metadata IS NOT NULL").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	for i := range candidates {
		md := candidates[i].Metadata
		if md[models.MetaPaymentIntentID] == ref || md[models.MetaSessionID] == ref {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// ListOrdersByBuyer → all orders for a buyer, newest first
func (d *DB) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// SetPaymentRefs records the gateway references on a freshly created order.
// The metadata copies are audit trail; the columns are canonical.
func (d *DB) SetPaymentRefs(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewUpdate().
		Model(order).
		Column("checkout_session_id", "payment_intent_id", "metadata").
		Where("order_id = ?", order.OrderID).
		Exec(ctx)
	return err
}

// UpdateMetadata replaces the order's metadata map.
func (d *DB) UpdateMetadata(ctx context.Context, orderID string, md map[string]string) error {
	order := &models.Order{OrderID: orderID, Metadata: md}
	_, err := d.Bun.NewUpdate().
		Model(order).
		Column("metadata").
		WherePK().
		Exec(ctx)
	return err
}

// CompleteOrder is the single conditional write that makes payment
// application idempotent: the guard on status means concurrent webhook and
// confirmation calls race safely, and exactly one of them flips the row.
func (d *DB) CompleteOrder(ctx context.Context, orderID, paymentMethod, intentID string, paidAt time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCompleted).
		Set("paid_at = ?", paidAt).
		Where("order_id = ?", orderID).
		Where("status NOT IN (?)", bun.In([]models.OrderStatus{models.OrderCompleted, models.OrderCancelled}))
	if paymentMethod != "" {
		q = q.Set("payment_method = ?", paymentMethod)
	}
	if intentID != "" {
		q = q.Set("payment_intent_id = ?", intentID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TransitionStatus moves an order between non-terminal states under the
// same conditional-update discipline as CompleteOrder.
func (d *DB) TransitionStatus(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, at time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Where("order_id = ?", orderID).
		Where("status IN (?)", bun.In(from))
	if to == models.OrderFailed {
		q = q.Set("failed_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
