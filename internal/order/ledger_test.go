package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrderDB reimplements the store semantics in memory, including the
// conditional-update behavior the ledger's idempotency relies on.
type mockOrderDB struct {
	orders       map[string]*models.Order
	shouldFailOn string
}

func newMockOrderDB() *mockOrderDB {
	return &mockOrderDB{orders: make(map[string]*models.Order)}
}

func (m *mockOrderDB) CreateOrder(ctx context.Context, o models.Order) error {
	if m.shouldFailOn == "CreateOrder" {
		return errors.New("insert failed")
	}
	cp := o
	m.orders[o.OrderID] = &cp
	return nil
}

func (m *mockOrderDB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if m.shouldFailOn == "GetOrderByID" {
		return nil, errors.New("select failed")
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderDB) GetOrderByExternalRef(ctx context.Context, ref string) (*models.Order, error) {
	for _, o := range m.orders {
		if o.CheckoutSessionID == ref || o.PaymentIntentID == ref ||
			o.Metadata[models.MetaPaymentIntentID] == ref || o.Metadata[models.MetaSessionID] == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockOrderDB) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderDB) SetPaymentRefs(ctx context.Context, o *models.Order) error {
	stored, ok := m.orders[o.OrderID]
	if !ok {
		return errors.New("order not found")
	}
	stored.CheckoutSessionID = o.CheckoutSessionID
	stored.PaymentIntentID = o.PaymentIntentID
	stored.Metadata = o.Metadata
	return nil
}

func (m *mockOrderDB) UpdateMetadata(ctx context.Context, orderID string, md map[string]string) error {
	if m.shouldFailOn == "UpdateMetadata" {
		return errors.New("update failed")
	}
	stored, ok := m.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	stored.Metadata = md
	return nil
}

func (m *mockOrderDB) CompleteOrder(ctx context.Context, orderID, paymentMethod, intentID string, paidAt time.Time) (bool, error) {
	stored, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	if stored.Status == models.OrderCompleted || stored.Status == models.OrderCancelled {
		return false, nil
	}
	stored.Status = models.OrderCompleted
	stored.PaidAt = paidAt
	if paymentMethod != "" {
		stored.PaymentMethod = paymentMethod
	}
	if intentID != "" {
		stored.PaymentIntentID = intentID
	}
	return true, nil
}

func (m *mockOrderDB) TransitionStatus(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, at time.Time) (bool, error) {
	stored, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if stored.Status == f {
			stored.Status = to
			if to == models.OrderFailed {
				stored.FailedAt = at
			}
			return true, nil
		}
	}
	return false, nil
}

func newLedger(db *mockOrderDB) *order.Ledger {
	return order.NewLedger(db, logger.NewTestLogger())
}

func validPricing() *models.PriceCalculation {
	return &models.PriceCalculation{
		SubtotalCents: 10000,
		DiscountCents: 2000,
		FeeCents:      502,
		TotalCents:    8502,
		Currency:      "USD",
	}
}

func TestLedgerCreate(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)

	ord, err := ledger.Create(context.Background(), "event-1", "buyer-1", 10, validPricing(), map[string]string{
		models.MetaSelections: `[{"tier_id":"tier-1","quantity":10}]`,
		"attendee_name":       "",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ord.OrderID)
	assert.Equal(t, models.OrderPending, ord.Status)
	assert.Equal(t, int64(8502), ord.AmountCents)
	assert.Equal(t, "0", ord.Metadata[models.MetaRetryCount])
	assert.Equal(t, "checkout", ord.Metadata[models.MetaProvenance])
	assert.NotEmpty(t, ord.Metadata[models.MetaSelections])
	_, hasName := ord.Metadata["attendee_name"]
	assert.False(t, hasName, "empty metadata values are not stored")
}

func TestLedgerCreateRejectsUnreconciledPricing(t *testing.T) {
	ledger := newLedger(newMockOrderDB())

	pricing := validPricing()
	pricing.TotalCents = 9999

	_, err := ledger.Create(context.Background(), "event-1", "buyer-1", 10, pricing, nil)
	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}

func TestLedgerCreateRejectsZeroQuantity(t *testing.T) {
	ledger := newLedger(newMockOrderDB())

	_, err := ledger.Create(context.Background(), "event-1", "buyer-1", 0, validPricing(), nil)
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestLedgerResolve(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)
	require.NoError(t, ledger.AttachPaymentRefs(ctx, ord, "cs_1", "pi_1"))

	byID, err := ledger.Resolve(ctx, ord.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ord.OrderID, byID.OrderID)

	byIntent, err := ledger.Resolve(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, ord.OrderID, byIntent.OrderID)

	bySession, err := ledger.Resolve(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, ord.OrderID, bySession.OrderID)

	_, err = ledger.Resolve(ctx, "pi_unknown")
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestLedgerAttachPaymentRefsKeepsMetadataCopies(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)
	require.NoError(t, ledger.AttachPaymentRefs(ctx, ord, "", "pi_1"))

	stored := db.orders[ord.OrderID]
	assert.Equal(t, "pi_1", stored.PaymentIntentID)
	assert.Equal(t, "pi_1", stored.Metadata[models.MetaPaymentIntentID])
	_, hasSession := stored.Metadata[models.MetaSessionID]
	assert.False(t, hasSession)
}

func TestLedgerMarkPaid(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)

	paid, applied, err := ledger.MarkPaid(ctx, ord.OrderID, "card", "pi_1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.OrderCompleted, paid.Status)
	assert.Equal(t, "pi_1", paid.PaymentIntentID)

	// Replay: same outcome, not applied again.
	paid, applied, err = ledger.MarkPaid(ctx, ord.OrderID, "card", "pi_1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.OrderCompleted, paid.Status)
}

func TestLedgerMarkPaidCancelledOrder(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)
	db.orders[ord.OrderID].Status = models.OrderCancelled

	_, _, err = ledger.MarkPaid(ctx, ord.OrderID, "card", "pi_1")
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestLedgerMarkFailed(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)

	failed, err := ledger.MarkFailed(ctx, ord.OrderID, "card_declined", "your card was declined")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, failed.Status)
	assert.Equal(t, "your card was declined", failed.Metadata[models.MetaLastError])
	assert.Equal(t, "card_declined", failed.Metadata[models.MetaGatewayErrorCode])
	assert.False(t, failed.FailedAt.IsZero())
}

func TestLedgerMarkFailedTerminalOrder(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)
	_, _, err = ledger.MarkPaid(ctx, ord.OrderID, "card", "pi_1")
	require.NoError(t, err)

	_, err = ledger.MarkFailed(ctx, ord.OrderID, "card_declined", "too late")
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestLedgerMarkProcessing(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)

	processing, err := ledger.MarkProcessing(ctx, ord.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, processing.Status)

	// Failed orders re-enter processing on retry.
	_, err = ledger.MarkFailed(ctx, ord.OrderID, "", "declined")
	require.NoError(t, err)
	processing, err = ledger.MarkProcessing(ctx, ord.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, processing.Status)
}

func TestLedgerMarkProcessingCompletedOrder(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)
	_, _, err = ledger.MarkPaid(ctx, ord.OrderID, "card", "pi_1")
	require.NoError(t, err)

	_, err = ledger.MarkProcessing(ctx, ord.OrderID)
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestLedgerIncrementRetry(t *testing.T) {
	db := newMockOrderDB()
	ledger := newLedger(db)
	ctx := context.Background()

	ord, err := ledger.Create(ctx, "event-1", "buyer-1", 1, validPricing(), nil)
	require.NoError(t, err)

	count, err := ledger.IncrementRetry(ctx, ord)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = ledger.IncrementRetry(ctx, ord)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "2", db.orders[ord.OrderID].Metadata[models.MetaRetryCount])
}
