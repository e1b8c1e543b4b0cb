package order

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByExternalRef(ctx context.Context, ref string) (*models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error)
	SetPaymentRefs(ctx context.Context, order *models.Order) error
	UpdateMetadata(ctx context.Context, orderID string, md map[string]string) error
	CompleteOrder(ctx context.Context, orderID, paymentMethod, intentID string, paidAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, at time.Time) (bool, error)
}

// Ledger owns order records and their status transitions. It is the sole
// writer of order state; everything else goes through it.
type Ledger struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewLedger(db DBLayer, log *logger.Logger) *Ledger {
	return &Ledger{DB: db, Logger: log}
}

// Create opens a new order in pending from a finished price calculation.
// The stored amounts must reconcile: amount = subtotal - discount + fees.
// extraMeta carries checkout context (selections, attendee, discount code)
// that ticket issuance needs later.
func (l *Ledger) Create(ctx context.Context, eventID, buyerID string, quantity int, pricing *models.PriceCalculation, extraMeta map[string]string) (*models.Order, error) {
	if quantity < 1 {
		return nil, errs.E(errs.Validation, "order quantity must be at least 1")
	}
	if pricing.TotalCents != pricing.SubtotalCents-pricing.DiscountCents+pricing.FeeCents {
		return nil, errs.E(errs.Internal, "price calculation does not reconcile")
	}

	order := models.Order{
		OrderID:       uuid.NewString(),
		EventID:       eventID,
		BuyerID:       buyerID,
		Quantity:      quantity,
		SubtotalCents: pricing.SubtotalCents,
		DiscountCents: pricing.DiscountCents,
		FeeCents:      pricing.FeeCents,
		AmountCents:   pricing.TotalCents,
		Currency:      pricing.Currency,
		Status:        models.OrderPending,
		Metadata: map[string]string{
			models.MetaRetryCount: "0",
			models.MetaProvenance: "checkout",
		},
		CreatedAt: time.Now(),
	}
	for k, v := range extraMeta {
		if v != "" {
			order.Metadata[k] = v
		}
	}

	if err := l.DB.CreateOrder(ctx, order); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to create order", err)
	}

	l.Logger.LogOrder("CREATE", order.OrderID, fmt.Sprintf("pending, amount=%d %s", order.AmountCents, order.Currency))
	return &order, nil
}

// AttachPaymentRefs records the gateway references once the payment intent
// or session exists. The columns are canonical; the metadata copies remain
// for audit and legacy lookup compatibility.
func (l *Ledger) AttachPaymentRefs(ctx context.Context, order *models.Order, sessionID, intentID string) error {
	order.CheckoutSessionID = sessionID
	order.PaymentIntentID = intentID
	if order.Metadata == nil {
		order.Metadata = map[string]string{}
	}
	if sessionID != "" {
		order.Metadata[models.MetaSessionID] = sessionID
	}
	if intentID != "" {
		order.Metadata[models.MetaPaymentIntentID] = intentID
	}
	if err := l.DB.SetPaymentRefs(ctx, order); err != nil {
		return errs.Wrap(errs.Internal, "failed to store payment references", err)
	}
	return nil
}

// Get fetches an order by its identifier.
func (l *Ledger) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := l.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load order", err)
	}
	if order == nil {
		return nil, errs.E(errs.NotFound, fmt.Sprintf("order %s not found", orderID))
	}
	return order, nil
}

// Resolve finds an order by internal id or either external payment
// reference, whichever the caller happens to hold.
func (l *Ledger) Resolve(ctx context.Context, idOrRef string) (*models.Order, error) {
	order, err := l.DB.GetOrderByID(ctx, idOrRef)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load order", err)
	}
	if order != nil {
		return order, nil
	}
	order, err = l.DB.GetOrderByExternalRef(ctx, idOrRef)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load order by payment reference", err)
	}
	if order == nil {
		return nil, errs.E(errs.NotFound, fmt.Sprintf("no order for reference %s", idOrRef))
	}
	return order, nil
}

func (l *Ledger) ListByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	orders, err := l.DB.ListOrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list orders", err)
	}
	return orders, nil
}

// MarkPaid applies a confirmed payment to the order. It is idempotent: if
// the order is already completed the existing order is returned unchanged
// and applied is false. Cancelled orders reject the payment outright.
func (l *Ledger) MarkPaid(ctx context.Context, idOrRef, paymentMethod, intentID string) (order *models.Order, applied bool, err error) {
	order, err = l.Resolve(ctx, idOrRef)
	if err != nil {
		return nil, false, err
	}

	switch order.Status {
	case models.OrderCompleted:
		l.Logger.LogOrder("PAID", order.OrderID, "already completed, no-op")
		return order, false, nil
	case models.OrderCancelled:
		return nil, false, errs.E(errs.Conflict, fmt.Sprintf("order %s is cancelled", order.OrderID))
	}

	ok, err := l.DB.CompleteOrder(ctx, order.OrderID, paymentMethod, intentID, time.Now())
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, "failed to mark order paid", err)
	}

	// Reload either way: on ok the row changed under us, on !ok a
	// concurrent writer completed it first.
	order, gerr := l.Get(ctx, order.OrderID)
	if gerr != nil {
		return nil, false, gerr
	}
	if !ok && order.Status != models.OrderCompleted {
		return nil, false, errs.E(errs.Conflict, fmt.Sprintf("order %s cannot be completed from %s", order.OrderID, order.Status))
	}

	if ok {
		l.Logger.LogOrder("PAID", order.OrderID, fmt.Sprintf("completed via %s", paymentMethod))
	}
	return order, ok, nil
}

// MarkFailed records a failed payment attempt. Allowed only from pending or
// processing; the error details land in metadata so the failure is
// diagnosable from the order row alone.
func (l *Ledger) MarkFailed(ctx context.Context, orderID string, gatewayCode, message string) (*models.Order, error) {
	order, err := l.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending && order.Status != models.OrderProcessing {
		return nil, errs.E(errs.Conflict, fmt.Sprintf("order %s cannot fail from %s", orderID, order.Status))
	}

	ok, err := l.DB.TransitionStatus(ctx, orderID,
		[]models.OrderStatus{models.OrderPending, models.OrderProcessing},
		models.OrderFailed, time.Now())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to mark order failed", err)
	}
	if !ok {
		return nil, errs.E(errs.Conflict, fmt.Sprintf("order %s changed state concurrently", orderID))
	}

	if order.Metadata == nil {
		order.Metadata = map[string]string{}
	}
	order.Metadata[models.MetaLastError] = message
	if gatewayCode != "" {
		order.Metadata[models.MetaGatewayErrorCode] = gatewayCode
	}
	if err := l.DB.UpdateMetadata(ctx, orderID, order.Metadata); err != nil {
		l.Logger.Error("ORDER", fmt.Sprintf("failed to record error metadata on %s: %v", orderID, err))
	}

	l.Logger.LogOrder("FAILED", orderID, message)
	return l.Get(ctx, orderID)
}

// MarkProcessing moves an order into processing for a payment attempt.
// Re-entry from failed or processing covers manual retries.
func (l *Ledger) MarkProcessing(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := l.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(models.OrderProcessing) {
		return nil, errs.E(errs.Conflict, fmt.Sprintf("order %s cannot enter processing from %s", orderID, order.Status))
	}
	ok, err := l.DB.TransitionStatus(ctx, orderID,
		[]models.OrderStatus{models.OrderPending, models.OrderFailed, models.OrderProcessing},
		models.OrderProcessing, time.Now())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to mark order processing", err)
	}
	if !ok {
		return nil, errs.E(errs.Conflict, fmt.Sprintf("order %s changed state concurrently", orderID))
	}
	return l.Get(ctx, orderID)
}

// IncrementRetry bumps the retry counter kept in order metadata and returns
// the new count.
func (l *Ledger) IncrementRetry(ctx context.Context, order *models.Order) (int, error) {
	if order.Metadata == nil {
		order.Metadata = map[string]string{}
	}
	count, _ := strconv.Atoi(order.Metadata[models.MetaRetryCount])
	count++
	order.Metadata[models.MetaRetryCount] = strconv.Itoa(count)
	if err := l.DB.UpdateMetadata(ctx, order.OrderID, order.Metadata); err != nil {
		return count, errs.Wrap(errs.Internal, "failed to record retry count", err)
	}
	return count, nil
}
