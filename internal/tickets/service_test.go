package tickets_test

import (
	"context"
	"errors"
	"testing"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/ticketcode"
	"ms-checkout/internal/tickets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTicketDB struct {
	byOrder      map[string][]models.Ticket
	codes        map[string]bool
	failAfter    int
	inserts      int
	duplicateAll bool
}

func newMockTicketDB() *mockTicketDB {
	return &mockTicketDB{
		byOrder:   make(map[string][]models.Ticket),
		codes:     make(map[string]bool),
		failAfter: -1,
	}
}

func (m *mockTicketDB) InsertTicket(ctx context.Context, ticket models.Ticket) error {
	if m.failAfter >= 0 && m.inserts >= m.failAfter {
		return errors.New("storage down")
	}
	if m.duplicateAll || m.codes[ticket.TicketCode] {
		return ticketcode.ErrDuplicate
	}
	m.inserts++
	m.codes[ticket.TicketCode] = true
	m.byOrder[ticket.OrderID] = append(m.byOrder[ticket.OrderID], ticket)
	return nil
}

func (m *mockTicketDB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	return m.byOrder[orderID], nil
}

type mockTierReader struct {
	tiers map[string]*models.TicketTier
}

func (m *mockTierReader) GetTier(ctx context.Context, tierID string) (*models.TicketTier, error) {
	return m.tiers[tierID], nil
}

func testTiers() *mockTierReader {
	return &mockTierReader{tiers: map[string]*models.TicketTier{
		"tier-standard": {
			TierID: "tier-standard", EventID: "event-1", EventName: "Summer Fest",
			Name: "Standard", PriceCents: 5000, Currency: "USD",
		},
		"tier-vip": {
			TierID: "tier-vip", EventID: "event-1", EventName: "Summer Fest",
			Name: "VIP", PriceCents: 15000, Currency: "USD",
		},
	}}
}

func newIssuer(db *mockTicketDB) *tickets.Issuer {
	return tickets.NewIssuer(db, testTiers(), ticketcode.NewGenerator(), nil, logger.NewTestLogger())
}

func paidOrder(quantity int, selections string) *models.Order {
	return &models.Order{
		OrderID:  "order-1",
		EventID:  "event-1",
		BuyerID:  "buyer-1",
		Quantity: quantity,
		Status:   models.OrderCompleted,
		Metadata: map[string]string{
			models.MetaSelections: selections,
			"attendee_name":       "Alice Walker",
			"attendee_email":      "alice@example.com",
		},
	}
}

func TestIssueForOrder(t *testing.T) {
	db := newMockTicketDB()
	issuer := newIssuer(db)

	ord := paidOrder(3, `[{"tier_id":"tier-standard","quantity":2},{"tier_id":"tier-vip","quantity":1}]`)
	issued, err := issuer.IssueForOrder(context.Background(), ord)
	require.NoError(t, err)
	require.Len(t, issued, 3)

	assert.Equal(t, "tier-standard", issued[0].TierID)
	assert.Equal(t, "tier-standard", issued[1].TierID)
	assert.Equal(t, "tier-vip", issued[2].TierID)

	codes := make(map[string]bool)
	for _, tk := range issued {
		assert.NotEmpty(t, tk.TicketCode)
		assert.False(t, codes[tk.TicketCode], "duplicate code %s", tk.TicketCode)
		codes[tk.TicketCode] = true

		assert.Equal(t, "order-1", tk.OrderID)
		assert.Equal(t, models.TicketValid, tk.Status)
		assert.Equal(t, "Summer Fest", tk.EventName)
		assert.Equal(t, "Alice Walker", tk.AttendeeName)
		assert.False(t, tk.IssuedAt.IsZero())
	}
	assert.Equal(t, int64(5000), issued[0].PriceAtPurchaseCents)
	assert.Equal(t, int64(15000), issued[2].PriceAtPurchaseCents)
}

func TestIssueForOrderIsIdempotent(t *testing.T) {
	db := newMockTicketDB()
	issuer := newIssuer(db)
	ctx := context.Background()

	ord := paidOrder(2, `[{"tier_id":"tier-standard","quantity":2}]`)
	first, err := issuer.IssueForOrder(ctx, ord)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Webhook replay: same tickets back, nothing minted.
	second, err := issuer.IssueForOrder(ctx, ord)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, 2, db.inserts)
	assert.Equal(t, first[0].TicketCode, second[0].TicketCode)
	assert.Equal(t, first[1].TicketCode, second[1].TicketCode)
}

func TestIssueForOrderResumesPartialIssuance(t *testing.T) {
	db := newMockTicketDB()
	db.failAfter = 1
	issuer := newIssuer(db)
	ctx := context.Background()

	ord := paidOrder(3, `[{"tier_id":"tier-standard","quantity":3}]`)
	partial, err := issuer.IssueForOrder(ctx, ord)
	require.Error(t, err)
	assert.Len(t, partial, 1, "tickets minted before the failure are kept")

	// Storage recovers; the next run completes only the missing units.
	db.failAfter = -1
	issued, err := issuer.IssueForOrder(ctx, ord)
	require.NoError(t, err)
	assert.Len(t, issued, 3)
	assert.Equal(t, 3, db.inserts)
}

func TestIssueForOrderMissingSelections(t *testing.T) {
	issuer := newIssuer(newMockTicketDB())

	ord := paidOrder(2, "")
	delete(ord.Metadata, models.MetaSelections)

	_, err := issuer.IssueForOrder(context.Background(), ord)
	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}

func TestIssueForOrderQuantityMismatch(t *testing.T) {
	issuer := newIssuer(newMockTicketDB())

	ord := paidOrder(5, `[{"tier_id":"tier-standard","quantity":2}]`)
	_, err := issuer.IssueForOrder(context.Background(), ord)
	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}

func TestIssueForOrderExhaustedCodes(t *testing.T) {
	db := newMockTicketDB()
	db.duplicateAll = true
	issuer := newIssuer(db)

	ord := paidOrder(1, `[{"tier_id":"tier-standard","quantity":1}]`)
	_, err := issuer.IssueForOrder(context.Background(), ord)
	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}
