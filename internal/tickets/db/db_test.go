package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/ticketcode"
	"ms-checkout/internal/tickets/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Ticket)(nil)))

	return &db.DB{Bun: bunDB}
}

func sampleTicket(id, code string) models.Ticket {
	return models.Ticket{
		TicketID:             id,
		OrderID:              "order-1",
		EventID:              "event-1",
		TierID:               "tier-standard",
		TicketCode:           code,
		Status:               models.TicketValid,
		TierName:             "Standard",
		EventName:            "Summer Fest",
		PriceAtPurchaseCents: 5000,
		Currency:             "USD",
		IssuedAt:             time.Now().Round(time.Second),
	}
}

func TestInsertAndGetTickets(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := sampleTicket("t1", "TKT-AAA-BBBCCCDDD")
	second := sampleTicket("t2", "TKT-AAA-EEEFFFGGG")
	second.IssuedAt = first.IssuedAt.Add(time.Second)

	require.NoError(t, store.InsertTicket(ctx, first))
	require.NoError(t, store.InsertTicket(ctx, second))

	got, err := store.GetTicketsByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TicketID, "oldest first")
	assert.Equal(t, "t2", got[1].TicketID)

	count, err := store.CountByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInsertTicketDuplicateCode(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, sampleTicket("t1", "TKT-AAA-BBBCCCDDD")))

	err := store.InsertTicket(ctx, sampleTicket("t2", "TKT-AAA-BBBCCCDDD"))
	require.ErrorIs(t, err, ticketcode.ErrDuplicate)

	count, err := store.CountByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetTicketByCode(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, sampleTicket("t1", "TKT-AAA-BBBCCCDDD")))

	got, err := store.GetTicketByCode(ctx, "TKT-AAA-BBBCCCDDD")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.TicketID)

	missing, err := store.GetTicketByCode(ctx, "TKT-XXX-YYYZZZWWW")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
