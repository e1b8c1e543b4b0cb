package database

import (
	"context"

	"github.com/uptrace/bun"

	"ms-checkout/internal/models"
)

// schemaModels lists every table in dependency order.
var schemaModels = []interface{}{
	(*models.TicketTier)(nil),
	(*models.GroupPricingRule)(nil),
	(*models.DiscountCode)(nil),
	(*models.Order)(nil),
	(*models.Ticket)(nil),
}

// CreateSchema builds all tables from the bun models. Production uses the
// SQL migrations under migrations/; this path exists for the in-memory
// sqlite databases the tests run against.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range schemaModels {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DropSchema removes all tables in reverse dependency order.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for i := len(schemaModels) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(schemaModels[i]).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
