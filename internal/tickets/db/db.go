package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ms-checkout/internal/models"
	"ms-checkout/internal/ticketcode"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type DB struct {
	Bun *bun.DB
}

// InsertTicket persists one ticket. A rejection by the ticket_code unique
// index comes back as ticketcode.ErrDuplicate so the code generator can
// retry with a fresh candidate.
func (d *DB) InsertTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return ticketcode.ErrDuplicate
	}
	return err
}

// GetTicketsByOrder → all tickets linked to an order, oldest first
func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// CountByOrder → how many tickets an order already has
func (d *DB) CountByOrder(ctx context.Context, orderID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("order_id = ?", orderID).
		Count(ctx)
}

// GetTicketByCode → lookup by the human-readable code; (nil, nil) if absent
func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// isUniqueViolation recognizes a unique-index rejection from either
// supported driver: Postgres in production, SQLite in package tests.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
