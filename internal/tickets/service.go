package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/ticketcode"
	"ms-checkout/internal/tickets/qr"

	"github.com/google/uuid"
)

type TicketDBLayer interface {
	InsertTicket(ctx context.Context, ticket models.Ticket) error
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
}

type TierReader interface {
	GetTier(ctx context.Context, tierID string) (*models.TicketTier, error)
}

// Issuer turns a paid order into exactly Quantity tickets, each with a
// unique code and a snapshot of tier/event data taken at issuance time.
type Issuer struct {
	DB     TicketDBLayer
	Tiers  TierReader
	Codes  *ticketcode.Generator
	QR     *qr.Generator
	Logger *logger.Logger
}

func NewIssuer(db TicketDBLayer, tiers TierReader, codes *ticketcode.Generator, qrGen *qr.Generator, log *logger.Logger) *Issuer {
	return &Issuer{DB: db, Tiers: tiers, Codes: codes, QR: qrGen, Logger: log}
}

// IssueForOrder is idempotent and resumable. Tickets already persisted for
// the order count toward its quantity, so a webhook replay is a no-op and a
// partially failed issuance picks up where it stopped instead of minting
// duplicates or reversing the order.
func (i *Issuer) IssueForOrder(ctx context.Context, order *models.Order) ([]models.Ticket, error) {
	existing, err := i.DB.GetTicketsByOrder(ctx, order.OrderID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load existing tickets", err)
	}
	if len(existing) >= order.Quantity {
		return existing, nil
	}

	units, err := flattenSelections(order)
	if err != nil {
		return nil, err
	}
	if len(units) != order.Quantity {
		return nil, errs.E(errs.Internal, fmt.Sprintf("order %s selections cover %d units, quantity is %d", order.OrderID, len(units), order.Quantity))
	}

	// Resume after whatever was already issued. The flattened unit list is
	// deterministic, so index len(existing) is the first missing ticket.
	tierCache := make(map[string]*models.TicketTier)
	issued := existing

	for idx := len(existing); idx < len(units); idx++ {
		tierID := units[idx]

		tier, ok := tierCache[tierID]
		if !ok {
			tier, err = i.Tiers.GetTier(ctx, tierID)
			if err != nil {
				return issued, errs.Wrap(errs.Internal, "failed to load tier for issuance", err)
			}
			if tier == nil {
				return issued, errs.E(errs.Internal, fmt.Sprintf("tier %s vanished before issuance", tierID))
			}
			tierCache[tierID] = tier
		}

		ticket, err := i.mint(ctx, order, tier)
		if err != nil {
			// Order stays paid; the orchestrator re-runs issuance later.
			return issued, err
		}
		issued = append(issued, *ticket)
	}

	i.Logger.LogOrder("TICKETS", order.OrderID, fmt.Sprintf("issued %d of %d tickets", len(issued), order.Quantity))
	return issued, nil
}

func (i *Issuer) mint(ctx context.Context, order *models.Order, tier *models.TicketTier) (*models.Ticket, error) {
	var minted models.Ticket

	_, err := i.Codes.Mint(ctx, func(ctx context.Context, code string) error {
		ticket := models.Ticket{
			TicketID:             uuid.NewString(),
			OrderID:              order.OrderID,
			EventID:              order.EventID,
			TierID:               tier.TierID,
			TicketCode:           code,
			Status:               models.TicketValid,
			TierName:             tier.Name,
			EventName:            tier.EventName,
			PriceAtPurchaseCents: tier.PriceCents,
			Currency:             tier.Currency,
			IssuedAt:             time.Now(),
		}
		if order.Metadata != nil {
			ticket.AttendeeName = order.Metadata["attendee_name"]
			ticket.AttendeeEmail = order.Metadata["attendee_email"]
		}

		if i.QR != nil {
			qrBytes, err := i.QR.Encode(qr.Payload{
				TicketCode: code,
				OrderID:    order.OrderID,
				EventID:    order.EventID,
				IssuedAt:   ticket.IssuedAt,
			})
			if err != nil {
				return fmt.Errorf("failed to generate QR: %w", err)
			}
			ticket.QRCode = qrBytes
		}

		if err := i.DB.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		minted = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &minted, nil
}

// flattenSelections expands the order's per-tier selections, stored as JSON
// in metadata at checkout time, into one tier id per ticket unit.
func flattenSelections(order *models.Order) ([]string, error) {
	raw := ""
	if order.Metadata != nil {
		raw = order.Metadata[models.MetaSelections]
	}
	if raw == "" {
		return nil, errs.E(errs.Internal, fmt.Sprintf("order %s has no selection metadata", order.OrderID))
	}

	var selections []models.Selection
	if err := json.Unmarshal([]byte(raw), &selections); err != nil {
		return nil, errs.Wrap(errs.Internal, "invalid selection metadata", err)
	}

	var units []string
	for _, sel := range selections {
		for n := 0; n < sel.Quantity; n++ {
			units = append(units, sel.TierID)
		}
	}
	return units, nil
}
