package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"ms-checkout/internal/config"
	"ms-checkout/internal/errs"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
)

// TierReader supplies the read-only pricing inputs owned by the event
// management side of the platform.
type TierReader interface {
	GetTier(ctx context.Context, tierID string) (*models.TicketTier, error)
	GroupRulesForTier(ctx context.Context, tierID string) ([]models.GroupPricingRule, error)
}

// DiscountReader resolves discount codes. A missing code returns (nil, nil);
// only storage failures are errors.
type DiscountReader interface {
	GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error)
}

// Engine computes subtotal, discounts, fees and total for a selection.
// All arithmetic is in integer minor-currency units.
type Engine struct {
	Tiers     TierReader
	Discounts DiscountReader
	Fees      config.FeeConfig
	Logger    *logger.Logger
}

func NewEngine(tiers TierReader, discounts DiscountReader, fees config.FeeConfig, log *logger.Logger) *Engine {
	return &Engine{Tiers: tiers, Discounts: discounts, Fees: fees, Logger: log}
}

// Calculate prices a selection. An invalid discount code is reported in the
// result's CodeResult, not as an error, so callers can surface the reason
// and let the buyer keep shopping.
func (e *Engine) Calculate(ctx context.Context, selections []models.Selection, discountCode, currency string) (*models.PriceCalculation, error) {
	if len(selections) == 0 {
		return nil, errs.E(errs.Validation, "at least one ticket selection is required")
	}

	now := time.Now()

	var subtotal int64
	var groupDiscount int64

	for _, sel := range selections {
		if sel.Quantity < 1 {
			return nil, errs.E(errs.Validation, fmt.Sprintf("invalid quantity %d for tier %s", sel.Quantity, sel.TierID))
		}

		tier, err := e.Tiers.GetTier(ctx, sel.TierID)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "failed to load ticket tier", err)
		}
		if tier == nil {
			return nil, errs.E(errs.NotFound, fmt.Sprintf("ticket tier %s not found", sel.TierID))
		}
		if !tier.OnSale(now) {
			return nil, errs.E(errs.Validation, fmt.Sprintf("tier %s is not on sale", sel.TierID))
		}
		if tier.Currency != currency {
			return nil, errs.E(errs.Validation, fmt.Sprintf("tier %s is priced in %s, not %s", sel.TierID, tier.Currency, currency))
		}
		if tier.MinPerOrder > 0 && sel.Quantity < tier.MinPerOrder {
			return nil, errs.E(errs.Validation, fmt.Sprintf("tier %s requires at least %d tickets per order", sel.TierID, tier.MinPerOrder))
		}
		if tier.MaxPerOrder > 0 && sel.Quantity > tier.MaxPerOrder {
			return nil, errs.E(errs.Validation, fmt.Sprintf("tier %s allows at most %d tickets per order", sel.TierID, tier.MaxPerOrder))
		}
		if sel.Quantity > tier.Remaining() {
			return nil, errs.E(errs.Validation, fmt.Sprintf("only %d tickets remain for tier %s", tier.Remaining(), sel.TierID))
		}

		tierSubtotal := tier.PriceCents * int64(sel.Quantity)
		subtotal += tierSubtotal

		// Group discount: best matching rule per tier, applied to that
		// tier's subtotal only.
		rules, err := e.Tiers.GroupRulesForTier(ctx, sel.TierID)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "failed to load group pricing rules", err)
		}
		var bestPercent float64
		for _, rule := range rules {
			if rule.MinQuantity <= sel.Quantity && rule.DiscountPercent > bestPercent {
				bestPercent = rule.DiscountPercent
			}
		}
		if bestPercent > 0 {
			groupDiscount += percentCents(tierSubtotal, bestPercent)
		}
	}

	codeOutcome := e.evaluateCode(ctx, discountCode, selections, subtotal, now)

	// Exclusivity: the buyer gets the single larger discount, never both.
	discount := groupDiscount
	source := ""
	if groupDiscount > 0 {
		source = "group"
	}
	if codeOutcome != nil && codeOutcome.IsValid && codeOutcome.AmountCents > discount {
		discount = codeOutcome.AmountCents
		source = "code"
	}
	if discount > subtotal {
		discount = subtotal
	}

	postDiscount := subtotal - discount
	fees := feeCents(postDiscount, e.Fees.PlatformPercentBps, e.Fees.PlatformFixedCents)

	calc := &models.PriceCalculation{
		SubtotalCents:  subtotal,
		DiscountCents:  discount,
		FeeCents:       fees,
		TotalCents:     postDiscount + fees,
		Currency:       currency,
		DiscountSource: source,
		CodeResult:     codeOutcome,
	}

	if e.Logger != nil {
		e.Logger.Info("PRICING", fmt.Sprintf("subtotal=%d discount=%d fees=%d total=%d %s (est. processing cost %d)",
			calc.SubtotalCents, calc.DiscountCents, calc.FeeCents, calc.TotalCents, currency,
			e.GatewayCostCents(calc.TotalCents)))
	}

	return calc, nil
}

// evaluateCode validates a discount code and computes its amount. Every
// rejection path produces an IsValid:false outcome with a reason.
func (e *Engine) evaluateCode(ctx context.Context, code string, selections []models.Selection, subtotal int64, now time.Time) *models.DiscountOutcome {
	if code == "" {
		return nil
	}

	outcome := &models.DiscountOutcome{Code: code}

	dc, err := e.Discounts.GetDiscountCode(ctx, code)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Error("PRICING", fmt.Sprintf("discount lookup failed for %s: %v", code, err))
		}
		outcome.Reason = "discount code could not be checked"
		return outcome
	}
	if dc == nil {
		outcome.Reason = "discount code not found"
		return outcome
	}

	if !dc.ValidFrom.IsZero() && now.Before(dc.ValidFrom) {
		outcome.Reason = "discount code is not yet active"
		return outcome
	}
	if !dc.ValidUntil.IsZero() && now.After(dc.ValidUntil) {
		outcome.Reason = "discount code has expired"
		return outcome
	}
	if dc.MaxUses > 0 && dc.UseCount >= dc.MaxUses {
		outcome.Reason = "discount code usage limit reached"
		return outcome
	}
	if dc.MinPurchaseCents > 0 && subtotal < dc.MinPurchaseCents {
		outcome.Reason = fmt.Sprintf("order must be at least %d to use this code", dc.MinPurchaseCents)
		return outcome
	}

	applies := false
	for _, sel := range selections {
		if dc.AppliesToTier(sel.TierID) {
			applies = true
			break
		}
	}
	if !applies {
		outcome.Reason = "discount code does not apply to the selected tiers"
		return outcome
	}

	var amount int64
	switch dc.Type {
	case models.DiscountPercentage:
		amount = percentCents(subtotal, dc.Percent)
	case models.DiscountFixed:
		amount = dc.AmountCents
	default:
		outcome.Reason = "unsupported discount type"
		return outcome
	}
	if amount > subtotal {
		amount = subtotal
	}

	outcome.IsValid = true
	outcome.AmountCents = amount
	return outcome
}

// GatewayCostCents estimates what the payment processor will charge for a
// given total. Not part of the buyer-facing price; the platform fee is
// sized to absorb it.
func (e *Engine) GatewayCostCents(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return feeCents(totalCents, e.Fees.GatewayPercentBps, e.Fees.GatewayFixedCents)
}

// percentCents applies a percentage to an amount of cents, rounding half up.
func percentCents(amount int64, percent float64) int64 {
	bps := int64(math.Round(percent * 100))
	return (amount*bps + 5000) / 10000
}

// feeCents is round-half-up(amount × bps) plus the fixed component.
func feeCents(amount, bps, fixed int64) int64 {
	return (amount*bps+5000)/10000 + fixed
}
