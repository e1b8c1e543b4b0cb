package models

// Selection is one line of a buyer's cart: a tier and how many units.
type Selection struct {
	TierID   string `json:"tier_id"`
	Quantity int    `json:"quantity"`
}

// DiscountOutcome describes what happened to a supplied discount code.
// An invalid code is not an error: the quote still succeeds with zero
// code discount so the buyer can correct it and keep shopping.
type DiscountOutcome struct {
	Code        string `json:"code,omitempty"`
	IsValid     bool   `json:"is_valid"`
	Reason      string `json:"reason,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

// PriceCalculation is the transient result of one pricing request. It is
// recomputed on every call and never persisted or cached: tier prices and
// discount validity can change between requests.
type PriceCalculation struct {
	SubtotalCents int64  `json:"subtotal_cents"`
	DiscountCents int64  `json:"discount_cents"`
	FeeCents      int64  `json:"fee_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`

	// DiscountSource is "code", "group" or "" depending on which single
	// discount won. Code and group discounts are never stacked.
	DiscountSource string           `json:"discount_source,omitempty"`
	CodeResult     *DiscountOutcome `json:"code_result,omitempty"`
}
