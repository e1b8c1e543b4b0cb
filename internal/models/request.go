package models

type PriceRequest struct {
	Selections   []Selection `json:"selections"`
	DiscountCode string      `json:"discount_code,omitempty"`
	Currency     string      `json:"currency"`
}

type CheckoutRequest struct {
	EventID       string      `json:"event_id"`
	Selections    []Selection `json:"selections"`
	DiscountCode  string      `json:"discount_code,omitempty"`
	Currency      string      `json:"currency"`
	AttendeeName  string      `json:"attendee_name,omitempty"`
	AttendeeEmail string      `json:"attendee_email,omitempty"`
}

type CheckoutResponse struct {
	Order        *Order            `json:"order"`
	Pricing      *PriceCalculation `json:"pricing"`
	ClientSecret string            `json:"client_secret"`
}

type RetryRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

type ConfirmResponse struct {
	Order   *Order   `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
