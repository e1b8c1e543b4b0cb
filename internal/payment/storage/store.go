package storage

import (
	"context"
	"time"
)

// Attempt is one gateway attempt against an order. Raw processor error
// text is kept here for audit only; it never reaches clients.
type Attempt struct {
	AttemptID    string    `json:"attempt_id"`
	OrderID      string    `json:"order_id"`
	IntentID     string    `json:"intent_id,omitempty"`
	Status       string    `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store interface {
	SaveAttempt(ctx context.Context, attempt *Attempt) error
	ListAttempts(ctx context.Context, orderID string) ([]*Attempt, error)

	Close() error
	HealthCheck() error
}
