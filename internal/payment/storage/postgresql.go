package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ms-checkout/internal/logger"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB builds the attempt store on an existing
// connection, sharing the service's pool.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{db: db, log: log}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment_attempts table: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment_attempts table: %w", err)
	}

	log.LogDatabase("SUCCESS", "payment_attempts", "attempt store ready")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS payment_attempts (
        attempt_id VARCHAR(36) PRIMARY KEY,
        order_id VARCHAR(36) NOT NULL,
        intent_id VARCHAR(255),
        status VARCHAR(50) NOT NULL,
        error_code VARCHAR(100),
        error_message TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create payment_attempts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payment_attempts_order_id ON payment_attempts(order_id);",
		"CREATE INDEX IF NOT EXISTS idx_payment_attempts_intent_id ON payment_attempts(intent_id);",
	}
	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// SaveAttempt records one gateway attempt.
func (s *PostgreSQLStore) SaveAttempt(ctx context.Context, attempt *Attempt) error {
	query := `
    INSERT INTO payment_attempts (
        attempt_id, order_id, intent_id, status, error_code, error_message, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := s.db.ExecContext(ctx, query,
		attempt.AttemptID, attempt.OrderID, attempt.IntentID, attempt.Status,
		attempt.ErrorCode, attempt.ErrorMessage, attempt.CreatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment attempt %s: %s", attempt.AttemptID, err.Error()))
		return fmt.Errorf("failed to save payment attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts for an order, newest first.
func (s *PostgreSQLStore) ListAttempts(ctx context.Context, orderID string) ([]*Attempt, error) {
	query := `
    SELECT attempt_id, order_id, intent_id, status, error_code, error_message, created_at
    FROM payment_attempts
    WHERE order_id = $1
    ORDER BY created_at DESC
    `
	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt := &Attempt{}
		err := rows.Scan(
			&attempt.AttemptID, &attempt.OrderID, &attempt.IntentID, &attempt.Status,
			&attempt.ErrorCode, &attempt.ErrorMessage, &attempt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
