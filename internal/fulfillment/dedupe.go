package fulfillment

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/logger"

	"github.com/go-redis/redis/v8"
)

// EventGuard is the fast-path dedupe for webhook deliveries: SETNX on the
// event id with a TTL. It is an optimization only. The conditional update
// in the order store remains the authority, so a redis outage degrades to
// "every delivery hits the database" rather than to double application.
type EventGuard struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewEventGuard(client *redis.Client, log *logger.Logger) *EventGuard {
	return &EventGuard{Client: client, TTL: 24 * time.Hour, Logger: log}
}

// Acquire claims an event id. False means another delivery of the same
// event already claimed it.
func (g *EventGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	key := "webhook_event:" + eventID
	ok, err := g.Client.SetNX(ctx, key, "1", g.TTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release frees a claimed event id so a redelivery can retry after a
// processing failure.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	key := "webhook_event:" + eventID
	if _, err := g.Client.Del(ctx, key).Result(); err != nil {
		g.Logger.Warn("WEBHOOK", fmt.Sprintf("failed to release event guard %s: %v", eventID, err))
		return err
	}
	return nil
}
