package fulfillment_test

import (
	"context"
	"testing"
	"time"

	"ms-checkout/internal/fulfillment"
	"ms-checkout/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestEventGuardIntegration exercises the webhook dedupe guard against a
// real Redis container.
func TestEventGuardIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})
	defer client.Close()

	guard := fulfillment.NewEventGuard(client, logger.NewTestLogger())

	// First delivery of an event claims it.
	acquired, err := guard.Acquire(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, acquired, "Expected first delivery to claim the event")

	// A redelivery of the same event is refused.
	acquired, err = guard.Acquire(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, acquired, "Expected redelivery to be deduplicated")

	// A different event is independent.
	acquired, err = guard.Acquire(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, acquired, "Expected a different event to be claimable")

	// Releasing after a processing failure lets a redelivery retry.
	require.NoError(t, guard.Release(ctx, "evt_1"))
	acquired, err = guard.Acquire(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, acquired, "Expected event to be claimable after release")
}

func TestEventGuardTTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})
	defer client.Close()

	guard := fulfillment.NewEventGuard(client, logger.NewTestLogger())
	guard.TTL = 500 * time.Millisecond

	acquired, err := guard.Acquire(ctx, "evt_ttl")
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = guard.Acquire(ctx, "evt_ttl")
	require.NoError(t, err)
	require.False(t, acquired)

	time.Sleep(time.Second)

	acquired, err = guard.Acquire(ctx, "evt_ttl")
	require.NoError(t, err)
	assert.True(t, acquired, "Expected claim to expire with the TTL")
}
