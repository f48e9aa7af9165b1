package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/admin-authz/pkg/messaging"
)

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := zerolog.Nop()
	broker := NewRedisBroker(client, &log)
	t.Cleanup(func() { broker.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := broker.Subscribe(ctx, messaging.ChannelAuditEntries)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, messaging.ChannelAuditEntries, map[string]string{"id": "a1"}))

	select {
	case raw := <-msgs:
		var got map[string]string
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "a1", got["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-msgs
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBroker_BreakerOpensAfterFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	log := zerolog.Nop()
	broker := NewRedisBroker(client, &log)
	t.Cleanup(func() { broker.Close() })
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.Error(t, broker.Publish(ctx, "c", "x"))
	}
	err := broker.Publish(ctx, "c", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "://nope"})
	assert.Error(t, err)
}
