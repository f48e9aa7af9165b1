package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

func setupOutbox(t *testing.T) (repository.AuditOutbox, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewAuditOutbox(client, "", metrics.NewNop()), mr
}

func message(id string) *model.OutboxMessage {
	return &model.OutboxMessage{
		Entry: &model.AuditEntry{
			ID:         id,
			UserID:     7,
			Action:     "POST",
			EntityName: "surgeries",
			Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Outcome:    model.AuditOutcomeSuccess,
		},
		EnqueuedAt: time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
	}
}

func TestAuditOutbox_EnqueueClaimAck(t *testing.T) {
	ctx := context.Background()
	outbox, mr := setupOutbox(t)

	require.NoError(t, outbox.Enqueue(ctx, message("a")))
	require.NoError(t, outbox.Enqueue(ctx, message("b")))

	n, err := outbox.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	claimed, err := outbox.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	// FIFO: first enqueued is first claimed
	assert.Equal(t, "a", claimed[0].Entry.ID)
	assert.Equal(t, "b", claimed[1].Entry.ID)
	assert.NotEmpty(t, claimed[0].Receipt)

	inFlight, err := mr.List("audit:outbox:processing")
	require.NoError(t, err)
	assert.Len(t, inFlight, 2)

	for _, msg := range claimed {
		require.NoError(t, outbox.Ack(ctx, msg))
	}
	assert.False(t, mr.Exists("audit:outbox:processing"))

	n, err = outbox.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditOutbox_ClaimRespectsMax(t *testing.T) {
	ctx := context.Background()
	outbox, _ := setupOutbox(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, outbox.Enqueue(ctx, message(id)))
	}

	claimed, err := outbox.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	n, err := outbox.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAuditOutbox_Release(t *testing.T) {
	ctx := context.Background()
	outbox, mr := setupOutbox(t)

	require.NoError(t, outbox.Enqueue(ctx, message("a")))
	claimed, err := outbox.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	msg := claimed[0]
	msg.Attempts++
	msg.LastError = "connection refused"
	require.NoError(t, outbox.Release(ctx, msg))
	assert.False(t, mr.Exists("audit:outbox:processing"))

	again, err := outbox.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 1, again[0].Attempts)
	assert.Equal(t, "connection refused", again[0].LastError)
}

func TestAuditOutbox_RecoverInFlight(t *testing.T) {
	ctx := context.Background()
	outbox, _ := setupOutbox(t)

	require.NoError(t, outbox.Enqueue(ctx, message("a")))
	require.NoError(t, outbox.Enqueue(ctx, message("b")))
	_, err := outbox.Claim(ctx, 2)
	require.NoError(t, err)

	recovered, err := outbox.RecoverInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), recovered)

	n, err := outbox.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAuditOutbox_PoisonMessageIsBuried(t *testing.T) {
	ctx := context.Background()
	outbox, mr := setupOutbox(t)

	_, err := mr.Lpush("audit:outbox:pending", "not json")
	require.NoError(t, err)
	require.NoError(t, outbox.Enqueue(ctx, message("ok")))

	claimed, err := outbox.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "ok", claimed[0].Entry.ID)

	dead, err := mr.List("audit:outbox:dead")
	require.NoError(t, err)
	assert.Equal(t, []string{"not json"}, dead)
}

func TestAuditOutbox_Bury(t *testing.T) {
	ctx := context.Background()
	outbox, mr := setupOutbox(t)
	require.NoError(t, outbox.Enqueue(ctx, message("a")))

	claimed, err := outbox.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	claimed[0].Attempts = 10
	claimed[0].LastError = "connection refused"

	require.NoError(t, outbox.Bury(ctx, claimed[0]))
	assert.Empty(t, claimed[0].Receipt)

	n, err := outbox.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, mr.Exists("audit:outbox:processing"))

	dead, err := mr.List("audit:outbox:dead")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0], `"attempts":10`)
	assert.Contains(t, dead[0], `"last_error":"connection refused"`)
}

func TestAuditOutbox_RedisDown(t *testing.T) {
	ctx := context.Background()
	outbox, mr := setupOutbox(t)
	mr.Close()

	assert.Error(t, outbox.Enqueue(ctx, message("a")))
	_, err := outbox.Claim(ctx, 1)
	assert.Error(t, err)
}
