package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	redisrepo "github.com/jwalitptl/admin-authz/internal/repository/redis"
	"github.com/jwalitptl/admin-authz/pkg/logger"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

type flakyRepo struct {
	repository.AuditRepository

	mu       sync.Mutex
	failures int
	appended []string
}

func (r *flakyRepo) Append(_ context.Context, entry *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("connection refused")
	}
	r.appended = append(r.appended, entry.ID)
	return nil
}

func (r *flakyRepo) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.appended...)
}

func setup(t *testing.T, failures int) (*OutboxProcessor, repository.AuditOutbox, *flakyRepo, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.NewNop()
	outbox := redisrepo.NewAuditOutbox(client, "", m)
	repo := &flakyRepo{failures: failures}
	p := NewOutboxProcessor(outbox, repo, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  10 * time.Millisecond,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, logger.Nop(), m)
	return p, outbox, repo, m
}

func enqueue(t *testing.T, outbox repository.AuditOutbox, id string) {
	t.Helper()
	require.NoError(t, outbox.Enqueue(context.Background(), &model.OutboxMessage{
		Entry: &model.AuditEntry{
			ID:         id,
			UserID:     7,
			Action:     "POST",
			EntityName: "surgeries",
			Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Outcome:    model.AuditOutcomeSuccess,
		},
		EnqueuedAt: time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
	}))
}

func TestOutboxProcessor_ReplaysAndAcks(t *testing.T) {
	ctx := context.Background()
	p, outbox, repo, m := setup(t, 0)
	enqueue(t, outbox, "a")
	enqueue(t, outbox, "b")

	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, repo.ids())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxEventsProcessed))

	left, err := outbox.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestOutboxProcessor_RetriesInline(t *testing.T) {
	p, outbox, repo, _ := setup(t, 1)
	enqueue(t, outbox, "a")

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, repo.ids())
}

func TestOutboxProcessor_ReleasesAfterExhaustingRetries(t *testing.T) {
	ctx := context.Background()
	p, outbox, repo, m := setup(t, 2)
	enqueue(t, outbox, "a")

	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.ids())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsFailed))

	msgs, err := outbox.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Attempts)
	assert.Equal(t, "connection refused", msgs[0].LastError)
	require.NoError(t, outbox.Release(ctx, msgs[0]))

	// store is back
	n, err = p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, repo.ids())
}

func TestOutboxProcessor_RedeliveryIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	p, outbox, repo, m := setup(t, 0)
	enqueue(t, outbox, "a")
	_, err := p.ProcessOnce(ctx)
	require.NoError(t, err)

	// same entry delivered again, e.g. after an ack was lost
	enqueue(t, outbox, "a")
	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, repo.ids())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsDuplicate))
}

func TestOutboxProcessor_StartRecoversInFlight(t *testing.T) {
	p, outbox, repo, _ := setup(t, 0)
	enqueue(t, outbox, "orphan")
	_, err := outbox.Claim(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(repo.ids()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestNewOutboxProcessor_RejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(nil, nil, OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	})
}

func TestOutboxProcessor_DeadLettersAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.NewNop()
	outbox := redisrepo.NewAuditOutbox(client, "", m)
	repo := &flakyRepo{failures: 1 << 20}
	p := NewOutboxProcessor(outbox, repo, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  10 * time.Millisecond,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		MaxAttempts:   3,
	}, logger.Nop(), m)
	enqueue(t, outbox, "a")

	for i := 0; i < 5; i++ {
		_, err := p.ProcessOnce(ctx)
		require.NoError(t, err)
	}

	left, err := outbox.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.Empty(t, repo.ids())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxDeadLettered))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.OutboxEventsFailed))

	inFlight, err := mr.List("audit:outbox:processing")
	if err == nil {
		assert.Empty(t, inFlight)
	}
	dead, err := mr.List("audit:outbox:dead")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0], `"attempts":3`)
	assert.Contains(t, dead[0], "connection refused")
}

func TestNewOutboxProcessor_DefaultsMaxAttempts(t *testing.T) {
	p, _, _, _ := setup(t, 0)
	assert.Equal(t, defaultMaxAttempts, p.config.MaxAttempts)
}
