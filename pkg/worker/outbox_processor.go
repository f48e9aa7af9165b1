package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	"github.com/jwalitptl/admin-authz/pkg/logger"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// DedupeTTL is how long an appended entry id is remembered so a
	// redelivered message is acknowledged without touching the store.
	DedupeTTL time.Duration
	// MaxAttempts is how many failed replays a message survives before it
	// is moved to the dead list.
	MaxAttempts int
}

const defaultMaxAttempts = 10

// OutboxProcessor replays audit entries whose direct append failed.
type OutboxProcessor struct {
	outbox  repository.AuditOutbox
	repo    repository.AuditRepository
	seen    *cache.Cache
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	outbox repository.AuditOutbox,
	repo repository.AuditRepository,
	config OutboxProcessorConfig,
	log *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = 10 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}

	return &OutboxProcessor{
		outbox:  outbox,
		repo:    repo,
		seen:    cache.New(config.DedupeTTL, 2*config.DedupeTTL),
		config:  config,
		logger:  log.Channel(logger.ChannelAuditOps),
		metrics: metrics,
	}
}

// Start blocks until ctx is cancelled. Messages left in flight by a previous
// run are returned to the queue first.
func (p *OutboxProcessor) Start(ctx context.Context) {
	if n, err := p.outbox.RecoverInFlight(ctx); err != nil {
		p.logger.Error(err, "Failed to recover in-flight audit entries")
	} else if n > 0 {
		p.logger.Warn("Recovered in-flight audit entries", "count", n)
	}

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting audit outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down audit outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process audit outbox")
			}
		}
	}
}

// ProcessOnce claims one batch and replays it. It returns how many entries
// were settled.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	msgs, err := p.outbox.Claim(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim audit entries: %w", err)
	}

	settled := 0
	for _, msg := range msgs {
		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Error(err, "Failed to replay audit entry",
				"audit_id", msg.Entry.ID,
				"attempts", msg.Attempts)
			continue
		}
		settled++
	}

	if n, err := p.outbox.Len(ctx); err == nil {
		p.metrics.OutboxQueueSize.Set(float64(n))
	}
	return settled, nil
}

func (p *OutboxProcessor) processMessage(ctx context.Context, msg *model.OutboxMessage) error {
	if _, found := p.seen.Get(msg.Entry.ID); found {
		p.metrics.OutboxEventsDuplicate.Inc()
		return p.outbox.Ack(ctx, msg)
	}

	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.repo.Append(ctx, msg.Entry)
	})
	p.metrics.AuditAppends.WithLabelValues("replay", metrics.Status(err)).Inc()

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		p.metrics.OutboxRetries.Inc()
		msg.Attempts++
		msg.LastError = err.Error()
		if msg.Attempts >= p.config.MaxAttempts {
			p.deadLetter(ctx, msg)
			return err
		}
		if releaseErr := p.outbox.Release(ctx, msg); releaseErr != nil {
			p.logger.Error(releaseErr, "Failed to release audit entry", "audit_id", msg.Entry.ID)
		}
		return err
	}

	p.seen.SetDefault(msg.Entry.ID, struct{}{})
	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.outbox.Ack(ctx, msg); err != nil {
		// the entry is stored; a redelivery is absorbed by the dedupe cache
		// and the store's idempotent append
		return fmt.Errorf("failed to ack audit entry: %w", err)
	}
	return nil
}

// deadLetter parks msg and logs the whole entry so it survives even if the
// dead list is lost.
func (p *OutboxProcessor) deadLetter(ctx context.Context, msg *model.OutboxMessage) {
	if err := p.outbox.Bury(ctx, msg); err != nil {
		p.logger.Error(err, "Failed to dead-letter audit entry",
			"audit_id", msg.Entry.ID,
			"entry", msg.Entry)
		return
	}
	p.metrics.OutboxDeadLettered.Inc()
	p.logger.Error(nil, "Audit entry dead-lettered",
		"audit_id", msg.Entry.ID,
		"attempts", msg.Attempts,
		"last_error", msg.LastError,
		"entry", msg.Entry)
}

// Helper retry function
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
