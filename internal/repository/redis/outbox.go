package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

const defaultKeyPrefix = "audit:outbox"

// auditOutbox is a reliable queue on two Redis lists. Claim moves a message
// from pending to processing atomically; Ack removes it from processing.
type auditOutbox struct {
	client     redis.UniversalClient
	pending    string
	processing string
	dead       string
	metrics    *metrics.Metrics
}

// NewAuditOutbox builds the outbox under keyPrefix (default "audit:outbox").
func NewAuditOutbox(client redis.UniversalClient, keyPrefix string, m *metrics.Metrics) repository.AuditOutbox {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &auditOutbox{
		client:     client,
		pending:    keyPrefix + ":pending",
		processing: keyPrefix + ":processing",
		dead:       keyPrefix + ":dead",
		metrics:    m,
	}
}

func (o *auditOutbox) Enqueue(ctx context.Context, msg *model.OutboxMessage) (err error) {
	defer o.observe("outbox_enqueue", &err)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}
	if err = o.client.LPush(ctx, o.pending, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	return nil
}

func (o *auditOutbox) Claim(ctx context.Context, max int) (_ []*model.OutboxMessage, err error) {
	defer o.observe("outbox_claim", &err)

	var claimed []*model.OutboxMessage
	for len(claimed) < max {
		raw, popErr := o.client.RPopLPush(ctx, o.pending, o.processing).Result()
		if errors.Is(popErr, redis.Nil) {
			break
		}
		if popErr != nil {
			return claimed, fmt.Errorf("failed to claim outbox message: %w", popErr)
		}

		var msg model.OutboxMessage
		if jsonErr := json.Unmarshal([]byte(raw), &msg); jsonErr != nil || msg.Entry == nil {
			if deadErr := o.bury(ctx, raw, raw); deadErr != nil {
				return claimed, deadErr
			}
			continue
		}
		msg.Receipt = raw
		claimed = append(claimed, &msg)
	}
	return claimed, nil
}

// bury removes receipt from processing and pushes payload onto the dead list.
func (o *auditOutbox) bury(ctx context.Context, receipt string, payload interface{}) error {
	_, err := o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, o.processing, 1, receipt)
		pipe.LPush(ctx, o.dead, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move message to dead list: %w", err)
	}
	return nil
}

// Bury parks a claimed message, with its final attempt count and error, on
// the dead list.
func (o *auditOutbox) Bury(ctx context.Context, msg *model.OutboxMessage) (err error) {
	defer o.observe("outbox_bury", &err)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}
	if err = o.bury(ctx, msg.Receipt, payload); err != nil {
		return err
	}
	msg.Receipt = ""
	return nil
}

func (o *auditOutbox) Ack(ctx context.Context, msg *model.OutboxMessage) (err error) {
	defer o.observe("outbox_ack", &err)

	if err = o.client.LRem(ctx, o.processing, 1, msg.Receipt).Err(); err != nil {
		return fmt.Errorf("failed to ack outbox message: %w", err)
	}
	return nil
}

// Release puts a claimed message back at the tail of the pending queue with
// its updated attempt count.
func (o *auditOutbox) Release(ctx context.Context, msg *model.OutboxMessage) (err error) {
	defer o.observe("outbox_release", &err)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}

	_, err = o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, o.processing, 1, msg.Receipt)
		pipe.LPush(ctx, o.pending, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to release outbox message: %w", err)
	}
	msg.Receipt = ""
	return nil
}

func (o *auditOutbox) RecoverInFlight(ctx context.Context) (n int64, err error) {
	defer o.observe("outbox_recover", &err)

	for {
		_, popErr := o.client.RPopLPush(ctx, o.processing, o.pending).Result()
		if errors.Is(popErr, redis.Nil) {
			return n, nil
		}
		if popErr != nil {
			return n, fmt.Errorf("failed to recover in-flight messages: %w", popErr)
		}
		n++
	}
}

func (o *auditOutbox) Len(ctx context.Context) (_ int64, err error) {
	defer o.observe("outbox_len", &err)

	n, err := o.client.LLen(ctx, o.pending).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox length: %w", err)
	}
	return n, nil
}

func (o *auditOutbox) observe(operation string, err *error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RedisOperations.WithLabelValues(operation, metrics.Status(*err)).Inc()
}
