package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/admin-authz/internal/model"
)

var ErrNotFound = errors.New("not found")

// All repository interfaces in one file
type (
	// AuditRepository is append-only: entries are never updated or deleted.
	AuditRepository interface {
		// Append is idempotent on entry id.
		Append(ctx context.Context, entry *model.AuditEntry) error
		Get(ctx context.Context, id string) (*model.AuditEntry, error)
		List(ctx context.Context, filter model.AuditFilter) (*model.AuditPage, error)
		Ping(ctx context.Context) error
	}

	// AuditOutbox holds entries whose direct append failed. Claimed
	// messages stay in flight until acknowledged or released.
	AuditOutbox interface {
		Enqueue(ctx context.Context, msg *model.OutboxMessage) error
		Claim(ctx context.Context, max int) ([]*model.OutboxMessage, error)
		Ack(ctx context.Context, msg *model.OutboxMessage) error
		Release(ctx context.Context, msg *model.OutboxMessage) error
		// Bury parks a claimed message on the dead list for manual replay.
		Bury(ctx context.Context, msg *model.OutboxMessage) error
		// RecoverInFlight returns messages orphaned by a crashed worker to
		// the pending queue.
		RecoverInFlight(ctx context.Context) (int64, error)
		Len(ctx context.Context) (int64, error)
	}
)
