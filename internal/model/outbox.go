package model

import "time"

// OutboxMessage wraps an audit entry whose append failed and is waiting
// for replay.
type OutboxMessage struct {
	Entry      *AuditEntry `json:"entry"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	Attempts   int         `json:"attempts"`
	LastError  string      `json:"last_error,omitempty"`

	// Receipt identifies a claimed message to the outbox. It is set by
	// Claim and never serialized.
	Receipt string `json:"-"`
}
