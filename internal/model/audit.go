package model

import (
	"net/http"
	"time"
)

// AuditOutcome records how the audited attempt ended.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeDenied  AuditOutcome = "denied"
	AuditOutcomeFailed  AuditOutcome = "failed"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID         string       `json:"id" db:"id" validate:"required,uuid4"`
	UserID     int64        `json:"userId" db:"user_id"`
	Action     string       `json:"action" db:"action" validate:"required,max=64"`
	EntityName string       `json:"entityName" db:"entity_name" validate:"required,max=64"`
	EntityID   *int64       `json:"entityId" db:"entity_id"`
	OldValues  JSONB        `json:"oldValues" db:"old_values"`
	NewValues  JSONB        `json:"newValues" db:"new_values"`
	Timestamp  time.Time    `json:"timestamp" db:"occurred_at" validate:"required"`
	IPAddress  *string      `json:"ipAddress" db:"ip_address" validate:"omitempty,ip"`
	Outcome    AuditOutcome `json:"outcome" db:"outcome" validate:"required,oneof=success denied failed"`
}

// AuditedMethod reports whether an HTTP verb mutates state and must be
// audited. GET, HEAD and OPTIONS are reads.
func AuditedMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	UserID     *int64     `form:"user_id"`
	EntityName string     `form:"entity_name" binding:"omitempty,max=64"`
	EntityID   *int64     `form:"entity_id"`
	Action     string     `form:"action" binding:"omitempty,max=64"`
	Outcome    string     `form:"outcome" binding:"omitempty,oneof=success denied failed"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	// Cursor restricts the listing to entries strictly older than it.
	Cursor *AuditCursor `form:"-"`
	Pagination
}

// AuditCursor is a position in the (timestamp, id) listing order.
type AuditCursor struct {
	Timestamp time.Time
	ID        string
}

// CursorOf returns the position of e.
func CursorOf(e *AuditEntry) AuditCursor {
	return AuditCursor{Timestamp: e.Timestamp, ID: e.ID}
}

// Older reports whether e sorts after c in the newest-first order.
func (c AuditCursor) Older(e *AuditEntry) bool {
	if e.Timestamp.Equal(c.Timestamp) {
		return e.ID < c.ID
	}
	return e.Timestamp.Before(c.Timestamp)
}

// AuditPage is one page of a filtered listing.
type AuditPage struct {
	Entries []*AuditEntry `json:"entries"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	Size    int           `json:"page_size"`
}
