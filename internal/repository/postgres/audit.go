package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
)

// auditSchema creates the append-only table. The trigger rejects UPDATE and
// DELETE from any client.
const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id           UUID PRIMARY KEY,
    user_id      BIGINT      NOT NULL,
    action       VARCHAR(64) NOT NULL,
    entity_name  VARCHAR(64) NOT NULL,
    entity_id    BIGINT,
    old_values   JSONB,
    new_values   JSONB,
    occurred_at  TIMESTAMPTZ NOT NULL,
    ip_address   VARCHAR(45),
    outcome      VARCHAR(16) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_occurred_at ON audit_entries (occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_entries_user ON audit_entries (user_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries (entity_name, entity_id);
CREATE OR REPLACE FUNCTION audit_entries_immutable() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'audit_entries is append-only';
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS audit_entries_immutable ON audit_entries;
CREATE TRIGGER audit_entries_immutable BEFORE UPDATE OR DELETE ON audit_entries
    FOR EACH ROW EXECUTE FUNCTION audit_entries_immutable();
`

const auditColumns = `id, user_id, action, entity_name, entity_id, old_values, new_values, occurred_at, ip_address, outcome`

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

// EnsureAuditSchema creates the audit table if it does not exist.
func EnsureAuditSchema(ctx context.Context, base BaseRepository) error {
	if _, err := base.GetDB().ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to ensure audit_entries table: %w", err)
	}
	return nil
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditEntry) (err error) {
	defer r.observe("audit_append", time.Now(), &err)

	query := `
        INSERT INTO audit_entries (` + auditColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING
    `

	_, err = r.GetDB().ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.EntityName,
		entry.EntityID,
		entry.OldValues,
		entry.NewValues,
		entry.Timestamp.UTC(),
		entry.IPAddress,
		string(entry.Outcome),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) Get(ctx context.Context, id string) (_ *model.AuditEntry, err error) {
	defer r.observe("audit_get", time.Now(), &err)

	var entry model.AuditEntry
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id = $1`
	if err = r.GetDB().GetContext(ctx, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return &entry, nil
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) (_ *model.AuditPage, err error) {
	defer r.observe("audit_list", time.Now(), &err)

	where, args := auditWhere(filter)
	page := filter.Pagination.Normalize()

	var total int64
	countQuery := `SELECT COUNT(*) FROM audit_entries` + where
	if err = r.GetDB().GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	args = append(args, page.PageSize, page.Offset())
	query := `SELECT ` + auditColumns + ` FROM audit_entries` + where +
		fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	entries := make([]*model.AuditEntry, 0, page.PageSize)
	if err = r.GetDB().SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return &model.AuditPage{
		Entries: entries,
		Total:   total,
		Page:    page.Page,
		Size:    page.PageSize,
	}, nil
}

func (r *auditRepository) Ping(ctx context.Context) error {
	return r.GetDB().PingContext(ctx)
}

func auditWhere(f model.AuditFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.EntityName != "" {
		add("entity_name = $%d", f.EntityName)
	}
	if f.EntityID != nil {
		add("entity_id = $%d", *f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Outcome != "" {
		add("outcome = $%d", f.Outcome)
	}
	if f.From != nil {
		add("occurred_at >= $%d", f.From.UTC())
	}
	if f.To != nil {
		add("occurred_at <= $%d", f.To.UTC())
	}
	if f.Cursor != nil {
		args = append(args, f.Cursor.Timestamp.UTC(), f.Cursor.ID)
		conditions = append(conditions, fmt.Sprintf("(occurred_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
