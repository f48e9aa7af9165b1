package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

func setupMockDB(t *testing.T) (BaseRepository, sqlmock.Sqlmock, *metrics.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.NewNop()
	return NewBaseRepository(sqlx.NewDb(db, "postgres"), m), mock, m
}

var columns = []string{"id", "user_id", "action", "entity_name", "entity_id", "old_values", "new_values", "occurred_at", "ip_address", "outcome"}

func TestEnsureAuditSchema(t *testing.T) {
	base, mock, _ := setupMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, EnsureAuditSchema(context.Background(), base))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Append(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		base, mock, m := setupMockDB(t)
		repo := NewAuditRepository(base)

		entityID := int64(42)
		ip := "10.0.0.1"
		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		entry := &model.AuditEntry{
			ID:         "6f1c6d9e-2d7a-4e57-9a63-1b1b2a8f0c11",
			UserID:     7,
			Action:     "POST",
			EntityName: "surgeries",
			EntityID:   &entityID,
			NewValues:  model.JSONB(`{"id":42}`),
			Timestamp:  ts,
			IPAddress:  &ip,
			Outcome:    model.AuditOutcomeSuccess,
		}

		mock.ExpectExec("INSERT INTO audit_entries (.+) ON CONFLICT \\(id\\) DO NOTHING").
			WithArgs(entry.ID, int64(7), "POST", "surgeries", int64(42), nil, `{"id":42}`, ts, "10.0.0.1", "success").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Append(context.Background(), entry))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("audit_append", "success")))
	})

	t.Run("duplicate id is a no-op", func(t *testing.T) {
		base, mock, _ := setupMockDB(t)
		repo := NewAuditRepository(base)

		mock.ExpectExec("INSERT INTO audit_entries").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Append(context.Background(), &model.AuditEntry{ID: "dup", Action: "PUT", EntityName: "rooms", Timestamp: time.Now()})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		base, mock, m := setupMockDB(t)
		repo := NewAuditRepository(base)

		mock.ExpectExec("INSERT INTO audit_entries").WillReturnError(errors.New("connection refused"))

		err := repo.Append(context.Background(), &model.AuditEntry{ID: "x", Timestamp: time.Now()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to append audit entry")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("audit_append", "error")))
	})
}

func TestAuditRepository_Get(t *testing.T) {
	base, mock, _ := setupMockDB(t)
	repo := NewAuditRepository(base)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM audit_entries WHERE id = \\$1").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a1", 7, "DELETE", "rooms", 3, []byte(`{"name":"OR-1"}`), nil, ts, nil, "success"))

	entry, err := repo.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", entry.ID)
	assert.Equal(t, int64(3), *entry.EntityID)
	assert.JSONEq(t, `{"name":"OR-1"}`, string(entry.OldValues))
	assert.Nil(t, entry.NewValues)
	assert.Nil(t, entry.IPAddress)
	assert.Equal(t, model.AuditOutcomeSuccess, entry.Outcome)

	mock.ExpectQuery("SELECT (.+) FROM audit_entries").WithArgs("missing").WillReturnRows(sqlmock.NewRows(columns))
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_List(t *testing.T) {
	base, mock, _ := setupMockDB(t)
	repo := NewAuditRepository(base)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := int64(7)

	filter := model.AuditFilter{
		UserID:     &userID,
		EntityName: "surgeries",
		Pagination: model.Pagination{Page: 2, PageSize: 10},
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_entries WHERE user_id = \\$1 AND entity_name = \\$2").
		WithArgs(int64(7), "surgeries").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery("SELECT (.+) FROM audit_entries WHERE user_id = \\$1 AND entity_name = \\$2 ORDER BY occurred_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(int64(7), "surgeries", 10, 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a11", 7, "POST", "surgeries", 11, nil, []byte(`{"id":11}`), ts, "10.0.0.1", "success"))

	page, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, int64(11), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.Size)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "a11", page.Entries[0].ID)
	assert.Equal(t, "10.0.0.1", *page.Entries[0].IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditWhere(t *testing.T) {
	where, args := auditWhere(model.AuditFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = auditWhere(model.AuditFilter{Action: "DELETE", Outcome: "denied", From: &from})
	assert.Equal(t, " WHERE action = $1 AND outcome = $2 AND occurred_at >= $3", where)
	assert.Equal(t, []interface{}{"DELETE", "denied", from}, args)
}

func TestAuditWhere_Cursor(t *testing.T) {
	to := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	at := to.Add(-time.Minute)
	where, args := auditWhere(model.AuditFilter{
		To:     &to,
		Cursor: &model.AuditCursor{Timestamp: at, ID: "b2"},
	})
	assert.Equal(t, " WHERE occurred_at <= $1 AND (occurred_at, id) < ($2, $3)", where)
	assert.Equal(t, []interface{}{to, at, "b2"}, args)
}

func TestAuditRepository_ListAfterCursor(t *testing.T) {
	base, mock, _ := setupMockDB(t)
	repo := NewAuditRepository(base)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	filter := model.AuditFilter{
		Cursor:     &model.AuditCursor{Timestamp: ts, ID: "a20"},
		Pagination: model.Pagination{Page: 1, PageSize: 2},
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_entries WHERE \\(occurred_at, id\\) < \\(\\$1, \\$2\\)").
		WithArgs(ts, "a20").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(19))
	mock.ExpectQuery("SELECT (.+) FROM audit_entries WHERE \\(occurred_at, id\\) < \\(\\$1, \\$2\\) ORDER BY occurred_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(ts, "a20", 2, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a19", 7, "POST", "surgeries", 19, nil, nil, ts, nil, "success").
			AddRow("a18", 7, "POST", "surgeries", 18, nil, nil, ts.Add(-time.Second), nil, "success"))

	page, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "a19", page.Entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
