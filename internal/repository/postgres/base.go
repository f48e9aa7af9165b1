package postgres

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// observe records one database operation. Call as
// defer r.observe("op", time.Now(), &err).
func (r *BaseRepository) observe(operation string, start time.Time, err *error) {
	if r.metrics == nil {
		return
	}
	r.metrics.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	r.metrics.DatabaseOperations.WithLabelValues(operation, metrics.Status(*err)).Inc()
}
