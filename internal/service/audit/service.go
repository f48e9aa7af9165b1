package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	apperrors "github.com/jwalitptl/admin-authz/pkg/errors"
)

// MaxExportEntries caps a single export.
const MaxExportEntries = 10000

// Service is the read side of the audit trail.
type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter) (*model.AuditPage, error) {
	filter.Pagination = filter.Pagination.Normalize()
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperrors.BadRequest("invalid time range", nil)
	}
	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return page, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.AuditEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("audit entry", nil)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return entry, nil
}

// Export renders every entry matching filter, newest first, up to
// MaxExportEntries. The window is pinned at the first fetch and later pages
// continue from the last entry seen, so appends during the export neither
// repeat nor shift rows.
func (s *Service) Export(ctx context.Context, filter model.AuditFilter, format ExportFormat) ([]byte, error) {
	if !format.Valid() {
		return nil, apperrors.BadRequest("unsupported format", nil)
	}

	if filter.To == nil {
		now := time.Now().UTC()
		filter.To = &now
	}
	filter.Pagination = model.Pagination{Page: 1, PageSize: model.MaxPageSize}

	var entries []*model.AuditEntry
	for len(entries) < MaxExportEntries {
		page, err := s.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page.Entries...)
		if len(page.Entries) < page.Size {
			break
		}
		cursor := model.CursorOf(page.Entries[len(page.Entries)-1])
		filter.Cursor = &cursor
	}
	if len(entries) > MaxExportEntries {
		entries = entries[:MaxExportEntries]
	}

	out, err := format.render(entries)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to export audit entries: %w", err))
	}
	return out, nil
}
