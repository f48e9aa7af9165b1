package audit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/admin-authz/internal/handler"
	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/service/audit"
	apperrors "github.com/jwalitptl/admin-authz/pkg/errors"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filter model.AuditFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid query", err))
		return
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewPaginatedResponse(page.Entries, page.Page, page.Size, page.Total))
}

func (h *Handler) GetLog(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.BadRequest("invalid log ID", err))
		return
	}

	entry, err := h.service.Get(c.Request.Context(), id.String())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) ExportLogs(c *gin.Context) {
	format := audit.ExportFormat(c.DefaultQuery("format", string(audit.ExportCSV)))
	if !format.Valid() {
		_ = c.Error(apperrors.BadRequest("unsupported format", nil))
		return
	}

	var filter model.AuditFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid query", err))
		return
	}

	out, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		_ = c.Error(err)
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, format.ContentType(), out)
}
