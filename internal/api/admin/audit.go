// Package admin implements platform operator endpoints.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/db/repositories"
)

// AuditLogStore lists persisted audit entries.
type AuditLogStore interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// AuditHandlers handles audit log queries
type AuditHandlers struct {
	store AuditLogStore
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(store AuditLogStore) *AuditHandlers {
	return &AuditHandlers{store: store}
}

// @Summary      List audit logs
// @Description  Paginated audit trail, newest first. Requires the audit:read scope or a super admin.
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Param        tenant_id   query  string  false  "Filter by tenant"
// @Param        user_id     query  string  false  "Filter by acting user"
// @Param        action      query  string  false  "Filter by action, e.g. membership.transition"
// @Param        start_date  query  string  false  "RFC3339 lower bound"
// @Param        end_date    query  string  false  "RFC3339 upper bound"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        per_page    query  int     false  "Items per page, max 100 (default 50)"
// @Success      200  {object}  map[string]interface{}  "audit_logs: []models.AuditLog, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Invalid date"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/audit-logs [get]
// ListAuditLogsHandler lists audit log entries
// GET /api/v1/admin/audit-logs?tenant_id=...&page=1&per_page=50
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 50
		}

		var filters repositories.AuditFilters
		for param, dst := range map[string]**string{
			"tenant_id": &filters.TenantID,
			"user_id":   &filters.UserID,
			"action":    &filters.Action,
		} {
			if v := c.Query(param); v != "" {
				*dst = &v
			}
		}
		for param, dst := range map[string]**time.Time{
			"start_date": &filters.StartDate,
			"end_date":   &filters.EndDate,
		} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be an RFC3339 timestamp"})
				return
			}
			*dst = &t
		}

		logs, total, err := h.store.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
