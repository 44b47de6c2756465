// Package tenants implements the HTTP handlers mounted under /api/v1/tenants/:tenantId.
package tenants

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/api/apierr"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/middleware"
)

// AccessService answers authorization questions about a tenant.
type AccessService interface {
	Authorize(ctx context.Context, userID, tenantID, permission string) (bool, error)
	HasRole(ctx context.Context, userID, tenantID, role string) (bool, error)
	CanViewContent(ctx context.Context, userID *string, tenantID, category string) (bool, error)
	TenantPermissions(ctx context.Context, tenantID string) (authz.PermissionMatrix, error)
	UpdateTenantPermissions(ctx context.Context, actorID, tenantID string, raw map[string]map[string]bool) (authz.PermissionMatrix, error)
}

// AccessHandlers handles authorization queries and permission matrix management
type AccessHandlers struct {
	access AccessService
}

// NewAccessHandlers creates a new AccessHandlers instance
func NewAccessHandlers(access AccessService) *AccessHandlers {
	return &AccessHandlers{access: access}
}

// @Summary      Check a permission
// @Description  Reports whether the caller holds a permission in the tenant.
// @Tags         Access
// @Security     Bearer
// @Produce      json
// @Param        tenantId    path   string  true  "Tenant ID"
// @Param        permission  query  string  true  "Permission name, e.g. canManageFunds"
// @Success      200  {object}  map[string]interface{}  "allowed: bool"
// @Failure      400  {object}  map[string]interface{}  "Unknown permission"
// @Failure      404  {object}  map[string]interface{}  "Tenant not found"
// @Router       /api/v1/tenants/{tenantId}/authorize [get]
// AuthorizeHandler checks a single permission for the current user
// GET /api/v1/tenants/:tenantId/authorize?permission=canManageFunds
func (h *AccessHandlers) AuthorizeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perm := c.Query("permission")
		if perm == "" {
			apierr.BadRequest(c, "permission query parameter is required")
			return
		}

		allowed, err := h.access.Authorize(c.Request.Context(), middleware.CurrentUserID(c), c.Param("tenantId"), perm)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allowed": allowed})
	}
}

// @Summary      Check a role
// @Description  Reports whether the caller holds at least the given role in the tenant.
// @Tags         Access
// @Security     Bearer
// @Produce      json
// @Param        tenantId  path  string  true  "Tenant ID"
// @Param        role      path  string  true  "Role name (MEMBER, STAFF, CLERGY, MODERATOR, ADMIN)"
// @Success      200  {object}  map[string]interface{}  "has_role: bool"
// @Failure      400  {object}  map[string]interface{}  "Unknown role"
// @Router       /api/v1/tenants/{tenantId}/roles/{role} [get]
// HasRoleHandler checks a role for the current user
// GET /api/v1/tenants/:tenantId/roles/:role
func (h *AccessHandlers) HasRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := h.access.HasRole(c.Request.Context(), middleware.CurrentUserID(c), c.Param("tenantId"), c.Param("role"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"has_role": ok})
	}
}

// ContentVisibleHandler reports whether a content category is visible to the caller.
// Anonymous callers are evaluated as visitors.
// GET /api/v1/tenants/:tenantId/content/:category/visible
func (h *AccessHandlers) ContentVisibleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID *string
		if id := middleware.CurrentUserID(c); id != "" {
			userID = &id
		}

		visible, err := h.access.CanViewContent(c.Request.Context(), userID, c.Param("tenantId"), c.Param("category"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visible": visible})
	}
}

// GetPermissionsHandler returns the tenant's permission matrix
// GET /api/v1/tenants/:tenantId/permissions
func (h *AccessHandlers) GetPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		matrix, err := h.access.TenantPermissions(c.Request.Context(), c.Param("tenantId"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"permissions": matrix})
	}
}

// UpdatePermissionsRequest is the body of PUT /permissions.
type UpdatePermissionsRequest struct {
	Permissions map[string]map[string]bool `json:"permissions" binding:"required"`
}

// UpdatePermissionsHandler replaces the tenant's permission matrix. Unknown role types or
// permission names reject the whole update.
// PUT /api/v1/tenants/:tenantId/permissions
func (h *AccessHandlers) UpdatePermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePermissionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}

		matrix, err := h.access.UpdateTenantPermissions(c.Request.Context(), middleware.CurrentUserID(c), c.Param("tenantId"), req.Permissions)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"permissions": matrix})
	}
}
