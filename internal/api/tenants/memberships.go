package tenants

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/api/apierr"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/middleware"
	"github.com/temple4/community-core/internal/services"
)

// MembershipService manages the membership lifecycle.
type MembershipService interface {
	RequestMembership(ctx context.Context, userID, tenantID string) (*authz.Membership, bool, error)
	TransitionMembership(ctx context.Context, actorID, membershipID, action string) (*authz.Membership, error)
	AssignRole(ctx context.Context, actorID, membershipID string, inputs []services.RoleInput) (*authz.Membership, error)
	ListMemberships(ctx context.Context, actorID, tenantID string, status *authz.MembershipStatus, limit, offset int) ([]*authz.Membership, error)
}

// MembershipHandlers handles join requests, moderation and role assignment
type MembershipHandlers struct {
	memberships MembershipService
}

// NewMembershipHandlers creates a new MembershipHandlers instance
func NewMembershipHandlers(memberships MembershipService) *MembershipHandlers {
	return &MembershipHandlers{memberships: memberships}
}

// @Summary      Request membership
// @Description  Asks to join the tenant. Returns 201 for a new request and 200 when the caller already has one.
// @Tags         Memberships
// @Security     Bearer
// @Produce      json
// @Param        tenantId  path  string  true  "Tenant ID"
// @Success      201  {object}  authz.Membership
// @Success      200  {object}  authz.Membership
// @Failure      404  {object}  map[string]interface{}  "Tenant not found"
// @Router       /api/v1/tenants/{tenantId}/memberships [post]
// RequestMembershipHandler creates a membership request for the current user
// POST /api/v1/tenants/:tenantId/memberships
func (h *MembershipHandlers) RequestMembershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)
		if userID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "A user account is required"})
			return
		}

		m, created, err := h.memberships.RequestMembership(c.Request.Context(), userID, c.Param("tenantId"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, m)
	}
}

// ListMembershipsHandler lists memberships with pagination
// GET /api/v1/tenants/:tenantId/memberships?status=REQUESTED&page=1&per_page=20
func (h *MembershipHandlers) ListMembershipsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		var status *authz.MembershipStatus
		if raw := c.Query("status"); raw != "" {
			s := authz.MembershipStatus(strings.ToUpper(raw))
			switch s {
			case authz.StatusRequested, authz.StatusApproved, authz.StatusRejected, authz.StatusBanned:
				status = &s
			default:
				apierr.BadRequest(c, "Invalid status filter")
				return
			}
		}

		list, err := h.memberships.ListMemberships(c.Request.Context(), middleware.CurrentUserID(c), c.Param("tenantId"), status, perPage, (page-1)*perPage)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"memberships": list,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}

// @Summary      Moderate a membership
// @Description  Applies approve, reject, ban or unban. Returns 409 when the action is not allowed from the current status.
// @Tags         Memberships
// @Security     Bearer
// @Produce      json
// @Param        tenantId      path  string  true  "Tenant ID"
// @Param        membershipId  path  string  true  "Membership ID"
// @Param        action        path  string  true  "approve | reject | ban | unban"
// @Success      200  {object}  authz.Membership
// @Failure      403  {object}  map[string]interface{}  "Missing permission"
// @Failure      409  {object}  map[string]interface{}  "Invalid transition"
// @Router       /api/v1/tenants/{tenantId}/memberships/{membershipId}/{action} [post]
// TransitionHandler applies a lifecycle action to a membership
// POST /api/v1/tenants/:tenantId/memberships/:membershipId/:action
func (h *MembershipHandlers) TransitionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := h.memberships.TransitionMembership(c.Request.Context(), middleware.CurrentUserID(c), c.Param("membershipId"), c.Param("action"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// AssignRolesRequest is the body of POST /roles.
type AssignRolesRequest struct {
	Roles []services.RoleInput `json:"roles" binding:"required"`
}

// AssignRolesHandler replaces the roles held by a membership
// POST /api/v1/tenants/:tenantId/memberships/:membershipId/roles
func (h *MembershipHandlers) AssignRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignRolesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}

		m, err := h.memberships.AssignRole(c.Request.Context(), middleware.CurrentUserID(c), c.Param("membershipId"), req.Roles)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}
