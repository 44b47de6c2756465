// Package billing implements the endpoints the external payment gateway calls with an
// integration key.
package billing

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/api/apierr"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/middleware"
)

// PledgeService exposes the charge side of pledges. An empty tenantID means every tenant.
type PledgeService interface {
	ListDuePledges(ctx context.Context, tenantID string, limit int) ([]*giving.Pledge, error)
	AdvancePledge(ctx context.Context, tenantID, pledgeID string, chargeSucceeded bool, at time.Time) (*giving.Pledge, error)
}

// Handlers handles gateway callbacks. Keys bound to a tenant only see and advance that
// tenant's pledges.
type Handlers struct {
	pledges PledgeService
}

// NewHandlers creates a new billing Handlers instance
func NewHandlers(pledges PledgeService) *Handlers {
	return &Handlers{pledges: pledges}
}

// AdvanceRequest reports the outcome of one charge attempt.
type AdvanceRequest struct {
	Succeeded *bool `json:"succeeded" binding:"required"`
	// ChargedAt is the charge_at of the charge request for a success, and the time of the
	// attempt for a decline. Replaying an outcome with the same or an earlier value is a no-op.
	ChargedAt *time.Time `json:"charged_at" binding:"required"`
}

// @Summary      Report a charge outcome
// @Description  Applies a charge result to a pledge. A success is applied once per charge period; a replayed success or decline returns the pledge unchanged.
// @Tags         Billing
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        pledgeId  path  string          true  "Pledge ID"
// @Param        body      body  AdvanceRequest  true  "Charge outcome"
// @Success      200  {object}  giving.Pledge
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      403  {object}  map[string]interface{}  "Missing pledges:charge scope"
// @Failure      404  {object}  map[string]interface{}  "Pledge not found, or owned by a tenant the key is not bound to"
// @Router       /api/v1/pledges/{pledgeId}/advance [post]
// AdvancePledgeHandler applies a gateway charge result
// POST /api/v1/pledges/:pledgeId/advance
func (h *Handlers) AdvancePledgeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdvanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
		p, err := h.pledges.AdvancePledge(c.Request.Context(), middleware.KeyTenantID(c), c.Param("pledgeId"), *req.Succeeded, *req.ChargedAt)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// ListDuePledgesHandler lists ACTIVE pledges whose next charge is due
// GET /api/v1/pledges/due?limit=100
func (h *Handlers) ListDuePledgesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 1 || limit > 500 {
			apierr.BadRequest(c, "limit must be between 1 and 500")
			return
		}

		due, err := h.pledges.ListDuePledges(c.Request.Context(), middleware.KeyTenantID(c), limit)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if due == nil {
			due = []*giving.Pledge{}
		}
		c.JSON(http.StatusOK, gin.H{"pledges": due})
	}
}
