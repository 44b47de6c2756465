package tenants

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/api/apierr"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/middleware"
	"github.com/temple4/community-core/internal/services"
)

// maxLeaderboardSize caps the top query parameter.
const maxLeaderboardSize = 100

// GivingService covers funds, donations and pledges within a tenant.
type GivingService interface {
	FundProgress(ctx context.Context, tenantID, fundID string) (giving.FundProgress, error)
	RecordDonation(ctx context.Context, actorID string, in services.RecordDonationInput) (*giving.Donation, error)
	FundLeaderboard(ctx context.Context, tenantID, timeframe string, topN int) ([]giving.LeaderboardEntry, error)
	CreatePledge(ctx context.Context, in services.CreatePledgeInput) (*giving.Pledge, error)
	ListUserPledges(ctx context.Context, tenantID, userID string) ([]*giving.Pledge, error)
	PausePledge(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error)
	ResumePledge(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error)
	CancelPledge(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error)
}

// GivingHandlers handles fund, donation, leaderboard and pledge endpoints
type GivingHandlers struct {
	giving GivingService
}

// NewGivingHandlers creates a new GivingHandlers instance
func NewGivingHandlers(svc GivingService) *GivingHandlers {
	return &GivingHandlers{giving: svc}
}

// @Summary      Fund progress
// @Description  Amount raised toward the fund's goal. percent is null for funds without a goal.
// @Tags         Giving
// @Security     Bearer
// @Produce      json
// @Param        tenantId  path  string  true  "Tenant ID"
// @Param        fundId    path  string  true  "Fund ID"
// @Success      200  {object}  giving.FundProgress
// @Failure      404  {object}  map[string]interface{}  "Fund not found"
// @Failure      403  {object}  map[string]interface{}  "Donations are not visible to the caller"
// @Router       /api/v1/tenants/{tenantId}/funds/{fundId}/progress [get]
// FundProgressHandler reports progress toward a fund goal
// GET /api/v1/tenants/:tenantId/funds/:fundId/progress
func (h *GivingHandlers) FundProgressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.giving.FundProgress(c.Request.Context(), c.Param("tenantId"), c.Param("fundId"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// RecordDonationHandler records a one-off gift to a fund
// POST /api/v1/tenants/:tenantId/funds/:fundId/donations
func (h *GivingHandlers) RecordDonationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.RecordDonationInput
		if err := c.ShouldBindJSON(&in); err != nil {
			apierr.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
		in.TenantID = c.Param("tenantId")
		in.FundID = c.Param("fundId")

		d, err := h.giving.RecordDonation(c.Request.Context(), middleware.CurrentUserID(c), in)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

// @Summary      Donor leaderboard
// @Description  Ranks donors by total given over the timeframe. Gifts marked anonymous-on-leaderboard are left out of the ranking but still count toward fund progress.
// @Tags         Giving
// @Security     Bearer
// @Produce      json
// @Param        tenantId   path   string  true   "Tenant ID"
// @Param        timeframe  query  string  false  "ALL_TIME (default), YEARLY or MONTHLY"
// @Param        top        query  int     false  "Number of entries (default 10, max 100)"
// @Success      200  {object}  map[string]interface{}  "timeframe, entries: []giving.LeaderboardEntry"
// @Failure      400  {object}  map[string]interface{}  "Unknown timeframe"
// @Failure      403  {object}  map[string]interface{}  "Donations are not visible to the caller"
// @Router       /api/v1/tenants/{tenantId}/leaderboard [get]
// LeaderboardHandler returns the tenant's donor leaderboard
// GET /api/v1/tenants/:tenantId/leaderboard?timeframe=YEARLY&top=10
func (h *GivingHandlers) LeaderboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		top := 0
		if raw := c.Query("top"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				apierr.BadRequest(c, "top must be a positive integer")
				return
			}
			top = min(n, maxLeaderboardSize)
		}

		timeframe := c.Query("timeframe")
		entries, err := h.giving.FundLeaderboard(c.Request.Context(), c.Param("tenantId"), timeframe, top)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if entries == nil {
			entries = []giving.LeaderboardEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"timeframe": timeframe, "entries": entries})
	}
}

// CreatePledgeHandler creates a recurring pledge for the current user
// POST /api/v1/tenants/:tenantId/pledges
func (h *GivingHandlers) CreatePledgeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.CreatePledgeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			apierr.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
		in.TenantID = c.Param("tenantId")
		in.UserID = middleware.CurrentUserID(c)
		if in.UserID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "A user account is required"})
			return
		}

		p, err := h.giving.CreatePledge(c.Request.Context(), in)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// ListMyPledgesHandler lists the current user's pledges in the tenant
// GET /api/v1/tenants/:tenantId/pledges
func (h *GivingHandlers) ListMyPledgesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.giving.ListUserPledges(c.Request.Context(), c.Param("tenantId"), middleware.CurrentUserID(c))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if list == nil {
			list = []*giving.Pledge{}
		}
		c.JSON(http.StatusOK, gin.H{"pledges": list})
	}
}

type pledgeStatusChange func(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error)

func (h *GivingHandlers) statusHandler(change pledgeStatusChange) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := change(c.Request.Context(), middleware.CurrentUserID(c), c.Param("tenantId"), c.Param("pledgeId"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// PausePledgeHandler pauses an ACTIVE pledge
// POST /api/v1/tenants/:tenantId/pledges/:pledgeId/pause
func (h *GivingHandlers) PausePledgeHandler() gin.HandlerFunc {
	return h.statusHandler(h.giving.PausePledge)
}

// ResumePledgeHandler resumes a PAUSED pledge from its next future charge date
// POST /api/v1/tenants/:tenantId/pledges/:pledgeId/resume
func (h *GivingHandlers) ResumePledgeHandler() gin.HandlerFunc {
	return h.statusHandler(h.giving.ResumePledge)
}

// CancelPledgeHandler cancels a pledge
// POST /api/v1/tenants/:tenantId/pledges/:pledgeId/cancel
func (h *GivingHandlers) CancelPledgeHandler() gin.HandlerFunc {
	return h.statusHandler(h.giving.CancelPledge)
}
