// Package apierr maps service and domain errors onto HTTP responses.
package apierr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/membership"
	"github.com/temple4/community-core/internal/services"
)

// unknownNameErrors are rejections of names outside a closed set.
var unknownNameErrors = []error{
	authz.ErrUnknownPermission,
	authz.ErrUnknownRole,
	authz.ErrUnknownRoleType,
	authz.ErrUnknownCategory,
	membership.ErrUnknownAction,
	giving.ErrUnknownFrequency,
	giving.ErrUnknownTimeframe,
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case giving.KindOf(err) != "":
		return http.StatusUnprocessableEntity
	case errors.Is(err, membership.ErrInvalidTransition), errors.Is(err, giving.ErrInvalidPledgeTransition):
		return http.StatusConflict
	}
	for _, target := range unknownNameErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// Respond writes err as {"error": ...}. Internal errors are logged and replaced with a
// generic message.
func Respond(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "request_id", c.GetString("request_id"), "error", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	if kind := giving.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	c.JSON(status, body)
}

// BadRequest writes a 400 with msg.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
