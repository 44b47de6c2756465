package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/membership"
	"github.com/temple4/community-core/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", fmt.Errorf("%w: not a member", services.ErrUnauthorized), http.StatusForbidden},
		{"not found", fmt.Errorf("%w: fund f-1", services.ErrNotFound), http.StatusNotFound},
		{"validation", &giving.ValidationError{Kind: giving.BelowMinimum, Message: "too small"}, http.StatusUnprocessableEntity},
		{"wrapped validation", fmt.Errorf("failed: %w", &giving.ValidationError{Kind: giving.FundArchived}), http.StatusUnprocessableEntity},
		{"membership transition", fmt.Errorf("%w: cannot approve", membership.ErrInvalidTransition), http.StatusConflict},
		{"pledge transition", giving.ErrInvalidPledgeTransition, http.StatusConflict},
		{"unknown permission", fmt.Errorf("%w: %q", authz.ErrUnknownPermission, "canFly"), http.StatusBadRequest},
		{"unknown role", authz.ErrUnknownRole, http.StatusBadRequest},
		{"unknown category", authz.ErrUnknownCategory, http.StatusBadRequest},
		{"unknown action", membership.ErrUnknownAction, http.StatusBadRequest},
		{"unknown frequency", giving.ErrUnknownFrequency, http.StatusBadRequest},
		{"unknown timeframe", giving.ErrUnknownTimeframe, http.StatusBadRequest},
		{"anything else", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func respond(err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { Respond(c, err) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespond_HidesInternalErrors(t *testing.T) {
	w, body := respond(errors.New("pq: password authentication failed for user \"app\""))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestRespond_IncludesValidationKind(t *testing.T) {
	w, body := respond(&giving.ValidationError{Kind: giving.CurrencyMismatch, Message: "fund accepts USD"})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CurrencyMismatch", body["kind"])
	assert.Contains(t, body["error"], "fund accepts USD")
}
