package jobs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/giving"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, prefixed with "sha256=".
const SignatureHeader = "X-Community-Signature"

// ErrGatewayNotConfigured is returned by NewHTTPChargeGateway when billing.gateway_url is empty.
var ErrGatewayNotConfigured = errors.New("billing.gateway_url is not configured")

// ChargeRequest is the body posted to the payment gateway for one due charge.
type ChargeRequest struct {
	IdempotencyKey string    `json:"idempotency_key"`
	PledgeID       string    `json:"pledge_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	FundID         string    `json:"fund_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	ChargeAt       time.Time `json:"charge_at"`
	Attempt        int       `json:"attempt"`
}

// NewChargeRequest builds the request for the pledge's current due date. The idempotency key
// names the pledge, the date and the attempt number: a retried request for the same attempt never
// charges twice, while a retry after a recorded decline is a new attempt the gateway must run.
func NewChargeRequest(p *giving.Pledge) ChargeRequest {
	at := p.NextChargeAt.UTC()
	attempt := p.FailedAttempts + 1
	return ChargeRequest{
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", p.ID, at.Format(time.RFC3339), attempt),
		PledgeID:       p.ID,
		TenantID:       p.TenantID,
		UserID:         p.UserID,
		FundID:         p.FundID,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		ChargeAt:       at,
		Attempt:        attempt,
	}
}

// ChargeGateway asks the external payment processor to collect a charge. It reports whether
// the charge succeeded; an error means the outcome is unknown and the charge should be retried.
type ChargeGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (bool, error)
}

type chargeResponse struct {
	Status string `json:"status"`
}

// HTTPChargeGateway posts signed charge requests to the gateway webhook.
type HTTPChargeGateway struct {
	url    string
	secret []byte
	client *http.Client
}

// NewHTTPChargeGateway creates a gateway client from the billing configuration.
func NewHTTPChargeGateway(cfg config.BillingConfig) (*HTTPChargeGateway, error) {
	if cfg.GatewayURL == "" {
		return nil, ErrGatewayNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChargeGateway{
		url:    cfg.GatewayURL,
		secret: []byte(cfg.Secret),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Charge implements ChargeGateway. 2xx responses carry {"status": "succeeded"|"declined"};
// 402 is a decline; anything else is an error.
func (g *HTTPChargeGateway) Charge(ctx context.Context, req ChargeRequest) (bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if len(g.secret) > 0 {
		httpReq.Header.Set(SignatureHeader, Sign(g.secret, body))
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	switch out.Status {
	case "succeeded":
		return true, nil
	case "declined", "failed":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected gateway status %q", out.Status)
	}
}
