package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/giving"
)

func testPledge() *giving.Pledge {
	return &giving.Pledge{
		ID:           "p-1",
		TenantID:     "t-1",
		UserID:       "u-1",
		FundID:       "f-1",
		AmountCents:  2500,
		Currency:     "USD",
		Frequency:    giving.Monthly,
		NextChargeAt: time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC),
		Status:       giving.PledgeActive,
	}
}

func TestNewChargeRequest_StableIdempotencyKey(t *testing.T) {
	p := testPledge()
	a, b := NewChargeRequest(p), NewChargeRequest(p)
	if a.IdempotencyKey != b.IdempotencyKey {
		t.Errorf("keys differ for the same due date: %q vs %q", a.IdempotencyKey, b.IdempotencyKey)
	}
	if a.IdempotencyKey != "p-1:2026-04-15T12:00:00Z:1" {
		t.Errorf("IdempotencyKey = %q", a.IdempotencyKey)
	}
	if a.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", a.Attempt)
	}

	p.NextChargeAt = p.NextChargeAt.AddDate(0, 1, 0)
	if NewChargeRequest(p).IdempotencyKey == a.IdempotencyKey {
		t.Error("next charge date must produce a new idempotency key")
	}
}

func TestNewChargeRequest_NewKeyAfterDecline(t *testing.T) {
	p := testPledge()
	first := NewChargeRequest(p)

	p.FailedAttempts = 1
	retry := NewChargeRequest(p)
	if retry.IdempotencyKey == first.IdempotencyKey {
		t.Errorf("retry after a decline reused key %q; the gateway would replay the decline", first.IdempotencyKey)
	}
	if retry.IdempotencyKey != "p-1:2026-04-15T12:00:00Z:2" {
		t.Errorf("IdempotencyKey = %q", retry.IdempotencyKey)
	}
	if !retry.ChargeAt.Equal(first.ChargeAt) {
		t.Errorf("ChargeAt = %v, want %v", retry.ChargeAt, first.ChargeAt)
	}
}

func TestNewHTTPChargeGateway_RequiresURL(t *testing.T) {
	if _, err := NewHTTPChargeGateway(config.BillingConfig{}); !errors.Is(err, ErrGatewayNotConfigured) {
		t.Errorf("err = %v, want ErrGatewayNotConfigured", err)
	}
}

func TestHTTPChargeGateway_SignsRequest(t *testing.T) {
	secret := []byte("billing-secret")
	var gotSig, gotKey string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotKey = r.Header.Get("Idempotency-Key")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"status":"succeeded"}`))
	}))
	defer srv.Close()

	g, err := NewHTTPChargeGateway(config.BillingConfig{GatewayURL: srv.URL, Secret: string(secret), Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewHTTPChargeGateway: %v", err)
	}
	req := NewChargeRequest(testPledge())
	ok, err := g.Charge(context.Background(), req)
	if err != nil || !ok {
		t.Fatalf("Charge = %v, %v; want true, nil", ok, err)
	}

	if gotSig != Sign(secret, gotBody) {
		t.Errorf("signature %q does not match body", gotSig)
	}
	if gotKey != req.IdempotencyKey {
		t.Errorf("Idempotency-Key = %q, want %q", gotKey, req.IdempotencyKey)
	}
	var decoded ChargeRequest
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not a charge request: %v", err)
	}
	if decoded.AmountCents != 2500 || decoded.PledgeID != "p-1" {
		t.Errorf("decoded body = %+v", decoded)
	}
}

func TestHTTPChargeGateway_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantOK  bool
		wantErr bool
	}{
		{"succeeded", http.StatusOK, `{"status":"succeeded"}`, true, false},
		{"declined", http.StatusOK, `{"status":"declined"}`, false, false},
		{"payment required", http.StatusPaymentRequired, `{"error":"card declined"}`, false, false},
		{"unknown status", http.StatusOK, `{"status":"pending"}`, false, true},
		{"bad json", http.StatusOK, `not json`, false, true},
		{"server error", http.StatusBadGateway, `upstream down`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g, _ := NewHTTPChargeGateway(config.BillingConfig{GatewayURL: srv.URL})
			ok, err := g.Charge(context.Background(), NewChargeRequest(testPledge()))
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPChargeGateway_Unreachable(t *testing.T) {
	g, _ := NewHTTPChargeGateway(config.BillingConfig{GatewayURL: "http://127.0.0.1:1/charge", Timeout: 500 * time.Millisecond})
	if _, err := g.Charge(context.Background(), NewChargeRequest(testPledge())); err == nil {
		t.Error("expected an error for an unreachable gateway")
	}
}
