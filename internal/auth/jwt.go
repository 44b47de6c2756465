// Package auth - jwt.go handles user bearer tokens: issuing, signing and verifying HS256 JWTs
// with the shared secret from configuration.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/temple4/community-core/internal/config"
)

// DefaultTokenTTL is used when auth.jwt.ttl is not set.
const DefaultTokenTTL = time.Hour

// ErrMissingJWTSecret is returned outside dev mode when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("auth.jwt.secret is required; generate one with: openssl rand -hex 32")

// Claims represents the JWT claims structure
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies user tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewTokenManager creates a TokenManager from cfg.
// In production an empty secret is an error. In dev mode a random secret is generated,
// so tokens do not survive a restart.
func NewTokenManager(cfg config.JWTConfig) (*TokenManager, error) {
	secret := cfg.Secret
	if secret == "" {
		if !isDevMode() {
			return nil, ErrMissingJWTSecret
		}
		generated, err := generateRandomSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		slog.Warn("auth.jwt.secret not set, using an auto-generated secret for development; sessions will not persist across restarts")
	} else if len(secret) < 32 {
		slog.Warn("auth.jwt.secret is shorter than the recommended 32 characters")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "community-core"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Generate creates a signed token for userID. A zero expiresIn uses the configured TTL.
func (m *TokenManager) Generate(userID, email string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = m.ttl
	}
	now := m.now()

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, including its issuer and expiry.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}
