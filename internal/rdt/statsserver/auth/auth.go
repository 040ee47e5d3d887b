// Package auth issues and verifies the JWTs that guard the control
// endpoint named in SPEC_FULL.md's DOMAIN STACK: a live-stats
// subscriber or a link-reconfiguration caller presents a bearer token
// naming which operator and which run it may act on.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrExpiredToken     = errors.New("auth: token has expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrMissingClaims    = errors.New("auth: missing required claims")
)

// Claims identifies the operator and the run (endpoint pair) a token
// authorizes access to.
type Claims struct {
	Operator string `json:"operator"`
	RunID    string `json:"run_id"`
	jwt.RegisteredClaims
}

// Manager issues and verifies control-plane tokens.
type Manager struct {
	secret []byte
	expire time.Duration
	issuer string
}

// NewManager constructs a Manager. expire is the access token
// lifetime.
func NewManager(secret string, expire time.Duration, issuer string) *Manager {
	return &Manager{secret: []byte(secret), expire: expire, issuer: issuer}
}

// IssueToken mints a token authorizing operator to act on runID.
func (m *Manager) IssueToken(operator, runID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Operator: operator,
		RunID:    runID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyToken validates tokenString's signature and expiry and
// returns its claims.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Operator == "" || claims.RunID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// Expire reports the configured access token lifetime.
func (m *Manager) Expire() time.Duration { return m.expire }
