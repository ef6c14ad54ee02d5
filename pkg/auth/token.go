package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "trackstack"

// DefaultTokenTTL is the token lifetime used when none is configured. The
// product tier tolerates long-lived sessions.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims are the JWT claims carried by every bearer token. Subject is always
// the account's external ID.
type Claims struct {
	IsAdmin  bool   `json:"is_admin,omitempty"`
	Role     string `json:"role,omitempty"`
	IsMaster bool   `json:"is_master,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed bearer tokens. The signing
// secret and default TTL are fixed at construction; verification never
// consults a store.
type TokenService struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService. ttl <= 0 selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		defaultTTL: ttl,
		now:        time.Now,
	}, nil
}

// WithClock overrides the time source. Only intended for tests.
func (s *TokenService) WithClock(fn func() time.Time) *TokenService {
	if fn != nil {
		s.now = fn
	}
	return s
}

// IssueUser mints a token for an ordinary user account.
func (s *TokenService) IssueUser(externalID string) (string, error) {
	return s.issue(externalID, false, "", false, s.defaultTTL)
}

// IssueAdmin mints a token for an administrator. isMaster marks tokens
// obtained through the escalation path.
func (s *TokenService) IssueAdmin(externalID string, role Role, isMaster bool) (string, error) {
	return s.issue(externalID, true, string(role), isMaster, s.defaultTTL)
}

// IssueWithTTL mints a token with an explicit lifetime.
func (s *TokenService) IssueWithTTL(externalID string, isAdmin bool, role Role, isMaster bool, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}
	return s.issue(externalID, isAdmin, string(role), isMaster, ttl)
}

func (s *TokenService) issue(externalID string, isAdmin bool, role string, isMaster bool, ttl time.Duration) (string, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", errors.New("auth: subject is required")
	}
	now := s.now().UTC()
	claims := Claims{
		IsAdmin:  isAdmin,
		Role:     role,
		IsMaster: isMaster,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   externalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature integrity and expiry and returns the decoded
// claims. Expired tokens fail with ErrExpiredToken; every other failure is
// ErrInvalidToken.
func (s *TokenService) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
