package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/abneribeiro/apits/internal/core/domain"
)

const (
	MinSecretLength = 32

	DefaultIssuer     = "user-management-api"
	DefaultAudience   = "api-users"
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)

// TokenConfig holds the read-only token settings built once at startup.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Type      string `json:"type"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenIssuerOption customises a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer validates cfg and applies defaults for empty fields.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	t := &TokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if t.issuer == "" {
		t.issuer = DefaultIssuer
	}
	if t.audience == "" {
		t.audience = DefaultAudience
	}
	if t.accessTTL <= 0 {
		t.accessTTL = DefaultAccessTTL
	}
	if t.refreshTTL <= 0 {
		t.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RefreshTTL is the validity of newly issued refresh tokens.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccess signs an access token for user.
func (t *TokenIssuer) IssueAccess(user *domain.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.accessTTL)
	claims := AccessClaims{
		UserID:           user.ID,
		Email:            user.Email,
		Role:             string(user.Role),
		TokenType:        tokenTypeAccess,
		RegisteredClaims: t.registered(now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefresh signs a refresh token. Its value is also the session store key.
func (t *TokenIssuer) IssueRefresh() (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.refreshTTL)
	claims := refreshClaims{
		Type:             tokenTypeRefresh,
		TokenType:        tokenTypeRefresh,
		RegisteredClaims: t.registered(now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess checks signature, issuer, audience, expiry and token type.
// Every failure, expiry included, is reported as domain.ErrInvalidToken.
func (t *TokenIssuer) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, err := t.parser().ParseWithClaims(raw, &claims, t.key); err != nil {
		return nil, domain.Wrap(domain.KindInvalidToken, "invalid or expired token", err)
	}
	if claims.TokenType != tokenTypeAccess || claims.UserID == "" {
		return nil, domain.E(domain.KindInvalidToken, "invalid or expired token")
	}
	return &claims, nil
}

// VerifyRefresh checks a refresh token's signature and embedded claims.
// A well-signed token past its expiry yields domain.ErrTokenExpired.
func (t *TokenIssuer) VerifyRefresh(raw string) error {
	var claims refreshClaims
	if _, err := t.parser().ParseWithClaims(raw, &claims, t.key); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Wrap(domain.KindTokenExpired, "refresh token expired", err)
		}
		return domain.Wrap(domain.KindInvalidToken, "invalid refresh token", err)
	}
	if claims.TokenType != tokenTypeRefresh {
		return domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	return nil
}

func (t *TokenIssuer) registered(now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Audience:  jwt.ClaimStrings{t.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

func (t *TokenIssuer) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
}

func (t *TokenIssuer) key(*jwt.Token) (any, error) {
	return t.secret, nil
}
