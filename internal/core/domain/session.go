package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is the server-side record of one live session.
type RefreshToken struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the record is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair is an access token together with its refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// HashToken returns the hex SHA-256 digest stores use as the key for a token.
// Raw refresh tokens are never persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
