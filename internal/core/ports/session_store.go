package ports

import (
	"context"
	"time"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// SessionStore is the durable record of live refresh tokens. Records are
// addressed by the raw token value; implementations decide how to key them.
type SessionStore interface {
	Create(ctx context.Context, rt domain.RefreshToken) error
	// Find returns domain.ErrInvalidToken when no record exists for token.
	Find(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, token string) (bool, error)
	// DeleteByUser removes every record owned by userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// Rotate removes oldToken and stores next as one atomic step. When the
	// old record is already gone it stores nothing and returns domain.ErrInvalidToken.
	Rotate(ctx context.Context, oldToken string, next domain.RefreshToken) error
	// DeleteExpired purges records whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
