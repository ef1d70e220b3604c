package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// SessionStore keeps refresh-token records in refresh_tokens, keyed by the
// SHA-256 digest of the token.
type SessionStore struct {
	db *sqlx.DB
}

func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

const insertSession = `INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`

func (s *SessionStore) Create(ctx context.Context, rt domain.RefreshToken) error {
	if _, err := s.db.ExecContext(ctx, insertSession, domain.HashToken(rt.Token), rt.UserID, rt.ExpiresAt, createdAt(rt)); err != nil {
		return sessionWriteError("create session", err)
	}
	return nil
}

func (s *SessionStore) Find(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, expires_at, created_at FROM refresh_tokens WHERE token_hash = $1`, domain.HashToken(token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &domain.RefreshToken{Token: token, UserID: row.UserID, ExpiresAt: row.ExpiresAt, CreatedAt: row.CreatedAt}, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, domain.HashToken(token))
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return res.RowsAffected()
}

// Rotate deletes the old record and inserts next in one transaction. The
// DELETE takes the row lock, so a concurrent rotation of the same token
// waits and then finds nothing to delete.
func (s *SessionStore) Rotate(ctx context.Context, oldToken string, next domain.RefreshToken) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rotate session: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, domain.HashToken(oldToken))
	if err != nil {
		return fmt.Errorf("rotate session: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate session: delete: %w", err)
	}
	if n != 1 {
		return domain.E(domain.KindInvalidToken, "invalid refresh token")
	}

	if _, err := tx.ExecContext(ctx, insertSession, domain.HashToken(next.Token), next.UserID, next.ExpiresAt, createdAt(next)); err != nil {
		return sessionWriteError("rotate session: insert", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rotate session: commit: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func createdAt(rt domain.RefreshToken) time.Time {
	if rt.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return rt.CreatedAt
}

func sessionWriteError(op string, err error) error {
	if foreignKeyViolation(err) {
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
