package ports

import (
	"context"
	"time"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// UserRepository defines persistence operations for user accounts.
// Lookups of a missing user return domain.ErrUserNotFound; unique-constraint
// violations on email or username return the matching DuplicateEntity error.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// List returns one page of users and the total count. q is already normalized.
	List(ctx context.Context, q domain.PageQuery) ([]*domain.User, int, error)
	Update(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
