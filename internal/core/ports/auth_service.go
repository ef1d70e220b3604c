package ports

import (
	"context"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName *string
	LastName  *string
	// Role defaults to user when empty.
	Role string
}

// AuthResult is returned by registration and login.
type AuthResult struct {
	User         domain.UserWithPermissions `json:"user"`
	AccessToken  string                     `json:"token"`
	RefreshToken string                     `json:"refreshToken"`
}

// AuthService covers the credential and session lifecycle.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// UserService covers account administration.
type UserService interface {
	GetUser(ctx context.Context, id string) (*domain.UserWithPermissions, error)
	ListUsers(ctx context.Context, q domain.PageQuery) (domain.Page[domain.UserWithPermissions], error)
	// UpdateUser reports whether the update revoked the user's sessions.
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (*domain.UserWithPermissions, bool, error)
	DeleteUser(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) (*domain.UserWithPermissions, error)
	Activate(ctx context.Context, id string) (*domain.UserWithPermissions, error)
}

// Authorizer answers the per-request authentication and gate questions.
type Authorizer interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error)
	RequireRole(p domain.Principal, roles ...domain.Role) error
	RequirePermission(ctx context.Context, p domain.Principal, resource, action string) error
	RequireSelfOrAdmin(p domain.Principal, targetUserID string) error
}
