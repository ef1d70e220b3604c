package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// UserLookup loads the caller's current account state.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Guard runs the per-request authorization sequence: verify the access
// token, load the caller and confirm it is active, then answer role,
// permission and self-or-admin gates. Requests that fail any step are denied
// before they reach business logic.
type Guard struct {
	tokens   *TokenIssuer
	users    UserLookup
	resolver *PermissionResolver
}

func NewGuard(tokens *TokenIssuer, users UserLookup, resolver *PermissionResolver) *Guard {
	return &Guard{tokens: tokens, users: users, resolver: resolver}
}

// Authenticate verifies accessToken and loads its owner. A deactivated or
// deleted owner yields domain.ErrAccountInactive even when the token is valid.
func (g *Guard) Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error) {
	if accessToken == "" {
		return nil, domain.E(domain.KindInvalidToken, "access token is required")
	}
	claims, err := g.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := g.users.FindByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, domain.E(domain.KindAccountInactive, "user not found or inactive")
	}

	return &domain.Principal{UserID: user.ID, Email: claims.Email, Role: domain.Role(claims.Role)}, nil
}

// RequireRole admits callers whose role is one of roles.
func (g *Guard) RequireRole(p domain.Principal, roles ...domain.Role) error {
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return domain.ErrInsufficientPermission
}

// RequirePermission admits callers whose effective permission set grants
// action on resource.
func (g *Guard) RequirePermission(ctx context.Context, p domain.Principal, resource, action string) error {
	ok, err := g.resolver.HasPermission(ctx, p.UserID, p.Role, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientPermission
	}
	return nil
}

// RequireSelfOrAdmin admits admins and the owner of targetUserID.
func (g *Guard) RequireSelfOrAdmin(p domain.Principal, targetUserID string) error {
	if p.IsAdmin() || (targetUserID != "" && p.UserID == targetUserID) {
		return nil
	}
	return domain.E(domain.KindInsufficientPermission, "you can only access your own resources")
}
