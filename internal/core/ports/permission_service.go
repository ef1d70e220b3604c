package ports

import (
	"context"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// CreatePermissionInput carries the fields of a new permission.
type CreatePermissionInput struct {
	Name        string
	Description *string
	Resource    string
	Action      string
}

// PermissionService covers permission administration and permission queries.
type PermissionService interface {
	Create(ctx context.Context, in CreatePermissionInput) (*domain.Permission, error)
	Get(ctx context.Context, id string) (*domain.Permission, error)
	List(ctx context.Context, q domain.PageQuery) (domain.Page[*domain.Permission], error)
	Update(ctx context.Context, id string, upd domain.PermissionUpdate) (*domain.Permission, error)
	Delete(ctx context.Context, id string) error

	AssignToRole(ctx context.Context, role, permissionID string) error
	RevokeFromRole(ctx context.Context, role, permissionID string) error
	RolePermissions(ctx context.Context, role string) ([]domain.Permission, error)

	AssignToUser(ctx context.Context, userID, permissionID string) error
	RevokeFromUser(ctx context.Context, userID, permissionID string) error
	UserPermissions(ctx context.Context, userID string) ([]domain.Permission, error)
	// UserEffectivePermissions resolves the user's role grants together with its direct grants.
	UserEffectivePermissions(ctx context.Context, userID string) ([]domain.Permission, error)

	CheckPermission(ctx context.Context, userID string, role domain.Role, resource, action string) (bool, error)
	EffectivePermissionNames(ctx context.Context, userID string, role domain.Role) ([]string, error)
}
