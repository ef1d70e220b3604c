package ports

import (
	"context"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// PermissionRepository defines persistence operations for permissions and
// their role and user grants.
type PermissionRepository interface {
	Create(ctx context.Context, p *domain.Permission) (*domain.Permission, error)
	FindByID(ctx context.Context, id string) (*domain.Permission, error)
	FindByName(ctx context.Context, name string) (*domain.Permission, error)
	List(ctx context.Context, q domain.PageQuery) ([]*domain.Permission, int, error)
	Update(ctx context.Context, id string, upd domain.PermissionUpdate) (*domain.Permission, error)
	Delete(ctx context.Context, id string) error

	// AssignToRole is idempotent: granting an existing edge is not an error.
	AssignToRole(ctx context.Context, role domain.Role, permissionID string) error
	// RevokeFromRole reports whether an edge was removed.
	RevokeFromRole(ctx context.Context, role domain.Role, permissionID string) (bool, error)
	FindRolePermissions(ctx context.Context, role domain.Role) ([]domain.Permission, error)

	AssignToUser(ctx context.Context, userID, permissionID string) error
	RevokeFromUser(ctx context.Context, userID, permissionID string) (bool, error)
	FindUserPermissions(ctx context.Context, userID string) ([]domain.Permission, error)
}
