package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

var permissionOrderFields = []string{"updatedAt", "name"}

// PermissionService implements permission administration and the permission
// queries exposed to the transport layer.
type PermissionService struct {
	perms    ports.PermissionRepository
	users    ports.UserRepository
	resolver *PermissionResolver
	log      zerolog.Logger
}

func NewPermissionService(perms ports.PermissionRepository, users ports.UserRepository, resolver *PermissionResolver, log zerolog.Logger) *PermissionService {
	return &PermissionService{perms: perms, users: users, resolver: resolver, log: log}
}

func (s *PermissionService) Create(ctx context.Context, in ports.CreatePermissionInput) (*domain.Permission, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Resource) == "" || strings.TrimSpace(in.Action) == "" {
		return nil, domain.E(domain.KindValidation, "name, resource and action are required")
	}
	if err := s.ensureNameFree(ctx, name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created, err := s.perms.Create(ctx, &domain.Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Resource:    strings.TrimSpace(in.Resource),
		Action:      strings.TrimSpace(in.Action),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("permission", created.Name).Msg("permission created")
	return created, nil
}

func (s *PermissionService) Get(ctx context.Context, id string) (*domain.Permission, error) {
	return s.perms.FindByID(ctx, id)
}

func (s *PermissionService) List(ctx context.Context, q domain.PageQuery) (domain.Page[*domain.Permission], error) {
	q, err := q.Normalize("createdAt", permissionOrderFields...)
	if err != nil {
		return domain.Page[*domain.Permission]{}, err
	}
	perms, total, err := s.perms.List(ctx, q)
	if err != nil {
		return domain.Page[*domain.Permission]{}, fmt.Errorf("list permissions: %w", err)
	}
	return domain.NewPage(perms, q, total), nil
}

func (s *PermissionService) Update(ctx context.Context, id string, upd domain.PermissionUpdate) (*domain.Permission, error) {
	existing, err := s.perms.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, domain.E(domain.KindValidation, "permission name is required")
		}
		upd.Name = &name
		if name != existing.Name {
			if err := s.ensureNameFree(ctx, name); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.perms.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("permission", updated.Name).Msg("permission updated")
	return updated, nil
}

func (s *PermissionService) Delete(ctx context.Context, id string) error {
	p, err := s.perms.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.perms.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("permission", p.Name).Msg("permission deleted")
	return nil
}

func (s *PermissionService) AssignToRole(ctx context.Context, role, permissionID string) error {
	r, p, err := s.roleAndPermission(ctx, role, permissionID)
	if err != nil {
		return err
	}
	if err := s.perms.AssignToRole(ctx, r, p.ID); err != nil {
		return err
	}
	s.log.Info().Str("permission", p.Name).Str("role", string(r)).Msg("permission assigned to role")
	return nil
}

func (s *PermissionService) RevokeFromRole(ctx context.Context, role, permissionID string) error {
	r, p, err := s.roleAndPermission(ctx, role, permissionID)
	if err != nil {
		return err
	}
	removed, err := s.perms.RevokeFromRole(ctx, r, p.ID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.E(domain.KindNotFound, "role permission not found")
	}
	s.log.Info().Str("permission", p.Name).Str("role", string(r)).Msg("permission revoked from role")
	return nil
}

func (s *PermissionService) RolePermissions(ctx context.Context, role string) ([]domain.Permission, error) {
	r, err := parseExplicitRole(role)
	if err != nil {
		return nil, err
	}
	return s.perms.FindRolePermissions(ctx, r)
}

func (s *PermissionService) AssignToUser(ctx context.Context, userID, permissionID string) error {
	p, err := s.perms.FindByID(ctx, permissionID)
	if err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}
	if err := s.perms.AssignToUser(ctx, userID, p.ID); err != nil {
		return err
	}
	s.log.Info().Str("permission", p.Name).Str("user_id", userID).Msg("permission assigned to user")
	return nil
}

func (s *PermissionService) RevokeFromUser(ctx context.Context, userID, permissionID string) error {
	p, err := s.perms.FindByID(ctx, permissionID)
	if err != nil {
		return err
	}
	removed, err := s.perms.RevokeFromUser(ctx, userID, p.ID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.E(domain.KindNotFound, "user permission not found")
	}
	s.log.Info().Str("permission", p.Name).Str("user_id", userID).Msg("permission revoked from user")
	return nil
}

func (s *PermissionService) UserPermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	return s.perms.FindUserPermissions(ctx, userID)
}

func (s *PermissionService) UserEffectivePermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolver.EffectivePermissions(ctx, user.ID, user.Role)
}

func (s *PermissionService) CheckPermission(ctx context.Context, userID string, role domain.Role, resource, action string) (bool, error) {
	return s.resolver.HasPermission(ctx, userID, role, resource, action)
}

func (s *PermissionService) EffectivePermissionNames(ctx context.Context, userID string, role domain.Role) ([]string, error) {
	return s.resolver.PermissionNames(ctx, userID, role)
}

func (s *PermissionService) ensureNameFree(ctx context.Context, name string) error {
	_, err := s.perms.FindByName(ctx, name)
	if err == nil {
		return domain.ErrPermissionExists
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("check permission name: %w", err)
}

func (s *PermissionService) roleAndPermission(ctx context.Context, role, permissionID string) (domain.Role, *domain.Permission, error) {
	r, err := parseExplicitRole(role)
	if err != nil {
		return "", nil, err
	}
	p, err := s.perms.FindByID(ctx, permissionID)
	if err != nil {
		return "", nil, err
	}
	return r, p, nil
}

// parseExplicitRole is ParseRole without the empty-means-user default.
func parseExplicitRole(role string) (domain.Role, error) {
	if strings.TrimSpace(role) == "" {
		return "", domain.E(domain.KindValidation, "role is required")
	}
	return domain.ParseRole(role)
}
