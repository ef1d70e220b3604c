package service

import (
	"context"
	"fmt"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// PermissionSource is the read side of the permission store the resolver needs.
type PermissionSource interface {
	FindRolePermissions(ctx context.Context, role domain.Role) ([]domain.Permission, error)
	FindUserPermissions(ctx context.Context, userID string) ([]domain.Permission, error)
}

// PermissionResolver computes effective permission sets: the grants of the
// user's role united with the grants made to the user directly, one entry
// per permission ID. Nothing is cached between calls.
type PermissionResolver struct {
	source PermissionSource
}

func NewPermissionResolver(source PermissionSource) *PermissionResolver {
	return &PermissionResolver{source: source}
}

// EffectivePermissions returns role grants followed by any direct grants not
// already present. Two records sharing a resource and action but with
// different IDs are both kept.
func (r *PermissionResolver) EffectivePermissions(ctx context.Context, userID string, role domain.Role) ([]domain.Permission, error) {
	rolePerms, err := r.source.FindRolePermissions(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: role grants: %w", err)
	}
	userPerms, err := r.source.FindUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: user grants: %w", err)
	}
	return unionByID(rolePerms, userPerms), nil
}

// PermissionNames returns the names of the effective permission set.
func (r *PermissionResolver) PermissionNames(ctx context.Context, userID string, role domain.Role) ([]string, error) {
	perms, err := r.EffectivePermissions(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	return domain.Names(perms), nil
}

// HasPermission reports whether the effective set grants action on resource.
// Direct grants are only fetched when the role grants do not match.
func (r *PermissionResolver) HasPermission(ctx context.Context, userID string, role domain.Role, resource, action string) (bool, error) {
	rolePerms, err := r.source.FindRolePermissions(ctx, role)
	if err != nil {
		return false, fmt.Errorf("check permission: role grants: %w", err)
	}
	if containsGrant(rolePerms, resource, action) {
		return true, nil
	}

	userPerms, err := r.source.FindUserPermissions(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check permission: user grants: %w", err)
	}
	return containsGrant(userPerms, resource, action), nil
}

func containsGrant(perms []domain.Permission, resource, action string) bool {
	for _, p := range perms {
		if p.Matches(resource, action) {
			return true
		}
	}
	return false
}

func unionByID(sets ...[]domain.Permission) []domain.Permission {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	seen := make(map[string]struct{}, n)
	out := make([]domain.Permission, 0, n)
	for _, s := range sets {
		for _, p := range s {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
