package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

var userOrderFields = []string{"updatedAt", "email", "username"}

// UserService implements account administration. Deactivation and deletion
// revoke every session of the affected user before returning.
type UserService struct {
	users    ports.UserRepository
	sessions ports.SessionStore
	resolver *PermissionResolver
	log      zerolog.Logger
}

func NewUserService(users ports.UserRepository, sessions ports.SessionStore, resolver *PermissionResolver, log zerolog.Logger) *UserService {
	return &UserService{users: users, sessions: sessions, resolver: resolver, log: log}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.UserWithPermissions, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withPermissions(ctx, user)
}

func (s *UserService) ListUsers(ctx context.Context, q domain.PageQuery) (domain.Page[domain.UserWithPermissions], error) {
	q, err := q.Normalize("createdAt", userOrderFields...)
	if err != nil {
		return domain.Page[domain.UserWithPermissions]{}, err
	}

	users, total, err := s.users.List(ctx, q)
	if err != nil {
		return domain.Page[domain.UserWithPermissions]{}, fmt.Errorf("list users: %w", err)
	}

	out := make([]domain.UserWithPermissions, 0, len(users))
	for _, u := range users {
		uw, err := s.withPermissions(ctx, u)
		if err != nil {
			return domain.Page[domain.UserWithPermissions]{}, err
		}
		out = append(out, *uw)
	}
	return domain.NewPage(out, q, total), nil
}

// UpdateUser applies upd. Moving an active user to inactive revokes its
// sessions; revoked reports whether that happened.
func (s *UserService) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (user *domain.UserWithPermissions, revoked bool, err error) {
	existing, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
		if email != existing.Email {
			exists, err := s.users.ExistsByEmail(ctx, email)
			if err != nil {
				return nil, false, fmt.Errorf("update user: %w", err)
			}
			if exists {
				return nil, false, domain.ErrEmailExists
			}
		}
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		upd.Username = &username
		if username != existing.Username {
			exists, err := s.users.ExistsByUsername(ctx, username)
			if err != nil {
				return nil, false, fmt.Errorf("update user: %w", err)
			}
			if exists {
				return nil, false, domain.ErrUsernameExists
			}
		}
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, false, domain.E(domain.KindValidation, "role must be one of: admin, moderator, user")
	}

	if upd.Empty() {
		user, err = s.withPermissions(ctx, existing)
		return user, false, err
	}

	updated, err := s.users.Update(ctx, id, upd)
	if err != nil {
		return nil, false, err
	}

	if existing.IsActive && !updated.IsActive {
		if err := s.revokeAll(ctx, id, "update"); err != nil {
			return nil, false, err
		}
		revoked = true
	}

	s.log.Info().Str("user_id", id).Msg("user updated")
	user, err = s.withPermissions(ctx, updated)
	return user, revoked, err
}

// DeleteUser revokes every session of the user, then removes it.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.revokeAll(ctx, id, "delete"); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	// A refresh that rotated between the first revocation and the delete
	// leaves a record behind.
	if err := s.revokeAll(ctx, id, "delete"); err != nil {
		s.log.Warn().Err(err).Str("user_id", id).Msg("failed to revoke sessions after delete")
	}
	s.log.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// Deactivate marks the user inactive and revokes every session it holds.
func (s *UserService) Deactivate(ctx context.Context, id string) (*domain.UserWithPermissions, error) {
	user, err := s.users.SetActive(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.revokeAll(ctx, id, "deactivate"); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", id).Msg("user deactivated")
	return s.withPermissions(ctx, user)
}

func (s *UserService) Activate(ctx context.Context, id string) (*domain.UserWithPermissions, error) {
	user, err := s.users.SetActive(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", id).Msg("user activated")
	return s.withPermissions(ctx, user)
}

func (s *UserService) revokeAll(ctx context.Context, userID, trigger string) error {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s user: revoke sessions: %w", trigger, err)
	}
	s.log.Debug().Str("user_id", userID).Str("trigger", trigger).Int64("sessions_revoked", n).Msg("sessions revoked")
	return nil
}

func (s *UserService) withPermissions(ctx context.Context, user *domain.User) (*domain.UserWithPermissions, error) {
	names, err := s.resolver.PermissionNames(ctx, user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &domain.UserWithPermissions{User: *user, Permissions: names}, nil
}
