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

// AuthService implements registration, login, logout, refresh rotation and
// password change.
type AuthService struct {
	users    ports.UserRepository
	sessions ports.SessionStore
	hasher   ports.PasswordHasher
	resolver *PermissionResolver
	tokens   *TokenIssuer
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(
	users ports.UserRepository,
	sessions ports.SessionStore,
	hasher ports.PasswordHasher,
	resolver *PermissionResolver,
	tokens *TokenIssuer,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		resolver: resolver,
		tokens:   tokens,
		log:      log,
		now:      time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, domain.E(domain.KindValidation, "email, username and password are required")
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	if exists, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	} else if exists {
		return nil, domain.ErrEmailExists
	}
	if exists, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	} else if exists {
		return nil, domain.ErrUsernameExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now().UTC()
	created, err := s.users.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.authenticate(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	s.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("user registered")
	return result, nil
}

// Login verifies credentials and opens a new session. An unknown email and a
// wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("login: verify password: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	} else {
		user.LastLogin = &now
	}

	result, err := s.authenticate(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return result, nil
}

// Logout deletes the presented session. Logging out an unknown token succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return domain.E(domain.KindValidation, "refresh token is required")
	}
	removed, err := s.sessions.Delete(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info().Bool("session_found", removed).Msg("user logged out")
	return nil
}

// Refresh exchanges a refresh token for a new token pair. The presented token
// is consumed: a second use fails with domain.ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.E(domain.KindInvalidToken, "refresh token is required")
	}

	if err := s.tokens.VerifyRefresh(refreshToken); err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			s.dropSession(ctx, refreshToken)
		}
		return nil, err
	}

	rec, err := s.sessions.Find(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		if _, err := s.sessions.Delete(ctx, refreshToken); err != nil {
			return nil, fmt.Errorf("refresh: drop expired session: %w", err)
		}
		return nil, domain.E(domain.KindTokenExpired, "refresh token expired")
	}

	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if user == nil || !user.IsActive {
		s.dropSession(ctx, refreshToken)
		return nil, domain.E(domain.KindAccountInactive, "user not found or inactive")
	}

	access, _, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	next, exp, err := s.tokens.IssueRefresh()
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if err := s.sessions.Rotate(ctx, refreshToken, domain.RefreshToken{
		Token:     next,
		UserID:    user.ID,
		ExpiresAt: exp,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	// A password change or deactivation that revoked the user's sessions
	// while this rotation was in flight can miss the record just written.
	if err := s.confirmUnchanged(ctx, user); err != nil {
		s.dropSession(ctx, next)
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("session rotated")
	return &domain.TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// ChangePassword replaces the credential and ends every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("change password: verify: %w", err)
	}
	if !ok {
		return domain.E(domain.KindInvalidCredentials, "current password is incorrect")
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("change password: hash: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: revoke sessions: %w", err)
	}
	s.log.Info().Str("user_id", userID).Int64("sessions_revoked", n).Msg("password changed")
	return nil
}

// authenticate resolves the user's permission names and opens a session.
func (s *AuthService) authenticate(ctx context.Context, user *domain.User) (*ports.AuthResult, error) {
	names, err := s.resolver.PermissionNames(ctx, user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{
		User:         domain.UserWithPermissions{User: *user, Permissions: names},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, _, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, exp, err := s.tokens.IssueRefresh()
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, domain.RefreshToken{
		Token:     refresh,
		UserID:    user.ID,
		ExpiresAt: exp,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// confirmUnchanged reloads the user and fails when its credential or active
// state changed since before.
func (s *AuthService) confirmUnchanged(ctx context.Context, before *domain.User) error {
	current, err := s.users.FindByID(ctx, before.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("refresh: reload user: %w", err)
	}
	if current == nil || !current.IsActive || current.PasswordHash != before.PasswordHash {
		return domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	return nil
}

// dropSession deletes a session that can no longer be used.
func (s *AuthService) dropSession(ctx context.Context, token string) {
	if _, err := s.sessions.Delete(ctx, token); err != nil {
		s.log.Warn().Err(err).Msg("failed to delete unusable session")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
