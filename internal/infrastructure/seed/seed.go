// Package seed loads the default permissions, role grants and accounts.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

//go:embed defaults.yaml
var defaults []byte

// Data is the seed document.
type Data struct {
	Permissions []Permission             `yaml:"permissions"`
	Roles       map[domain.Role][]string `yaml:"roles"`
	Users       []User                   `yaml:"users"`
}

type Permission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Resource    string `yaml:"resource"`
	Action      string `yaml:"action"`
}

type User struct {
	Email     string      `yaml:"email"`
	Username  string      `yaml:"username"`
	Password  string      `yaml:"password"`
	FirstName string      `yaml:"first_name"`
	LastName  string      `yaml:"last_name"`
	Role      domain.Role `yaml:"role"`
}

// Stats counts what one run created.
type Stats struct {
	Permissions int
	Grants      int
	Users       int
}

// Parse decodes and checks a seed document.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	known := make(map[string]bool, len(d.Permissions))
	for _, p := range d.Permissions {
		if p.Name == "" || p.Resource == "" || p.Action == "" {
			return nil, fmt.Errorf("parse seed: permission %q needs name, resource and action", p.Name)
		}
		known[p.Name] = true
	}
	for role, names := range d.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("parse seed: unknown role %q", role)
		}
		for _, n := range names {
			if !known[n] {
				return nil, fmt.Errorf("parse seed: role %s grants undefined permission %q", role, n)
			}
		}
	}
	for _, u := range d.Users {
		if !u.Role.Valid() {
			return nil, fmt.Errorf("parse seed: user %s has unknown role %q", u.Email, u.Role)
		}
		if err := domain.ValidatePassword(u.Password); err != nil {
			return nil, fmt.Errorf("parse seed: user %s: %w", u.Email, err)
		}
	}
	return &d, nil
}

// Defaults returns the embedded seed document.
func Defaults() (*Data, error) { return Parse(defaults) }

// Seeder writes a seed document through the repositories. Running it twice
// creates nothing the second time.
type Seeder struct {
	perms  ports.PermissionRepository
	users  ports.UserRepository
	hasher ports.PasswordHasher
	log    zerolog.Logger
	now    func() time.Time
}

func NewSeeder(perms ports.PermissionRepository, users ports.UserRepository, hasher ports.PasswordHasher, log zerolog.Logger) *Seeder {
	return &Seeder{perms: perms, users: users, hasher: hasher, log: log, now: time.Now}
}

func (s *Seeder) Run(ctx context.Context, d *Data) (Stats, error) {
	var st Stats

	ids := make(map[string]string, len(d.Permissions))
	for _, p := range d.Permissions {
		id, created, err := s.permission(ctx, p)
		if err != nil {
			return st, err
		}
		ids[p.Name] = id
		if created {
			st.Permissions++
		}
	}

	for role, names := range d.Roles {
		for _, n := range names {
			if err := s.perms.AssignToRole(ctx, role, ids[n]); err != nil {
				return st, fmt.Errorf("seed grant %s to %s: %w", n, role, err)
			}
			st.Grants++
		}
	}

	for _, u := range d.Users {
		created, err := s.user(ctx, u)
		if err != nil {
			return st, err
		}
		if created {
			st.Users++
		}
	}

	s.log.Info().
		Int("permissions_created", st.Permissions).
		Int("role_grants", st.Grants).
		Int("users_created", st.Users).
		Msg("seed applied")
	return st, nil
}

func (s *Seeder) permission(ctx context.Context, p Permission) (string, bool, error) {
	existing, err := s.perms.FindByName(ctx, p.Name)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", false, fmt.Errorf("seed permission %s: %w", p.Name, err)
	}

	now := s.now().UTC()
	perm := &domain.Permission{
		ID:        uuid.NewString(),
		Name:      p.Name,
		Resource:  p.Resource,
		Action:    p.Action,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Description != "" {
		desc := p.Description
		perm.Description = &desc
	}
	created, err := s.perms.Create(ctx, perm)
	if err != nil {
		return "", false, fmt.Errorf("seed permission %s: %w", p.Name, err)
	}
	return created.ID, true, nil
}

func (s *Seeder) user(ctx context.Context, u User) (bool, error) {
	exists, err := s.users.ExistsByEmail(ctx, u.Email)
	if err != nil {
		return false, fmt.Errorf("seed user %s: %w", u.Email, err)
	}
	if exists {
		return false, nil
	}

	hash, err := s.hasher.Hash(u.Password)
	if err != nil {
		return false, fmt.Errorf("seed user %s: hash: %w", u.Email, err)
	}
	now := s.now().UTC()
	user := &domain.User{
		ID:              uuid.NewString(),
		Email:           u.Email,
		Username:        u.Username,
		PasswordHash:    hash,
		Role:            u.Role,
		IsActive:        true,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if u.FirstName != "" {
		first := u.FirstName
		user.FirstName = &first
	}
	if u.LastName != "" {
		last := u.LastName
		user.LastName = &last
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		return false, fmt.Errorf("seed user %s: %w", u.Email, err)
	}
	return true, nil
}
