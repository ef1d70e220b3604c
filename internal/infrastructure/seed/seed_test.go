package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/core/domain"
)

type memPerms struct {
	byName map[string]*domain.Permission
	grants map[domain.Role]map[string]bool
}

func newMemPerms() *memPerms {
	return &memPerms{byName: map[string]*domain.Permission{}, grants: map[domain.Role]map[string]bool{}}
}

func (m *memPerms) Create(_ context.Context, p *domain.Permission) (*domain.Permission, error) {
	if _, ok := m.byName[p.Name]; ok {
		return nil, domain.ErrPermissionExists
	}
	cp := *p
	m.byName[p.Name] = &cp
	return &cp, nil
}

func (m *memPerms) FindByID(_ context.Context, id string) (*domain.Permission, error) {
	for _, p := range m.byName {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrPermissionNotFound
}

func (m *memPerms) FindByName(_ context.Context, name string) (*domain.Permission, error) {
	if p, ok := m.byName[name]; ok {
		return p, nil
	}
	return nil, domain.ErrPermissionNotFound
}

func (m *memPerms) List(context.Context, domain.PageQuery) ([]*domain.Permission, int, error) {
	return nil, 0, nil
}

func (m *memPerms) Update(context.Context, string, domain.PermissionUpdate) (*domain.Permission, error) {
	return nil, domain.ErrPermissionNotFound
}

func (m *memPerms) Delete(context.Context, string) error { return nil }

func (m *memPerms) AssignToRole(_ context.Context, role domain.Role, id string) error {
	if m.grants[role] == nil {
		m.grants[role] = map[string]bool{}
	}
	m.grants[role][id] = true
	return nil
}

func (m *memPerms) RevokeFromRole(context.Context, domain.Role, string) (bool, error) {
	return false, nil
}

func (m *memPerms) FindRolePermissions(context.Context, domain.Role) ([]domain.Permission, error) {
	return nil, nil
}

func (m *memPerms) AssignToUser(context.Context, string, string) error { return nil }

func (m *memPerms) RevokeFromUser(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *memPerms) FindUserPermissions(context.Context, string) ([]domain.Permission, error) {
	return nil, nil
}

type memUsers struct {
	byEmail map[string]*domain.User
}

func (m *memUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	cp := *u
	m.byEmail[u.Email] = &cp
	return &cp, nil
}

func (m *memUsers) FindByID(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *memUsers) ExistsByUsername(context.Context, string) (bool, error) { return false, nil }

func (m *memUsers) List(context.Context, domain.PageQuery) ([]*domain.User, int, error) {
	return nil, 0, nil
}

func (m *memUsers) Update(context.Context, string, domain.UserUpdate) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) UpdatePassword(context.Context, string, string) error { return nil }
func (m *memUsers) UpdateLastLogin(context.Context, string, time.Time) error { return nil }
func (m *memUsers) SetActive(context.Context, string, bool) (*domain.User, error) { return nil, nil }
func (m *memUsers) Delete(context.Context, string) error { return nil }

type prefixHasher struct{}

func (prefixHasher) Hash(pw string) (string, error) { return "h$" + pw, nil }

func (prefixHasher) Verify(pw, hash string) (bool, error) { return hash == "h$"+pw, nil }

func TestDefaults(t *testing.T) {
	d, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	if len(d.Permissions) != 7 {
		t.Fatalf("expected 7 permissions, got %d", len(d.Permissions))
	}
	if len(d.Roles[domain.RoleAdmin]) != 7 || len(d.Roles[domain.RoleModerator]) != 3 || len(d.Roles[domain.RoleUser]) != 1 {
		t.Fatalf("unexpected role grants: %v", d.Roles)
	}
	if len(d.Users) != 3 || d.Users[0].Email != "admin@example.com" || d.Users[0].Role != domain.RoleAdmin {
		t.Fatalf("unexpected users: %+v", d.Users)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown role":     "roles:\n  root: []\n",
		"undefined grant":  "roles:\n  user: [users.read]\n",
		"weak password":    "users:\n  - email: a@example.com\n    password: weak\n    role: user\n",
		"missing resource": "permissions:\n  - name: x\n    action: read\n",
		"invalid yaml":     "permissions: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestSeeder_RunIsIdempotent(t *testing.T) {
	perms := newMemPerms()
	users := &memUsers{byEmail: map[string]*domain.User{}}
	s := NewSeeder(perms, users, prefixHasher{}, zerolog.Nop())

	d, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}

	first, err := s.Run(context.Background(), d)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Permissions != 7 || first.Users != 3 || first.Grants != 11 {
		t.Fatalf("unexpected first run stats: %+v", first)
	}

	second, err := s.Run(context.Background(), d)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Permissions != 0 || second.Users != 0 {
		t.Fatalf("second run must create nothing, got %+v", second)
	}
	if len(perms.byName) != 7 || len(users.byEmail) != 3 {
		t.Fatalf("unexpected store sizes: %d permissions, %d users", len(perms.byName), len(users.byEmail))
	}
	if len(perms.grants[domain.RoleModerator]) != 3 {
		t.Fatalf("moderator should hold 3 grants, got %d", len(perms.grants[domain.RoleModerator]))
	}

	admin := users.byEmail["admin@example.com"]
	if admin.Role != domain.RoleAdmin || !admin.IsActive || !strings.HasPrefix(admin.PasswordHash, "h$") {
		t.Fatalf("unexpected admin account: %+v", admin)
	}
	if admin.FirstName == nil || *admin.FirstName != "Admin" {
		t.Fatalf("expected first name to be seeded")
	}
}
