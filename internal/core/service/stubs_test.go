package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/core/domain"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

var errStoreDown = errors.New("store unavailable")

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

type stubUserRepo struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	failFind  bool
	lastLogin map[string]time.Time

	// beforeDelete runs at the start of Delete, outside the lock.
	beforeDelete func()
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User), lastLogin: make(map[string]time.Time)}
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrEmailExists
		}
		if u.Username == user.Username {
			return nil, domain.ErrUsernameExists
		}
	}
	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFind {
		return nil, errStoreDown
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubUserRepo) List(_ context.Context, q domain.PageQuery) ([]*domain.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *stubUserRepo) Update(_ context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	upd.Apply(u)
	return cloneUser(u), nil
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	r.lastLogin[id] = at
	return nil
}

func (r *stubUserRepo) SetActive(_ context.Context, id string, active bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.IsActive = active
	return cloneUser(u), nil
}

func (r *stubUserRepo) Delete(_ context.Context, id string) error {
	if r.beforeDelete != nil {
		r.beforeDelete()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

type stubPermRepo struct {
	mu         sync.Mutex
	perms      map[string]*domain.Permission
	roleGrants map[domain.Role][]string
	userGrants map[string][]string
	roleCalls  int
	userCalls  int
	failUser   bool
}

func newStubPermRepo() *stubPermRepo {
	return &stubPermRepo{
		perms:      make(map[string]*domain.Permission),
		roleGrants: make(map[domain.Role][]string),
		userGrants: make(map[string][]string),
	}
}

func (r *stubPermRepo) add(id, resource, action string) domain.Permission {
	p := domain.Permission{ID: id, Name: resource + "." + action, Resource: resource, Action: action}
	r.mu.Lock()
	r.perms[id] = &p
	r.mu.Unlock()
	return p
}

func (r *stubPermRepo) Create(_ context.Context, p *domain.Permission) (*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.perms {
		if existing.Name == p.Name {
			return nil, domain.ErrPermissionExists
		}
	}
	clone := *p
	r.perms[p.ID] = &clone
	out := clone
	return &out, nil
}

func (r *stubPermRepo) FindByID(_ context.Context, id string) (*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.perms[id]
	if !ok {
		return nil, domain.ErrPermissionNotFound
	}
	out := *p
	return &out, nil
}

func (r *stubPermRepo) FindByName(_ context.Context, name string) (*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.perms {
		if p.Name == name {
			out := *p
			return &out, nil
		}
	}
	return nil, domain.ErrPermissionNotFound
}

func (r *stubPermRepo) List(_ context.Context, q domain.PageQuery) ([]*domain.Permission, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out := *p
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *stubPermRepo) Update(_ context.Context, id string, upd domain.PermissionUpdate) (*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.perms[id]
	if !ok {
		return nil, domain.ErrPermissionNotFound
	}
	upd.Apply(p)
	out := *p
	return &out, nil
}

func (r *stubPermRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.perms[id]; !ok {
		return domain.ErrPermissionNotFound
	}
	delete(r.perms, id)
	for role, ids := range r.roleGrants {
		r.roleGrants[role] = without(ids, id)
	}
	for user, ids := range r.userGrants {
		r.userGrants[user] = without(ids, id)
	}
	return nil
}

func (r *stubPermRepo) AssignToRole(_ context.Context, role domain.Role, permissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !contains(r.roleGrants[role], permissionID) {
		r.roleGrants[role] = append(r.roleGrants[role], permissionID)
	}
	return nil
}

func (r *stubPermRepo) RevokeFromRole(_ context.Context, role domain.Role, permissionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !contains(r.roleGrants[role], permissionID) {
		return false, nil
	}
	r.roleGrants[role] = without(r.roleGrants[role], permissionID)
	return true, nil
}

func (r *stubPermRepo) FindRolePermissions(_ context.Context, role domain.Role) ([]domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roleCalls++
	return r.resolve(r.roleGrants[role]), nil
}

func (r *stubPermRepo) AssignToUser(_ context.Context, userID, permissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !contains(r.userGrants[userID], permissionID) {
		r.userGrants[userID] = append(r.userGrants[userID], permissionID)
	}
	return nil
}

func (r *stubPermRepo) RevokeFromUser(_ context.Context, userID, permissionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !contains(r.userGrants[userID], permissionID) {
		return false, nil
	}
	r.userGrants[userID] = without(r.userGrants[userID], permissionID)
	return true, nil
}

func (r *stubPermRepo) FindUserPermissions(_ context.Context, userID string) ([]domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userCalls++
	if r.failUser {
		return nil, errStoreDown
	}
	return r.resolve(r.userGrants[userID]), nil
}

func (r *stubPermRepo) resolve(ids []string) []domain.Permission {
	out := make([]domain.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.perms[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// stubSessionStore keeps records in memory under the hashed token, rotating
// under one lock so a token can be consumed at most once.
type stubSessionStore struct {
	mu      sync.Mutex
	records map[string]domain.RefreshToken

	// afterConsume runs between removing the old record and storing the new
	// one in Rotate, outside the lock.
	afterConsume func()
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{records: make(map[string]domain.RefreshToken)}
}

func (s *stubSessionStore) Create(_ context.Context, rt domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[domain.HashToken(rt.Token)] = rt
	return nil
}

func (s *stubSessionStore) Find(_ context.Context, token string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.records[domain.HashToken(token)]
	if !ok {
		return nil, domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	return &rt, nil
}

func (s *stubSessionStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.HashToken(token)
	_, ok := s.records[key]
	delete(s.records, key)
	return ok, nil
}

func (s *stubSessionStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rt := range s.records {
		if rt.UserID == userID {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *stubSessionStore) Rotate(_ context.Context, oldToken string, next domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.HashToken(oldToken)
	if _, ok := s.records[key]; !ok {
		return domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	delete(s.records, key)
	hook := s.afterConsume
	if hook != nil {
		s.mu.Unlock()
		hook()
		s.mu.Lock()
	}
	s.records[domain.HashToken(next.Token)] = next
	return nil
}

func (s *stubSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rt := range s.records {
		if rt.Expired(now) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *stubSessionStore) countFor(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rt := range s.records {
		if rt.UserID == userID {
			n++
		}
	}
	return n
}

// plainHasher keeps tests fast; it is not a real hash.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "plain$" + pw, nil }

func (plainHasher) Verify(pw, hash string) (bool, error) {
	return strings.TrimPrefix(hash, "plain$") == pw && strings.HasPrefix(hash, "plain$"), nil
}

type fixture struct {
	users    *stubUserRepo
	perms    *stubPermRepo
	sessions *stubSessionStore
	resolver *PermissionResolver
	tokens   *TokenIssuer
	auth     *AuthService
	userSvc  *UserService
	permSvc  *PermissionService
	guard    *Guard
}

func newFixture(t *testing.T, opts ...TokenIssuerOption) *fixture {
	t.Helper()
	f := &fixture{
		users:    newStubUserRepo(),
		perms:    newStubPermRepo(),
		sessions: newStubSessionStore(),
	}
	tokens, err := NewTokenIssuer(TokenConfig{Secret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	log := zerolog.Nop()
	f.tokens = tokens
	f.resolver = NewPermissionResolver(f.perms)
	f.auth = NewAuthService(f.users, f.sessions, plainHasher{}, f.resolver, f.tokens, log)
	f.userSvc = NewUserService(f.users, f.sessions, f.resolver, log)
	f.permSvc = NewPermissionService(f.perms, f.users, f.resolver, log)
	f.guard = NewGuard(f.tokens, f.users, f.resolver)
	return f
}
