package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/api/middleware"
	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

type stubAuthService struct {
	registerFn       func(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error)
	loginFn          func(ctx context.Context, email, password string) (*ports.AuthResult, error)
	logoutFn         func(ctx context.Context, refreshToken string) error
	refreshFn        func(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	changePasswordFn func(ctx context.Context, userID, current, next string) error
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.logoutFn(ctx, refreshToken)
}

func (s *stubAuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubAuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	return s.changePasswordFn(ctx, userID, current, next)
}

type stubUserService struct {
	getFn        func(ctx context.Context, id string) (*domain.UserWithPermissions, error)
	listFn       func(ctx context.Context, q domain.PageQuery) (domain.Page[domain.UserWithPermissions], error)
	updateFn     func(ctx context.Context, id string, upd domain.UserUpdate) (*domain.UserWithPermissions, bool, error)
	deleteFn     func(ctx context.Context, id string) error
	deactivateFn func(ctx context.Context, id string) (*domain.UserWithPermissions, error)
	activateFn   func(ctx context.Context, id string) (*domain.UserWithPermissions, error)
}

func (s *stubUserService) GetUser(ctx context.Context, id string) (*domain.UserWithPermissions, error) {
	return s.getFn(ctx, id)
}

func (s *stubUserService) ListUsers(ctx context.Context, q domain.PageQuery) (domain.Page[domain.UserWithPermissions], error) {
	return s.listFn(ctx, q)
}

func (s *stubUserService) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (*domain.UserWithPermissions, bool, error) {
	return s.updateFn(ctx, id, upd)
}

func (s *stubUserService) DeleteUser(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubUserService) Deactivate(ctx context.Context, id string) (*domain.UserWithPermissions, error) {
	return s.deactivateFn(ctx, id)
}

func (s *stubUserService) Activate(ctx context.Context, id string) (*domain.UserWithPermissions, error) {
	return s.activateFn(ctx, id)
}

// stubPermissionService embeds the interface so tests only set what they use.
type stubPermissionService struct {
	ports.PermissionService
	createFn     func(ctx context.Context, in ports.CreatePermissionInput) (*domain.Permission, error)
	listFn       func(ctx context.Context, q domain.PageQuery) (domain.Page[*domain.Permission], error)
	assignRoleFn func(ctx context.Context, role, permissionID string) error
	revokeUserFn func(ctx context.Context, userID, permissionID string) error
	effectiveFn  func(ctx context.Context, userID string) ([]domain.Permission, error)
	checkFn      func(ctx context.Context, userID string, role domain.Role, resource, action string) (bool, error)
}

func (s *stubPermissionService) Create(ctx context.Context, in ports.CreatePermissionInput) (*domain.Permission, error) {
	return s.createFn(ctx, in)
}

func (s *stubPermissionService) List(ctx context.Context, q domain.PageQuery) (domain.Page[*domain.Permission], error) {
	return s.listFn(ctx, q)
}

func (s *stubPermissionService) AssignToRole(ctx context.Context, role, permissionID string) error {
	return s.assignRoleFn(ctx, role, permissionID)
}

func (s *stubPermissionService) RevokeFromUser(ctx context.Context, userID, permissionID string) error {
	return s.revokeUserFn(ctx, userID, permissionID)
}

func (s *stubPermissionService) UserEffectivePermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	return s.effectiveFn(ctx, userID)
}

func (s *stubPermissionService) CheckPermission(ctx context.Context, userID string, role domain.Role, resource, action string) (bool, error) {
	return s.checkFn(ctx, userID, role, resource, action)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func newMetrics() *metrics.Metrics { return metrics.New(prometheus.NewRegistry()) }

func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withPrincipal(c echo.Context, id string, role domain.Role) echo.Context {
	middleware.SetPrincipal(c, domain.Principal{UserID: id, Email: id + "@example.com", Role: role})
	return c
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func sampleUser(id string, role domain.Role) *domain.UserWithPermissions {
	return &domain.UserWithPermissions{
		User:        domain.User{ID: id, Email: id + "@example.com", Username: id, Role: role, IsActive: true},
		Permissions: []string{"users.read"},
	}
}
