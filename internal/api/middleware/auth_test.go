package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/core/domain"
)

type stubAuthorizer struct {
	authenticateFn func(ctx context.Context, token string) (*domain.Principal, error)
	roleFn         func(p domain.Principal, roles ...domain.Role) error
	permissionFn   func(ctx context.Context, p domain.Principal, resource, action string) error
	selfFn         func(p domain.Principal, target string) error
}

func (s *stubAuthorizer) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	return s.authenticateFn(ctx, token)
}

func (s *stubAuthorizer) RequireRole(p domain.Principal, roles ...domain.Role) error {
	return s.roleFn(p, roles...)
}

func (s *stubAuthorizer) RequirePermission(ctx context.Context, p domain.Principal, resource, action string) error {
	return s.permissionFn(ctx, p, resource, action)
}

func (s *stubAuthorizer) RequireSelfOrAdmin(p domain.Principal, target string) error {
	return s.selfFn(p, target)
}

func newMetrics() *metrics.Metrics { return metrics.New(prometheus.NewRegistry()) }

func TestAuthenticate_ValidToken(t *testing.T) {
	e := echo.New()
	stub := &stubAuthorizer{
		authenticateFn: func(_ context.Context, token string) (*domain.Principal, error) {
			if token != "tok123" {
				t.Fatalf("unexpected token %q", token)
			}
			return &domain.Principal{UserID: "u1", Email: "alice@example.com", Role: domain.RoleAdmin}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	m := newMetrics()
	called := false
	handler := Authenticate(stub, m)(func(c echo.Context) error {
		called = true
		p, ok := PrincipalFrom(c)
		if !ok || p.UserID != "u1" || p.Role != domain.RoleAdmin {
			t.Fatalf("principal not set: %+v", p)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if got := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues(metrics.GateAuthenticate, "allow")); got != 1 {
		t.Fatalf("expected one allow decision, got %v", got)
	}
}

func TestAuthenticate_RejectsBadHeaders(t *testing.T) {
	stub := &stubAuthorizer{
		authenticateFn: func(context.Context, string) (*domain.Principal, error) {
			t.Fatalf("authorizer must not be called")
			return nil, nil
		},
	}

	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer"} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		c := e.NewContext(req, httptest.NewRecorder())

		err := Authenticate(stub, newMetrics())(func(echo.Context) error {
			t.Fatalf("should not reach next")
			return nil
		})(c)
		if !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("header %q: expected ErrInvalidToken, got %v", header, err)
		}
	}
}

func TestAuthenticate_PropagatesAuthorizerError(t *testing.T) {
	e := echo.New()
	stub := &stubAuthorizer{
		authenticateFn: func(context.Context, string) (*domain.Principal, error) {
			return nil, domain.ErrAccountInactive
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok")
	c := e.NewContext(req, httptest.NewRecorder())

	m := newMetrics()
	err := Authenticate(stub, m)(func(echo.Context) error {
		t.Fatalf("should not reach next")
		return nil
	})(c)
	if !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if got := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues(metrics.GateAuthenticate, "account_inactive")); got != 1 {
		t.Fatalf("expected one account_inactive decision, got %v", got)
	}
}
