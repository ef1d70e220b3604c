package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

// The gates below must run after Authenticate.

// RequireRole admits callers holding one of roles.
func RequireRole(authz ports.Authorizer, m *metrics.Metrics, roles ...domain.Role) echo.MiddlewareFunc {
	return gate(m, metrics.GateRole, func(c echo.Context, p domain.Principal) error {
		return authz.RequireRole(p, roles...)
	})
}

// RequirePermission admits callers whose effective permissions include
// action on resource, resolved fresh on every request.
func RequirePermission(authz ports.Authorizer, m *metrics.Metrics, resource, action string) echo.MiddlewareFunc {
	return gate(m, metrics.GatePermission, func(c echo.Context, p domain.Principal) error {
		return authz.RequirePermission(c.Request().Context(), p, resource, action)
	})
}

// RequireSelfOrAdmin admits admins and the user named by the path parameter param.
func RequireSelfOrAdmin(authz ports.Authorizer, m *metrics.Metrics, param string) echo.MiddlewareFunc {
	return gate(m, metrics.GateSelfOrAdmin, func(c echo.Context, p domain.Principal) error {
		return authz.RequireSelfOrAdmin(p, c.Param(param))
	})
}

func gate(m *metrics.Metrics, name string, check func(echo.Context, domain.Principal) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			err := check(c, p)
			m.Decision(name, err)
			if err != nil {
				return err
			}
			return next(c)
		}
	}
}
