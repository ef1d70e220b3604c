package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

const principalKey = "principal"

// SetPrincipal stores the authenticated caller on c.
func SetPrincipal(c echo.Context, p domain.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller stored by Authenticate.
func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(principalKey).(domain.Principal)
	return p, ok
}

// Authenticate resolves the bearer token into a Principal and injects it
// into the context. Deactivated or deleted accounts are rejected even when
// their token is still valid.
func Authenticate(authz ports.Authorizer, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				m.Decision(metrics.GateAuthenticate, err)
				return err
			}

			p, err := authz.Authenticate(c.Request().Context(), token)
			m.Decision(metrics.GateAuthenticate, err)
			if err != nil {
				return err
			}

			SetPrincipal(c, *p)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", domain.E(domain.KindInvalidToken, "access token is required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", domain.E(domain.KindInvalidToken, "invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}
