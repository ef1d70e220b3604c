package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/abneribeiro/apits/internal/api/middleware"
	"github.com/abneribeiro/apits/internal/core/domain"
)

// principal returns the caller stored by the Authenticate middleware. Its
// absence means the route was mounted without authentication.
func principal(c echo.Context) (domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
	}
	return p, nil
}

// bind decodes the request body into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domain.E(domain.KindValidation, "invalid request payload")
	}
	return c.Validate(req)
}

// pageQuery reads page, limit, orderBy and order from the query string.
// Range and field checks are left to the services.
func pageQuery(c echo.Context) (domain.PageQuery, error) {
	var q domain.PageQuery
	err := echo.QueryParamsBinder(c).
		Int("page", &q.Page).
		Int("limit", &q.Limit).
		String("orderBy", &q.OrderBy).
		String("order", &q.Order).
		BindError()
	if err != nil {
		return q, domain.E(domain.KindValidation, "page and limit must be integers")
	}
	return q, nil
}
