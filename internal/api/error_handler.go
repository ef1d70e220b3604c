package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/api/handler"
	"github.com/abneribeiro/apits/internal/core/domain"
)

const internalMessage = "internal server error"

// kindStatus maps every domain.Kind to its HTTP status.
var kindStatus = map[domain.Kind]int{
	domain.KindInternal:               http.StatusInternalServerError,
	domain.KindValidation:             http.StatusBadRequest,
	domain.KindInvalidCredentials:     http.StatusUnauthorized,
	domain.KindAccountInactive:        http.StatusUnauthorized,
	domain.KindInvalidToken:           http.StatusUnauthorized,
	domain.KindTokenExpired:           http.StatusUnauthorized,
	domain.KindInsufficientPermission: http.StatusForbidden,
	domain.KindNotFound:               http.StatusNotFound,
	domain.KindDuplicateEntity:        http.StatusConflict,
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	if code, ok := kindStatus[domain.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain error kinds to their HTTP status codes.
//   - Keeps the code of echo's own errors (router 404/405, 429 from the rate limiter).
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders the response envelope with success=false.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = handler.Failure(c, code, msg)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			logUnexpected(log, c, err)
			return he.Code, internalMessage
		}
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	if domain.KindOf(err) == domain.KindInternal {
		logUnexpected(log, c, err)
		return http.StatusInternalServerError, internalMessage
	}

	return StatusOf(err), domain.Message(err)
}

func logUnexpected(log zerolog.Logger, c echo.Context, err error) {
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled error")
}
