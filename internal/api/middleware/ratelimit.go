package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/infrastructure/ratelimit"
)

const tooManyRequests = "Too many requests from this IP, please try again later."

// RateLimit admits at most the limiter's budget of requests per client,
// where a client is its IP address together with its User-Agent. A limiter
// failure lets the request through.
func RateLimit(l ratelimit.Limiter, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := clientKey(c)
			d, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				log.Warn().Err(err).Msg("rate limiter unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, tooManyRequests)
			}
			return next(c)
		}
	}
}

func clientKey(c echo.Context) string {
	ua := c.Request().UserAgent()
	if ua == "" {
		ua = "unknown"
	}
	return c.RealIP() + ":" + ua
}
