package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/abneribeiro/apits/docs"
	"github.com/abneribeiro/apits/internal/api/handler"
	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/api/middleware"
	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
	"github.com/abneribeiro/apits/internal/infrastructure/http/handlers"
	"github.com/abneribeiro/apits/internal/infrastructure/ratelimit"
)

// Deps are the collaborators the router wires into handlers and middleware.
type Deps struct {
	Auth        ports.AuthService
	Users       ports.UserService
	Permissions ports.PermissionService
	Authorizer  ports.Authorizer

	// Limiter guards /api. Nil disables rate limiting.
	Limiter ratelimit.Limiter
	// Probes are checked by /health/ready.
	Probes      []handlers.Probe
	CORSOrigins []string

	// Registry receives the HTTP and custom metrics served on /metrics.
	// Nil means a fresh registry with the Go and process collectors.
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
	}))
	// Metrics wrap the logger so they see the status the error handler wrote.
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "apits",
		Subsystem:  "http",
		Registerer: reg,
	}))
	e.Use(requestLogger(d.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: d.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// --- Health probes and tooling (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Probes...)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- API ---
	v1 := e.Group("/api/v1")
	if d.Limiter != nil {
		v1.Use(middleware.RateLimit(d.Limiter, d.Log))
	}

	authn := middleware.Authenticate(d.Authorizer, m)
	admin := middleware.RequireRole(d.Authorizer, m, domain.RoleAdmin)

	authHandler := handler.NewAuthHandler(d.Auth, d.Users, m)
	userHandler := handler.NewUserHandler(d.Users, m)
	permHandler := handler.NewPermissionHandler(d.Permissions)

	users := v1.Group("/users")
	users.POST("/register", authHandler.Register)
	users.POST("/login", authHandler.Login)
	users.POST("/logout", authHandler.Logout, authn)
	users.POST("/refresh-token", authHandler.Refresh)
	users.GET("/profile", authHandler.Profile, authn)
	users.PUT("/profile", authHandler.UpdateProfile, authn)
	users.PUT("/profile/change-password", authHandler.ChangePassword, authn)

	users.GET("", userHandler.List, authn, admin)
	users.GET("/:id", userHandler.Get, authn, middleware.RequireSelfOrAdmin(d.Authorizer, m, "id"))
	users.PUT("/:id", userHandler.Update, authn, admin)
	users.DELETE("/:id", userHandler.Delete, authn, admin)
	users.PUT("/:id/deactivate", userHandler.Deactivate, authn, admin)
	users.PUT("/:id/activate", userHandler.Activate, authn, admin)

	// Reads are open to any holder of permissions.read; writes stay admin only.
	perms := v1.Group("/permissions", authn)
	canRead := middleware.RequirePermission(d.Authorizer, m, "permissions", "read")
	perms.POST("/check", permHandler.Check)
	perms.POST("", permHandler.Create, admin)
	perms.GET("", permHandler.List, canRead)
	perms.GET("/:id", permHandler.Get, canRead)
	perms.PUT("/:id", permHandler.Update, admin)
	perms.DELETE("/:id", permHandler.Delete, admin)
	perms.POST("/role/assign", permHandler.AssignToRole, admin)
	perms.POST("/role/revoke", permHandler.RevokeFromRole, admin)
	perms.GET("/role/:role", permHandler.RolePermissions, canRead)
	perms.POST("/user/assign", permHandler.AssignToUser, admin)
	perms.POST("/user/revoke", permHandler.RevokeFromUser, admin)
	perms.GET("/user/:userId", permHandler.UserPermissions, admin)
	perms.GET("/user/:userId/all", permHandler.UserEffectivePermissions, admin)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
