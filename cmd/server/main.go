// Command server runs the user management API.
//
//	@title						User management API
//	@version					1.0
//	@description				Accounts, role and user permissions, JWT sessions with refresh rotation.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abneribeiro/apits/internal/api"
	"github.com/abneribeiro/apits/internal/core/ports"
	"github.com/abneribeiro/apits/internal/core/service"
	"github.com/abneribeiro/apits/internal/infrastructure/config"
	mongostore "github.com/abneribeiro/apits/internal/infrastructure/db/mongo"
	pgstore "github.com/abneribeiro/apits/internal/infrastructure/db/postgres"
	redisstore "github.com/abneribeiro/apits/internal/infrastructure/db/redis"
	"github.com/abneribeiro/apits/internal/infrastructure/http/handlers"
	"github.com/abneribeiro/apits/internal/infrastructure/ratelimit"
	"github.com/abneribeiro/apits/internal/infrastructure/security"
	"github.com/abneribeiro/apits/internal/infrastructure/seed"
	"github.com/abneribeiro/apits/internal/infrastructure/worker"
	"github.com/abneribeiro/apits/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(context.Background(), nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "apits"})
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	hasher, err := security.NewHasher(cfg.Password.Hasher, cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	if cfg.SeedDefaults {
		if cfg.IsProduction() {
			log.Warn().Msg("seeding default accounts in production")
		}
		data, err := seed.Defaults()
		if err != nil {
			return err
		}
		seeder := seed.NewSeeder(st.perms, st.users, hasher, logger.Component(log, "seed"))
		if _, err := seeder.Run(ctx, data); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	tokens, err := service.NewTokenIssuer(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}

	resolver := service.NewPermissionResolver(st.perms)
	authService := service.NewAuthService(st.users, st.sessions, hasher, resolver, tokens, logger.Component(log, "auth"))
	userService := service.NewUserService(st.users, st.sessions, resolver, logger.Component(log, "users"))
	permService := service.NewPermissionService(st.perms, st.users, resolver, logger.Component(log, "permissions"))
	guard := service.NewGuard(tokens, st.users, resolver)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if st.redis != nil {
			limiter = redisstore.NewFixedWindow(st.redis, cfg.RateLimit.Max, cfg.RateLimit.Window)
		} else {
			mem := ratelimit.NewMemory(cfg.RateLimit.Max, cfg.RateLimit.Window)
			mem.Start(ctx)
			limiter = mem
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := api.NewRouter(api.Deps{
		Auth:        authService,
		Users:       userService,
		Permissions: permService,
		Authorizer:  guard,
		Limiter:     limiter,
		Probes:      st.probes,
		CORSOrigins: cfg.CORSOrigins,
		Registry:    reg,
		Log:         logger.Component(log, "http"),
	})

	sweepDone := worker.NewSweeper(st.sessions, cfg.SweepEvery, logger.Component(log, "sweeper")).Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Env).
			Str("store", cfg.StoreDriver).
			Str("sessions", cfg.SessionStore).
			Str("password_hasher", hasher.Scheme()).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		<-sweepDone
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	<-sweepDone
	log.Info().Msg("stopped")
	return nil
}

// stores holds the repositories selected by configuration together with the
// connections they were built on.
type stores struct {
	users    ports.UserRepository
	perms    ports.PermissionRepository
	sessions ports.SessionStore
	redis    *goredis.Client
	probes   []handlers.Probe
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (st *stores, err error) {
	st = &stores{}
	defer func() {
		if err != nil {
			st.close()
		}
	}()

	switch cfg.StoreDriver {
	case "postgres":
		db, err := pgstore.Connect(ctx, pgstore.Config{DSN: cfg.Postgres.DSN, MaxOpenConns: 10, MaxIdleConns: 10})
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, func() { _ = db.Close() })
		if cfg.AutoMigrate {
			if err := pgstore.Migrate(ctx, db); err != nil {
				return st, err
			}
		}
		st.users = pgstore.NewUserRepository(db)
		st.perms = pgstore.NewPermissionRepository(db)
		st.sessions = pgstore.NewSessionStore(db)
		st.probes = append(st.probes, handlers.PostgresProbe(db))

	case "mongo":
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		})
		if cfg.AutoMigrate {
			if err := mongostore.EnsureIndexes(ctx, db); err != nil {
				return st, err
			}
		}
		st.users = mongostore.NewUserRepository(db)
		st.perms = mongostore.NewPermissionRepository(db)
		st.sessions = mongostore.NewSessionStore(db)
		st.probes = append(st.probes, handlers.MongoProbe(db))
	}

	if cfg.UsesRedis() {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		st.redis = rdb
		st.probes = append(st.probes, handlers.RedisProbe(rdb))
		if cfg.SessionStore == "redis" {
			st.sessions = redisstore.NewSessionStore(rdb)
		}
	}

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("sessions", cfg.SessionStore).
		Bool("redis", st.redis != nil).
		Msg("stores ready")
	return st, nil
}
