package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/token-auth/internal/api/http"
	"github.com/spec-kit/token-auth/internal/api/http/handlers"
	"github.com/spec-kit/token-auth/internal/auth"
	"github.com/spec-kit/token-auth/internal/config"
	"github.com/spec-kit/token-auth/internal/observability"
	"github.com/spec-kit/token-auth/internal/persistence"
	"github.com/spec-kit/token-auth/internal/repository"
	"github.com/spec-kit/token-auth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.App, cfg.Logger)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.PoolHandle() == nil {
		logger.Fatal("POSTGRES_DSN is required to resolve identities")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	dependencies := map[string]handlers.Pinger{"postgres": pg}

	userRepo := repository.NewUserRepository(pg.PoolHandle())
	var resolver repository.IdentityResolver = userRepo

	if redis := persistence.NewRedis(cfg.Redis, logger); redis != nil {
		defer redis.Close()
		dependencies["redis"] = redis
		resolver = repository.NewCachedIdentityResolver(userRepo, redis.Client, cfg.Redis.IdentityCacheTTL, logger)
	}

	metrics := observability.NewMetrics("token_auth")

	tokens, err := auth.NewTokenService(cfg.Auth.SigningKey, resolver,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("failed to init token service", zap.Error(err))
	}

	loginService := service.NewLoginService(userRepo, tokens, auth.NewPasswordHasher(cfg.Auth.PasswordCost))

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Sessions:       handlers.NewSessionHandler(loginService, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
