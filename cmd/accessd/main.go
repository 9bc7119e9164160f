package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/accessd/accessd/internal/app"
	"github.com/accessd/accessd/internal/auth"
	"github.com/accessd/accessd/internal/authz"
	"github.com/accessd/accessd/internal/observability"
	"github.com/accessd/accessd/internal/permissions"
	"github.com/accessd/accessd/internal/platform/cache"
	"github.com/accessd/accessd/internal/platform/db"
	"github.com/accessd/accessd/internal/roles"
	"github.com/accessd/accessd/internal/shared"
	"github.com/accessd/accessd/internal/users"
	"github.com/accessd/accessd/jobs"
)

func jobsEnqueuer(cfg *app.Config) *jobs.Enqueuer {
	return jobs.NewEnqueuer(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
}

// roleSelection adapts the roles service for the permission tree endpoint.
func roleSelection(svc *roles.Service) permissions.RoleSelectionFunc {
	return func(ctx context.Context, roleID int64) ([]int64, error) {
		ids, err := svc.PermissionIDs(ctx, roleID)
		if errors.Is(err, roles.ErrRoleNotFound) {
			return nil, shared.ErrNotFound
		}
		return ids, err
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "accessd_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	store := authz.NewPGStore(pool)
	resolver := authz.NewResolver(store)
	builder := authz.NewBuilder(resolver)
	claims := authz.NewClaimsCache(redisClient, cfg.ClaimsTTL)

	evaluator := authz.NewEvaluator()
	for _, scope := range shared.CoreScopes() {
		evaluator.Register(scope, scope)
	}

	metrics := observability.NewMetrics()

	guard := authz.Middleware{
		Builder:   builder,
		Evaluator: evaluator,
		Claims:    claims,
		Logger:    logger,
		Metrics:   metrics,
	}

	enqueuer := jobsEnqueuer(cfg)
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("enqueuer close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, guard)

	auditLogger := shared.NewAuditLogger(pool)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, enqueuer, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	permissionsRepo := permissions.NewRepository(pool)
	permissionsService := permissions.NewService(permissionsRepo)
	permissionsHandler := permissions.NewHandler(logger, permissionsService, roleSelection(rolesService), guard)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, rolesService, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
