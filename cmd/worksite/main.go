package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/worksite-pm/worksite/cmd/worksite/cli"
	"github.com/worksite-pm/worksite/internal/app"
	"github.com/worksite-pm/worksite/internal/auth"
	"github.com/worksite-pm/worksite/internal/companies"
	"github.com/worksite-pm/worksite/internal/observability"
	"github.com/worksite-pm/worksite/internal/platform/cache"
	"github.com/worksite-pm/worksite/internal/platform/db"
	"github.com/worksite-pm/worksite/internal/policy"
	"github.com/worksite-pm/worksite/internal/rbac"
	"github.com/worksite-pm/worksite/internal/roles"
	"github.com/worksite-pm/worksite/internal/shared"
	"github.com/worksite-pm/worksite/jobs"
)

func main() {
	if len(os.Args) > 1 {
		os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	// A malformed policy is fatal.
	policySet, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		logger.Error("load policy", slog.Any("error", err))
		os.Exit(1)
	}
	evaluator, err := policy.NewEvaluator(policySet)
	if err != nil {
		logger.Error("build evaluator", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("policy loaded", slog.String("source", policySet.Source()), slog.Int("rules", policySet.Len()))

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	var roleCache roles.Cache
	switch cfg.RoleCacheBackend {
	case app.RoleCacheRedis:
		roleCache = roles.NewRedisCache(redisClient, cfg.RoleCacheTTL)
	default:
		roleCache = roles.NewMemoryCache(cfg.RoleCacheTTL)
	}
	resolver := roles.NewResolver(roles.NewRepository(dbpool), roleCache,
		roles.WithLogger(logger),
		roles.WithRecorder(metrics),
		roles.WithLookupTimeout(cfg.RoleLookupTimeout),
	)

	authService := auth.NewService(auth.NewRepository(dbpool))
	gate := rbac.NewGate(authService, resolver, evaluator, rbac.WithLogger(logger), rbac.WithRecorder(metrics))
	rbacMiddleware := rbac.Middleware{Gate: gate, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	companyService := companies.NewService(companies.NewRepository(dbpool), policySet, resolver, auditLogger, logger)

	jobQueue := jobs.NewQueue(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobQueue.Close(); err != nil {
			logger.Warn("job queue close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      auth.NewHandler(logger, authService, sessionManager, csrfManager, resolver),
		AccessHandler:    rbac.NewHandler(logger, gate),
		RolesHandler:     roles.NewHandler(logger, resolver),
		CompaniesHandler: companies.NewHandler(logger, companyService, rbacMiddleware),
		JobHandler:       jobs.NewHandler(jobQueue, rbacMiddleware, logger),
		Metrics:          metrics,
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
