package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/admin-authz/internal/authz"
	"github.com/jwalitptl/admin-authz/internal/config"
	auditHandler "github.com/jwalitptl/admin-authz/internal/handler/audit"
	"github.com/jwalitptl/admin-authz/internal/handler/health"
	promHandler "github.com/jwalitptl/admin-authz/internal/handler/prometheus"
	"github.com/jwalitptl/admin-authz/internal/middleware"
	"github.com/jwalitptl/admin-authz/internal/policy"
	"github.com/jwalitptl/admin-authz/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/admin-authz/internal/repository/redis"
	"github.com/jwalitptl/admin-authz/internal/router"
	"github.com/jwalitptl/admin-authz/internal/service/audit"
	"github.com/jwalitptl/admin-authz/pkg/auth"
	"github.com/jwalitptl/admin-authz/pkg/logger"
	"github.com/jwalitptl/admin-authz/pkg/messaging/redis"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(cfg.Log.ToLoggerConfig())
	gin.SetMode(gin.ReleaseMode)
	m := metrics.NewMetrics(prometheus.DefaultRegisterer, cfg.Metrics.Namespace, cfg.Metrics.Subsystem)

	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database.ToDBConfig())
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db, m)
	if err := postgres.EnsureAuditSchema(ctx, base); err != nil {
		appLog.Fatal(err, "failed to prepare audit schema")
	}
	auditRepo := postgres.NewAuditRepository(base)

	// Initialize Redis: outbox for failed appends, pub/sub for fan-out
	redisClient, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		appLog.Fatal(err, "failed to connect to Redis")
	}
	defer redisClient.Close()
	outbox := redisrepo.NewAuditOutbox(redisClient, cfg.Redis.OutboxPrefix, m)

	var recorderOpts []audit.Option
	if cfg.Audit.Publish {
		recorderOpts = append(recorderOpts, audit.WithPublisher(redis.NewRedisBroker(redisClient, appLog.Zerolog())))
	}
	recorder := audit.NewRecorder(auditRepo, outbox, appLog, m, cfg.Audit.ToRecorderConfig(), recorderOpts...)

	// Authorization
	registry, err := policy.Build(policy.DefaultTable())
	if err != nil {
		appLog.Fatal(err, "invalid policy table")
	}
	evaluator := authz.NewEvaluator(registry, cfg.Authz.EvaluatorOptions()...)
	verifier := auth.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Leeway)

	// Setup router
	r := router.NewRouter(router.Deps{
		Logger:    appLog,
		Auth:      middleware.NewAuthMiddleware(verifier, evaluator, recorder, m),
		Registry:  registry,
		RateLimit: cfg.RateLimit.ToRateLimiterConfig(),
		Audit:     auditHandler.NewHandler(audit.NewService(auditRepo)),
		Health: health.NewHandler(map[string]health.Pinger{
			"database": auditRepo,
			"redis": health.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}),
		Metrics: promHandler.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	})
	if err := r.Setup(); err != nil {
		appLog.Fatal(err, "failed to set up routes")
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
	}
	// denied-request records are written in the background
	if err := recorder.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "pending audit writes abandoned")
	}

	appLog.Info("server exited properly")
}
