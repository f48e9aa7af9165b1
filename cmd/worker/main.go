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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/admin-authz/internal/config"
	"github.com/jwalitptl/admin-authz/internal/handler/health"
	promHandler "github.com/jwalitptl/admin-authz/internal/handler/prometheus"
	"github.com/jwalitptl/admin-authz/internal/middleware"
	"github.com/jwalitptl/admin-authz/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/admin-authz/internal/repository/redis"
	"github.com/jwalitptl/admin-authz/pkg/logger"
	"github.com/jwalitptl/admin-authz/pkg/messaging/redis"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
	"github.com/jwalitptl/admin-authz/pkg/worker"
)

// setupHealthCheck serves probes and metrics on a side port.
func setupHealthCheck(appLog *logger.Logger, port int, checks map[string]health.Pinger) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Recovery(appLog))
	health.NewHandler(checks).RegisterRoutes(engine)
	engine.GET("/metrics", promHandler.New(prometheus.NewRegistry(), prometheus.DefaultGatherer).Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLog := logger.NewLogger(cfg.Log.ToLoggerConfig()).WithFields(map[string]interface{}{
		"component": "outbox_worker",
	})
	gin.SetMode(gin.ReleaseMode)
	m := metrics.NewMetrics(prometheus.DefaultRegisterer, cfg.Metrics.Namespace, cfg.Metrics.Subsystem)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	redisClient, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		appLog.Fatal(err, "failed to connect to Redis")
	}
	defer redisClient.Close()
	outbox := redisrepo.NewAuditOutbox(redisClient, cfg.Redis.OutboxPrefix, m)

	processor := worker.NewOutboxProcessor(
		outbox,
		auditRepo,
		cfg.Outbox.ToWorkerConfig(),
		appLog,
		m,
	)

	healthSrv := setupHealthCheck(appLog, cfg.Server.HealthPort, map[string]health.Pinger{
		"database": auditRepo,
		"redis": health.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLog.Info("shutting down...")
		cancel()
	}()

	processor.Start(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "health server forced to shutdown")
	}
}
