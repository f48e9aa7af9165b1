package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/admin-authz/pkg/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("AUTHZ_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "auto", cfg.Authz.Strict)
	assert.Equal(t, 5*time.Second, cfg.Audit.WriteTimeout)
	assert.Equal(t, uint32(5), cfg.Audit.BreakerFailures)
	assert.Equal(t, "audit.entries", cfg.Audit.PublishChannel)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 10, cfg.Outbox.MaxAttempts)
	assert.Nil(t, cfg.Authz.EvaluatorOptions())
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db.internal
  name: clinic_prod
  password: from-file
authz:
  strict: "true"
outbox:
  batch_size: 25
  poll_interval: 2s
  max_attempts: 4
`)
	t.Setenv("AUTHZ_JWT_SECRET", "s3cret")
	t.Setenv("AUTHZ_DB_PASSWORD", "from-env")
	t.Setenv("AUTHZ_OUTBOX_BATCH_SIZE", "40")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 40, cfg.Outbox.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 4, cfg.Outbox.ToWorkerConfig().MaxAttempts)
	assert.Len(t, cfg.Authz.EvaluatorOptions(), 1)

	db := cfg.Database.ToDBConfig()
	assert.Contains(t, db.DSN(), "dbname=clinic_prod")
	assert.Contains(t, db.DSN(), "password=from-env")
}

func TestLoadConfig_RequiresJWTSecret(t *testing.T) {
	t.Setenv("AUTHZ_JWT_SECRET", "")
	path := writeConfig(t, "server:\n  port: 8080\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret is required")
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	t.Setenv("AUTHZ_JWT_SECRET", "s3cret")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{Port: 0},
		Authz:  AuthzConfig{Strict: "sometimes"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
	assert.Contains(t, err.Error(), "invalid server port")
	assert.Contains(t, err.Error(), "authz.strict")
	assert.Contains(t, err.Error(), "outbox")
}

func TestConverters(t *testing.T) {
	rl := RateLimitConfig{Enabled: false, RequestsPerSecond: 5, Burst: 10}
	assert.Equal(t, rate.Inf, rl.ToRateLimiterConfig().Rate)

	rl.Enabled = true
	limiter := rl.ToRateLimiterConfig()
	assert.Equal(t, rate.Limit(5), limiter.Rate)
	assert.Equal(t, 10, limiter.Burst)

	outbox := OutboxConfig{BatchSize: 10, PollInterval: time.Second, RetryAttempts: 2, RetryDelay: time.Millisecond}
	w := outbox.ToWorkerConfig()
	assert.Equal(t, 10, w.BatchSize)
	assert.Equal(t, 2, w.RetryAttempts)

	audit := AuditConfig{WriteTimeout: time.Second, BreakerFailures: 3, PublishChannel: "x"}
	rc := audit.ToRecorderConfig()
	assert.Equal(t, uint32(3), rc.BreakerFailures)
	assert.Equal(t, "x", rc.PublishChannel)

	log := LogConfig{Level: "debug"}
	assert.Equal(t, logger.DebugLevel, log.ToLoggerConfig().Level)
	log.Level = "nonsense"
	assert.Equal(t, logger.InfoLevel, log.ToLoggerConfig().Level)
}
