package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/admin-authz/internal/authz"
	"github.com/jwalitptl/admin-authz/internal/middleware"
	"github.com/jwalitptl/admin-authz/internal/repository/postgres"
	"github.com/jwalitptl/admin-authz/internal/service/audit"
	"github.com/jwalitptl/admin-authz/pkg/logger"
	"github.com/jwalitptl/admin-authz/pkg/messaging/redis"
	"github.com/jwalitptl/admin-authz/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. AUTHZ_SERVER_PORT.
const EnvPrefix = "AUTHZ"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Authz     AuthzConfig     `mapstructure:"authz"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	// HealthPort serves the worker's probes and metrics.
	HealthPort int `mapstructure:"health_port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	OutboxPrefix string        `mapstructure:"outbox_prefix"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Leeway time.Duration `mapstructure:"leeway"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type AuthzConfig struct {
	// Strict is "true", "false" or "auto". Auto follows the build tag.
	Strict string `mapstructure:"strict"`
}

type AuditConfig struct {
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	PublishChannel  string        `mapstructure:"publish_channel"`
	Publish         bool          `mapstructure:"publish"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	DedupeTTL     time.Duration `mapstructure:"dedupe_ttl"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// Secrets never live in the config file.
type Secrets struct {
	JWTSecret  string `envconfig:"JWT_SECRET"`
	DBPassword string `envconfig:"DB_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<14)
	v.SetDefault("server.health_port", 8081)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.outbox_prefix", "audit:outbox")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.leeway", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("authz.strict", "auto")

	v.SetDefault("audit.write_timeout", 5*time.Second)
	v.SetDefault("audit.breaker_failures", 5)
	v.SetDefault("audit.breaker_cooldown", 30*time.Second)
	v.SetDefault("audit.publish_channel", "audit.entries")
	v.SetDefault("audit.publish", true)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.dedupe_ttl", 10*time.Minute)
	v.SetDefault("outbox.max_attempts", 10)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("metrics.namespace", "clinic")
	v.SetDefault("metrics.subsystem", "authz")
}

// LoadConfig reads path, or config.yaml from the usual locations when path
// is empty. A missing default file is not an error. Environment variables
// override the file and secrets come from AUTHZ_JWT_SECRET and
// AUTHZ_DB_PASSWORD.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(EnvPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	if secrets.JWTSecret != "" {
		config.JWT.Secret = secrets.JWTSecret
	}
	if secrets.DBPassword != "" {
		config.Database.Password = secrets.DBPassword
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required (AUTHZ_JWT_SECRET)"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	switch c.Authz.Strict {
	case "", "auto", "true", "false":
	default:
		errs = append(errs, fmt.Errorf("authz.strict must be auto, true or false, got %q", c.Authz.Strict))
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.MaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox batch_size, retry_attempts and max_attempts must be positive"))
	}
	if c.Outbox.PollInterval <= 0 || c.Outbox.RetryDelay <= 0 {
		errs = append(errs, errors.New("outbox poll_interval and retry_delay must be positive"))
	}
	return errors.Join(errs...)
}

// Conversion methods to the component config types

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		DedupeTTL:     c.DedupeTTL,
		MaxAttempts:   c.MaxAttempts,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *DatabaseConfig) ToDBConfig() postgres.Config {
	return postgres.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Name:            c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func (c *AuditConfig) ToRecorderConfig() audit.Config {
	return audit.Config{
		WriteTimeout:    c.WriteTimeout,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
		PublishChannel:  c.PublishChannel,
	}
}

func (c *RateLimitConfig) ToRateLimiterConfig() middleware.RateLimiterConfig {
	if !c.Enabled {
		return middleware.RateLimiterConfig{Rate: rate.Inf, Burst: 1}
	}
	return middleware.RateLimiterConfig{
		Rate:  rate.Limit(c.RequestsPerSecond),
		Burst: c.Burst,
	}
}

func (c *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       c.JSON,
	}
}

func (c *AuthzConfig) EvaluatorOptions() []authz.Option {
	switch c.Strict {
	case "true":
		return []authz.Option{authz.WithStrict(true)}
	case "false":
		return []authz.Option{authz.WithStrict(false)}
	}
	return nil
}
