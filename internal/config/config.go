package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	// AdminKey guards the reporting routes; empty disables them.
	AdminKey string `mapstructure:"admin_key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DatabaseConfig configures the optional Postgres archive for critical errors.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TelemetryConfig struct {
	ErrorBufferSize  int `mapstructure:"error_buffer_size"`
	MetricBufferSize int `mapstructure:"metric_buffer_size"`
	EventBufferSize  int `mapstructure:"event_buffer_size"`

	ErrorRetentionDays  int `mapstructure:"error_retention_days"`
	MetricRetentionDays int `mapstructure:"metric_retention_days"`
	EventRetentionDays  int `mapstructure:"event_retention_days"`
	DAURetentionDays    int `mapstructure:"dau_retention_days"`

	StoreTimeoutMs int `mapstructure:"store_timeout_ms"`
	WriteQueueSize int `mapstructure:"write_queue_size"`

	CleanupSchedule       string `mapstructure:"cleanup_schedule"`
	HealthIntervalSeconds int    `mapstructure:"health_interval_seconds"`
	HealthCacheSeconds    int    `mapstructure:"health_cache_seconds"`
	HealthSlowProbeMs     int    `mapstructure:"health_slow_probe_ms"`
	DiskPath              string `mapstructure:"disk_path"`

	AlertRateThreshold     int `mapstructure:"alert_rate_threshold"`
	AlertRateWindowSeconds int `mapstructure:"alert_rate_window_seconds"`
}

type IngestConfig struct {
	RateLimitQPS          float64 `mapstructure:"rate_limit_qps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
	IdempotencyTTLSeconds int     `mapstructure:"idempotency_ttl_seconds"`
}

func (i IngestConfig) IdempotencyTTL() time.Duration {
	return time.Duration(i.IdempotencyTTLSeconds) * time.Second
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func (t TelemetryConfig) StoreTimeout() time.Duration {
	return time.Duration(t.StoreTimeoutMs) * time.Millisecond
}

func (t TelemetryConfig) HealthCacheTTL() time.Duration {
	return time.Duration(t.HealthCacheSeconds) * time.Second
}

func (t TelemetryConfig) HealthInterval() time.Duration {
	return time.Duration(t.HealthIntervalSeconds) * time.Second
}

func (t TelemetryConfig) HealthSlowProbe() time.Duration {
	return time.Duration(t.HealthSlowProbeMs) * time.Millisecond
}

func (t TelemetryConfig) AlertRateWindow() time.Duration {
	return time.Duration(t.AlertRateWindowSeconds) * time.Second
}

func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("database.dsn", "")

	v.SetDefault("telemetry.error_buffer_size", 1000)
	v.SetDefault("telemetry.metric_buffer_size", 1000)
	v.SetDefault("telemetry.event_buffer_size", 5000)
	v.SetDefault("telemetry.error_retention_days", 30)
	v.SetDefault("telemetry.metric_retention_days", 7)
	v.SetDefault("telemetry.event_retention_days", 90)
	v.SetDefault("telemetry.dau_retention_days", 30)
	v.SetDefault("telemetry.store_timeout_ms", 2000)
	v.SetDefault("telemetry.write_queue_size", 1000)
	v.SetDefault("telemetry.cleanup_schedule", "@every 1h")
	v.SetDefault("telemetry.health_interval_seconds", 60)
	v.SetDefault("telemetry.health_cache_seconds", 30)
	v.SetDefault("telemetry.health_slow_probe_ms", 1000)
	v.SetDefault("telemetry.disk_path", "/")
	v.SetDefault("telemetry.alert_rate_threshold", 10)
	v.SetDefault("telemetry.alert_rate_window_seconds", 300)

	v.SetDefault("ingest.rate_limit_qps", 20)
	v.SetDefault("ingest.rate_limit_burst", 40)
	v.SetDefault("ingest.idempotency_ttl_seconds", 600)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Default returns the configuration with every default applied and no
// file or environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads config.yaml from path (or ./ and ./configs when path is empty)
// and applies TELEMETRY_* environment overrides,
// e.g. TELEMETRY_REDIS_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("telemetry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
