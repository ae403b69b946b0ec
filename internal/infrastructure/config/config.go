// Package config loads service settings from config.toml and AURUM_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env" validate:"oneof=development test staging production"`
	Port string `mapstructure:"port" validate:"required,numeric"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"`
}

// DatabaseConfig describes the PostgreSQL connection and pool.
// Lifetimes are in minutes.
type DatabaseConfig struct {
	Host            string `mapstructure:"host" validate:"required"`
	Port            int    `mapstructure:"port" validate:"gt=0"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname" validate:"required"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"`
	LogLevel        string `mapstructure:"log_level"`
}

// DSN returns a postgres URL with user info escaped.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig backs the user lookup cache, which is off unless Enabled.
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	LookupCacheTTL time.Duration `mapstructure:"lookup_cache_ttl"`
}

// Addr returns host:port.
func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
	RateLimit        float64       `mapstructure:"rate_limit" validate:"gte=0"` // per client IP; 0 disables
	RateBurst        int           `mapstructure:"rate_burst"`
}

// SchedulerConfig drives periodic full syncs of active connectors.
type SchedulerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval" validate:"gt=0"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs" validate:"gt=0"`
	QueueSize         int           `mapstructure:"queue_size" validate:"gt=0"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts" validate:"gte=0"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	LogExportEnabled  bool          `mapstructure:"log_export_enabled"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// StorageConfig points the raw page archive at an S3-compatible bucket.
type StorageConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	Prefix       string `mapstructure:"prefix"`
}

type SyncConfig struct {
	// EncryptionKey is the master secret credentials are encrypted under.
	// The AES-GCM encrypter rejects keys shorter than 32 characters.
	EncryptionKey    string        `mapstructure:"encryption_key" validate:"omitempty,min=32"`
	ParallelEntities bool          `mapstructure:"parallel_entities"`
	ClientTimeout    time.Duration `mapstructure:"client_timeout" validate:"gt=0"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" validate:"gt=0"`
	UserAgent        string        `mapstructure:"user_agent"`
	RateLimit        float64       `mapstructure:"rate_limit" validate:"gte=0"` // per connector; 0 disables
	RateBurst        int           `mapstructure:"rate_burst" validate:"gte=1"`
	BreakerEnabled   bool          `mapstructure:"breaker_enabled"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures" validate:"gte=1"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// defaults lists every key. Keys must be registered for AutomaticEnv to
// reach them through Unmarshal, so secrets are listed with empty values.
var defaults = map[string]any{
	"app.name": "aurum-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "aurum",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,
	"database.log_level":          "warn",

	"redis.enabled":          false,
	"redis.host":             "localhost",
	"redis.port":             6379,
	"redis.password":         "",
	"redis.db":               0,
	"redis.lookup_cache_ttl": 10 * time.Minute,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":       15 * time.Second,
	"http.write_timeout":      10 * time.Minute, // inline syncs run inside the request
	"http.idle_timeout":       time.Minute,
	"http.max_header_bytes":   1 << 20,
	"http.max_body_size":      1 << 20,
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "PUT", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID"},
	"http.trusted_proxies":    []string{},
	"http.rate_limit":         0.0,
	"http.rate_burst":         0,

	"scheduler.enabled":             false,
	"scheduler.interval":            time.Hour,
	"scheduler.max_concurrent_jobs": 3,
	"scheduler.queue_size":          100,
	"scheduler.job_timeout":         30 * time.Minute,
	"scheduler.retry_attempts":      3,
	"scheduler.retry_delay":         5 * time.Minute,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "aurum-backend",
	"telemetry.insecure":                false,
	"telemetry.metrics_enabled":         false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.log_export_enabled":      false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,

	"storage.enabled":        false,
	"storage.endpoint":       "",
	"storage.region":         "us-east-1",
	"storage.bucket":         "",
	"storage.access_key":     "",
	"storage.secret_key":     "",
	"storage.use_ssl":        false,
	"storage.use_path_style": false,
	"storage.prefix":         "connector-pages",

	"sync.encryption_key":     "",
	"sync.parallel_entities":  false,
	"sync.client_timeout":     30 * time.Second,
	"sync.max_response_bytes": 10 << 20,
	"sync.user_agent":         "aurum-connector-sync/1.0",
	"sync.rate_limit":         0.0,
	"sync.rate_burst":         1,
	"sync.breaker_enabled":    false,
	"sync.breaker_failures":   5,
	"sync.breaker_timeout":    2 * time.Minute,
}

// Load reads config.toml from the working directory or /app, then applies
// AURUM_ environment overrides (AURUM_DATABASE_PASSWORD sets database.password).
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("AURUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst <= 0 {
		cfg.HTTP.RateBurst = int(cfg.HTTP.RateLimit) + 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their config keys rather than Go names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	return v
}

// Validate checks field constraints, then the stricter production rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return fmt.Errorf("invalid config: %s failed %q", configKey(fieldErrs[0].Namespace()), fieldErrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.App.Env != "production" {
		return nil
	}

	switch {
	case c.Sync.EncryptionKey == "":
		return errors.New("sync.encryption_key is required in production")
	case c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case slices.Contains(c.HTTP.CORSAllowOrigins, "*"):
		return errors.New("http.cors_allow_origins cannot contain '*' in production")
	case c.Telemetry.DBLogFullSQL:
		// statements carry credential ciphertext and order payloads
		return errors.New("telemetry.db_log_full_sql must be false in production")
	}
	return nil
}

// configKey drops the root type from a validator namespace, leaving the
// dotted key such as sync.encryption_key.
func configKey(namespace string) string {
	_, key, _ := strings.Cut(namespace, ".")
	return key
}
