package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sitegrade/sitegrade/internal/logger"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Coupon   CouponConfig   `mapstructure:"coupon"`
	Payment  PaymentConfig  `mapstructure:"payment"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig holds log output settings.
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions converts log settings into logger options.
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig holds connection-pool settings.
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig holds redis settings (webhook dedup).
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig holds async queue settings (reservation-expiry cleanup).
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig holds abuse-control settings.
type SecurityConfig struct {
	SubmitRateLimit RateLimitConfig `mapstructure:"submit_rate_limit"`
}

// RateLimitConfig holds one sliding-window rate limit.
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// ScanConfig holds the fetch pipeline and worker-pool settings.
type ScanConfig struct {
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	MaxHTMLBytes        int64  `mapstructure:"max_html_bytes"`
	MinHTMLBytes        int64  `mapstructure:"min_html_bytes"`
	MaxRedirects        int    `mapstructure:"max_redirects"`
	Concurrency         int    `mapstructure:"concurrency"`
	PollIntervalMS      int    `mapstructure:"poll_interval_ms"`
	MaxRetries          int    `mapstructure:"max_retries"`
	StuckAfterSeconds   int    `mapstructure:"stuck_after_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
}

// FetchTimeout returns the fetch timeout as a duration.
func (c ScanConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// PollInterval returns the worker poll interval as a duration.
func (c ScanConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// StuckAfter returns the stuck-job threshold as a duration.
func (c ScanConfig) StuckAfter() time.Duration {
	return time.Duration(c.StuckAfterSeconds) * time.Second
}

// PricingConfig holds report pricing settings.
type PricingConfig struct {
	BasePriceINR string `mapstructure:"base_price_inr"`
	Currency     string `mapstructure:"currency"`
}

// CouponConfig holds coupon reservation settings.
type CouponConfig struct {
	ReservationTTLMinutes int `mapstructure:"reservation_ttl_minutes"`
}

// ReservationTTL returns the reservation lifetime as a duration.
func (c CouponConfig) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLMinutes) * time.Minute
}

// PaymentConfig holds payment gateway credentials.
type PaymentConfig struct {
	GatewayURL    string `mapstructure:"gateway_url"`
	KeyID         string `mapstructure:"key_id"`
	KeySecret     string `mapstructure:"key_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	TimeoutMS     int    `mapstructure:"timeout_ms"`
}

// Load reads config.yml plus environment overrides.
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "sitegrade.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/sitegrade.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "sg")
	viper.SetDefault("queue.enabled", false)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 5)
	viper.SetDefault("queue.queues", map[string]int{"default": 10})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.submit_rate_limit.window_seconds", 60)
	viper.SetDefault("security.submit_rate_limit.max_requests", 10)
	viper.SetDefault("scan.fetch_timeout_seconds", 25)
	viper.SetDefault("scan.max_html_bytes", 2*1024*1024)
	viper.SetDefault("scan.min_html_bytes", 200)
	viper.SetDefault("scan.max_redirects", 5)
	viper.SetDefault("scan.concurrency", 4)
	viper.SetDefault("scan.poll_interval_ms", 2000)
	viper.SetDefault("scan.max_retries", 3)
	viper.SetDefault("scan.stuck_after_seconds", 60)
	viper.SetDefault("scan.user_agent", "SiteGradeBot/1.0 (+https://sitegrade.in)")
	viper.SetDefault("pricing.base_price_inr", "499")
	viper.SetDefault("pricing.currency", "INR")
	viper.SetDefault("coupon.reservation_ttl_minutes", 15)
	viper.SetDefault("payment.gateway_url", "https://api.razorpay.com")
	viper.SetDefault("payment.key_id", "")
	viper.SetDefault("payment.key_secret", "")
	viper.SetDefault("payment.webhook_secret", "")
	viper.SetDefault("payment.timeout_ms", 10000)

	// Every key is overridable via env, e.g. scan.concurrency -> SCAN_CONCURRENCY.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("config parse failed: %w", err))
	}

	return &cfg
}
