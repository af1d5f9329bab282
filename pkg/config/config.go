// Package config loads server configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Port                 string        `mapstructure:"SERVER_PORT"`
	Env                  string        `mapstructure:"APP_ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnIdleTime    time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	ApplySchemaOnStart   bool          `mapstructure:"APPLY_SCHEMA_ON_START"`
	SchemaPath           string        `mapstructure:"SCHEMA_PATH"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	StorageDir           string        `mapstructure:"STORAGE_DIR"`
	PublicBaseURL        string        `mapstructure:"PUBLIC_BASE_URL"`
	CORSAllowedOrigins   string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool          `mapstructure:"CORS_ALLOW_CREDENTIALS"`
	SendGridAPIKey       string        `mapstructure:"SENDGRID_API_KEY"`
	SendGridSenderEmail  string        `mapstructure:"SENDGRID_SENDER_EMAIL"`
	SendGridSenderName   string        `mapstructure:"SENDGRID_SENDER_NAME"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DefaultBidIncrement  string        `mapstructure:"DEFAULT_BID_INCREMENT"`
	EnableTLS            bool          `mapstructure:"ENABLE_TLS"`
	TLSCertPath          string        `mapstructure:"TLS_CERT_PATH"`
	TLSKeyPath           string        `mapstructure:"TLS_KEY_PATH"`
	TLSSelfSigned        bool          `mapstructure:"TLS_SELF_SIGNED"`
}

var keys = []string{
	"SERVER_PORT", "APP_ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_MAX_CONN_IDLE_TIME", "APPLY_SCHEMA_ON_START", "SCHEMA_PATH", "REDIS_URL",
	"JWT_SECRET", "SESSION_TTL", "STORAGE_DIR", "PUBLIC_BASE_URL",
	"CORS_ALLOWED_ORIGINS", "CORS_ALLOW_CREDENTIALS", "SENDGRID_API_KEY",
	"SENDGRID_SENDER_EMAIL", "SENDGRID_SENDER_NAME", "LOG_LEVEL", "DEFAULT_BID_INCREMENT",
	"ENABLE_TLS", "TLS_CERT_PATH", "TLS_KEY_PATH", "TLS_SELF_SIGNED",
}

// Load reads .env (when present) and the process environment into a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about during Unmarshal.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("SERVER_PORT", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "5m")
	v.SetDefault("APPLY_SCHEMA_ON_START", true)
	v.SetDefault("SCHEMA_PATH", "pkg/db/schema.sql")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("SESSION_TTL", "72h")
	v.SetDefault("STORAGE_DIR", "./data/storage")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CORS_ALLOW_CREDENTIALS", false)
	v.SetDefault("SENDGRID_SENDER_NAME", "Atelier")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEFAULT_BID_INCREMENT", "10")
	v.SetDefault("ENABLE_TLS", false)
	v.SetDefault("TLS_SELF_SIGNED", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.IsProduction() {
		cfg.EnableTLS = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks required values and production-only constraints.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return errors.New("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	inc, err := decimal.NewFromString(c.DefaultBidIncrement)
	if err != nil || !inc.IsPositive() {
		return errors.New("DEFAULT_BID_INCREMENT must be a positive decimal")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return errors.New("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
		}
		if c.CORSAllowedOrigins == "*" && c.CORSAllowCredentials {
			return errors.New("CORS_ALLOWED_ORIGINS cannot be '*' with credentials in production")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// ListenPort falls back to 8443 with TLS and 8080 without.
func (c *Config) ListenPort() string {
	if c.Port != "" {
		return c.Port
	}
	if c.EnableTLS {
		return "8443"
	}
	return "8080"
}

// BidIncrement is the increment applied to auctions that do not set their own.
func (c *Config) BidIncrement() decimal.Decimal {
	inc, err := decimal.NewFromString(c.DefaultBidIncrement)
	if err != nil {
		return decimal.NewFromInt(10)
	}
	return inc
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS, falling back to "*".
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
