package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	PostgresURL     string
	KafkaBrokers    []string
	OrderEventTopic string
	RedisURL        string
	JWTSecret       string
	TokenTTL        time.Duration
	AdminTokenTTL   time.Duration
	EmailServiceURL string
	OTLPEndpoint    string
	HistoryCacheTTL time.Duration
	AutoMigrate     bool

	JanitorInterval time.Duration
	JanitorOnce     bool

	SMTP       SMTPConfig
	SuperAdmin SuperAdminConfig
}

// SuperAdminConfig seeds the first superadmin on startup when all fields
// are set.
type SuperAdminConfig struct {
	Name     string
	Email    string
	Password string
}

func (c SuperAdminConfig) Enabled() bool {
	return c.Name != "" && c.Email != "" && c.Password != ""
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load(defaultPort string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", defaultPort),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		KafkaBrokers:    getEnvAsList("KAFKA_BROKERS"),
		OrderEventTopic: getEnv("ORDER_EVENTS_TOPIC", "marketplace.order-events"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		JanitorOnce:     getEnvAsBool("JANITOR_ONCE", false),
		AutoMigrate:     getEnvAsBool("AUTO_MIGRATE", false),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "25"),
			From:     getEnv("SMTP_FROM", "orders@marketplace.local"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		SuperAdmin: SuperAdminConfig{
			Name:     os.Getenv("SUPERADMIN_NAME"),
			Email:    os.Getenv("SUPERADMIN_EMAIL"),
			Password: os.Getenv("SUPERADMIN_PASSWORD"),
		},
	}

	var err error
	if cfg.TokenTTL, err = getEnvAsDuration("TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.AdminTokenTTL, err = getEnvAsDuration("ADMIN_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.JanitorInterval, err = getEnvAsDuration("JANITOR_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HistoryCacheTTL, err = getEnvAsDuration("HISTORY_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Require returns an error naming every listed variable that is empty.
func (c *Config) Require(names ...string) error {
	values := map[string]bool{
		"POSTGRES_URL":      c.PostgresURL != "",
		"KAFKA_BROKERS":     len(c.KafkaBrokers) > 0,
		"REDIS_URL":         c.RedisURL != "",
		"JWT_SECRET":        c.JWTSecret != "",
		"EMAIL_SERVICE_URL": c.EmailServiceURL != "",
	}

	var missing []string
	for _, name := range names {
		if set, known := values[name]; !known || !set {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
