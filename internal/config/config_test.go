package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost/marketplace")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("JANITOR_INTERVAL", "")

	cfg, err := Load("8081")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "marketplace.order-events", cfg.OrderEventTopic)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.JanitorInterval)
	assert.Equal(t, 10*time.Minute, cfg.HistoryCacheTTL)
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.SuperAdmin.Enabled())
	assert.False(t, cfg.AutoMigrate)
}

func TestLoad_SuperAdmin(t *testing.T) {
	t.Setenv("SUPERADMIN_NAME", "Root Admin")
	t.Setenv("SUPERADMIN_EMAIL", "root@marketplace.local")
	t.Setenv("SUPERADMIN_PASSWORD", "s3cret")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg, err := Load("8081")
	require.NoError(t, err)

	assert.True(t, cfg.SuperAdmin.Enabled())
	assert.Equal(t, "root@marketplace.local", cfg.SuperAdmin.Email)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("JANITOR_INTERVAL", "daily")

	_, err := Load("8081")
	assert.ErrorContains(t, err, "JANITOR_INTERVAL")
}

func TestRequire(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost/marketplace"}

	assert.NoError(t, cfg.Require("POSTGRES_URL"))

	err := cfg.Require("POSTGRES_URL", "JWT_SECRET", "KAFKA_BROKERS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET, KAFKA_BROKERS")
}
