package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("BCRYPT_COST", "4")
}

func TestLoadMemoryMode(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_MODE", "memory")
	t.Setenv("REQUIRE_VERIFIED_ORG", "false")
	t.Setenv("DRAFT_TTL", "5m")
	t.Setenv("AMQP_URL", "amqp://edjs@broker:5672/")

	cfg := Load()
	assert.Equal(t, StoreMemory, cfg.StoreMode)
	assert.Empty(t, cfg.DBHost)
	assert.False(t, cfg.Policy.RequireVerifiedOrg)
	assert.Equal(t, 5*time.Minute, cfg.DraftTTL)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "amqp://edjs@broker:5672/", cfg.Queue.URL)
	assert.Equal(t, 25, cfg.Mail.Port)
}

func TestLoadMySQLMode(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_MODE", "mysql")
	t.Setenv("REQUIRE_VERIFIED_ORG", "")
	t.Setenv("DB_USER", "edjs")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "theatre")

	cfg := Load()
	assert.Equal(t, StoreMySQL, cfg.StoreMode)
	assert.Equal(t, "db", cfg.DBHost)
	assert.True(t, cfg.Policy.RequireVerifiedOrg)
}

func TestRateLimitDefaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 5, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, 2*time.Second, rl.RefillInterval)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestParseMethods(t *testing.T) {
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, parseMethods(" get, HEAD ,,"))
}
