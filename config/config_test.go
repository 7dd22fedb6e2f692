package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 100, cfg.SyncBatchSize)
	assert.False(t, cfg.SyncLenientTimestamps)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, "postgres", cfg.Store)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	v.Set("CORS_ORIGINS", "http://a.test, http://b.test,")
	v.Set("JWT_TTL", "90m")
	v.Set("SYNC_LENIENT_TIMESTAMPS", "true")
	v.Set("STORE", "memory")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 90*time.Minute, cfg.JWTTTL)
	assert.True(t, cfg.SyncLenientTimestamps)
	assert.Equal(t, "memory", cfg.Store)
}

func TestProductionRequiresSecret(t *testing.T) {
	v := viper.New()
	v.Set("APP_ENV", "production")
	_, err := FromViper(v)
	assert.Error(t, err)

	v.Set("JWT_SECRET", "a-real-secret")
	_, err = FromViper(v)
	assert.NoError(t, err)
}

func TestRejectsUnknownStore(t *testing.T) {
	v := viper.New()
	v.Set("STORE", "sqlite")
	_, err := FromViper(v)
	assert.Error(t, err)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_REQUESTS", "7")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.RateLimitRequests)
}
