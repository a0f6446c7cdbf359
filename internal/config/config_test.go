package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/provisioning")
	t.Setenv("CATALOG_BASE_URL", "http://catalog.local/api")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 8*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "0 3 * * *", cfg.Cache.FlushSchedule)
	assert.Equal(t, 8, cfg.Aggregation.EnrichmentConcurrency)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
}

func TestLoad_ClampsCatalogTimeout(t *testing.T) {
	setRequiredEnv(t)
	for raw, want := range map[string]time.Duration{
		"45s":   10 * time.Second,
		"20s":   10 * time.Second,
		"1s":    5 * time.Second,
		"500ms": 5 * time.Second,
		"6s":    6 * time.Second,
	} {
		t.Setenv("CATALOG_TIMEOUT", raw)
		cfg, err := Load("testdata/missing.env")
		require.NoError(t, err, raw)
		assert.Equal(t, want, cfg.Catalog.Timeout, raw)
	}
}

func TestLoad_RedisBackendNeedsURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CACHE_BACKEND", "REDIS")

	_, err := Load("testdata/missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("CATALOG_CACHE_TTL", "soon")
	_, err := Load("testdata/missing.env")
	assert.Error(t, err)

	t.Setenv("CATALOG_CACHE_TTL", "1h")
	t.Setenv("ENRICHMENT_CONCURRENCY", "many")
	_, err = Load("testdata/missing.env")
	assert.Error(t, err)
}

func TestValidate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CATALOG_BASE_URL", "http://catalog.local")

	_, err := Load("testdata/missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_FlushSchedule(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("CATALOG_CACHE_FLUSH_CRON", "every tuesday")
	_, err := Load("testdata/missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATALOG_CACHE_FLUSH_CRON")

	t.Setenv("CATALOG_CACHE_FLUSH_CRON", "off")
	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)
	assert.Empty(t, cfg.Cache.FlushSchedule)

	t.Setenv("CATALOG_CACHE_FLUSH_CRON", "*/15 * * * *")
	cfg, err = Load("testdata/missing.env")
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", cfg.Cache.FlushSchedule)
}
