package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"HTTP_ADDR", "SHUTDOWN_TIMEOUT", "APP_ENV", "LOG_LEVEL",
	"STORE_BACKEND", "DATABASE_HOST", "DATABASE_PORT", "DATABASE_NAME", "DATABASE_USER", "DATABASE_PASSWORD", "DATABASE_SSLMODE",
	"CACHE_BACKEND", "CACHE_HOST", "CACHE_PORT", "CACHE_DB", "CACHE_TTL",
	"LOCK_BACKEND", "LOCK_TIMEOUT", "LOCK_EXPIRY",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"VERIFY_INTERVAL", "APPLY_MAX_RETRIES", "APPLY_RETRY_BASE", "CURRENCY_SCALES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, BackendMemory, cfg.CacheBackend)
	assert.Equal(t, BackendLocal, cfg.LockBackend)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5*time.Minute, cfg.VerifyInterval)
	assert.Equal(t, 3, cfg.ApplyMaxRetries)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.CurrencyScales)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_PORT", "6380")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("VERIFY_INTERVAL", "30s")
	t.Setenv("CURRENCY_SCALES", "btc:8,JPY:0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "localhost:6380", cfg.Cache.Addr())
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.VerifyInterval)
	assert.Equal(t, map[string]int32{"BTC": 8, "JPY": 0}, cfg.CurrencyScales)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"STORE_BACKEND":     "sqlite",
		"CACHE_BACKEND":     "memcached",
		"LOCK_BACKEND":      "zookeeper",
		"LOCK_TIMEOUT":      "-1s",
		"VERIFY_INTERVAL":   "0s",
		"APPLY_MAX_RETRIES": "-2",
		"CURRENCY_SCALES":   "BTC",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_PORT", "abc")
	t.Setenv("CACHE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
}

func TestParseCurrencyScales(t *testing.T) {
	scales, err := ParseCurrencyScales(" BTC:8 , jpy : 0 ")
	require.NoError(t, err)
	assert.Equal(t, map[string]int32{"BTC": 8, "JPY": 0}, scales)

	for _, bad := range []string{"BTC", "BTC:x", "BTC:-1", "BTC:19"} {
		_, err := ParseCurrencyScales(bad)
		assert.Error(t, err, bad)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := Database{Host: "db", Port: 5433, Name: "ledger", User: "app", Password: "p@ss", SSLMode: "require"}
	assert.Equal(t, "postgres://app:p%40ss@db:5433/ledger?sslmode=require", d.DSN())
}
