package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":          "postgres://localhost/pricing",
		"REDIS_URL":             "redis://localhost:6379/0",
		"APP_ENV":               "",
		"CURRENCY_CODE":         "",
		"CURRENCY_PRECISION":    "",
		"CURRENCY_RATE":         "",
		"CART_LOCK_TTL":         "",
		"CATALOG_CACHE_TTL":     "",
		"OBS_LOG_FORMAT":        "",
		"OBS_LOG_LEVEL":         "",
		"OBS_METRICS_NAMESPACE": "",
		"OBS_ENABLE_TRACING":    "",
		"OBS_OTLP_ENDPOINT":     "",
		"RULE_ATTEMPT_RATE":     "",
		"RULE_ATTEMPT_MAX":      "",
		"RULE_ATTEMPT_WINDOW":   "",
		"MIGRATE_ON_START":      "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.IsProduction())
	require.Equal(t, 10*time.Second, cfg.CartLockTTL)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, "console", cfg.LogFormat, "readable logs outside production")
	require.False(t, cfg.EnableTracing)
	require.Zero(t, cfg.RuleAttemptMax)
	require.Equal(t, time.Minute, cfg.RuleAttemptWindow)

	cur := cfg.Currency()
	require.Equal(t, "EUR", cur.Code)
	require.Equal(t, int32(2), cur.Precision)
	require.Equal(t, "1", cur.Rate.String())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["APP_ENV"] = "production"
	env["CURRENCY_CODE"] = "usd"
	env["CURRENCY_PRECISION"] = "3"
	env["CURRENCY_RATE"] = "1.0842"
	env["CART_LOCK_TTL"] = "2s"
	env["CATALOG_CACHE_TTL"] = "bogus"
	env["OBS_ENABLE_TRACING"] = "yes"
	env["OBS_OTLP_ENDPOINT"] = " http://collector:4318 "
	env["RULE_ATTEMPT_RATE"] = "20-M"
	env["MIGRATE_ON_START"] = "true"
	env["RULE_ATTEMPT_MAX"] = "3"
	env["RULE_ATTEMPT_WINDOW"] = "30s"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, int32(3), cfg.CurrencyPrecision)
	require.Equal(t, "1.0842", cfg.CurrencyRate.String())
	require.Equal(t, 2*time.Second, cfg.CartLockTTL)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL, "invalid durations fall back")
	require.True(t, cfg.EnableTracing)
	require.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
	require.Equal(t, "20-M", cfg.RuleAttemptRate)
	require.True(t, cfg.MigrateOnStart)
	require.Equal(t, 3, cfg.RuleAttemptMax)
	require.Equal(t, 30*time.Second, cfg.RuleAttemptWindow)
	require.Equal(t, "json", cfg.LogFormat, "production defaults to json logs")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database": {"DATABASE_URL": ""},
		"missing redis":    {"REDIS_URL": ""},
		"bad precision":    {"CURRENCY_PRECISION": "two"},
		"zero rate":        {"CURRENCY_RATE": "0"},
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range override {
				env[k] = v
			}
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}
