package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	DatabaseURL string
	RedisURL    string

	CurrencyCode      string
	CurrencyPrecision int32
	CurrencyRate      decimal.Decimal

	CartLockTTL     time.Duration
	CatalogCacheTTL time.Duration
	// RuleAttemptRate caps rule attachments per customer, e.g. "20-M".
	// Empty disables the limit.
	RuleAttemptRate string
	// RuleAttemptMax > 0 switches to a sliding window of RuleAttemptWindow.
	RuleAttemptMax    int
	RuleAttemptWindow time.Duration
	MigrateOnStart    bool

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	EnableTracing    bool
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:            valueOrDefault(k.String("APP_ENV"), "development"),
		DatabaseURL:       k.String("DATABASE_URL"),
		RedisURL:          k.String("REDIS_URL"),
		CurrencyCode:      strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), pricing.DefaultCurrency.Code)),
		CartLockTTL:       parseDuration(k.String("CART_LOCK_TTL"), "10s"),
		CatalogCacheTTL:   parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		RuleAttemptRate:   strings.TrimSpace(k.String("RULE_ATTEMPT_RATE")),
		RuleAttemptMax:    parseInt(k.String("RULE_ATTEMPT_MAX")),
		RuleAttemptWindow: parseDuration(k.String("RULE_ATTEMPT_WINDOW"), "1m"),
		MigrateOnStart:    parseBool(k.String("MIGRATE_ON_START")),
		LogFormat:         strings.ToLower(strings.TrimSpace(k.String("OBS_LOG_FORMAT"))),
		LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_pricing"),
		EnableTracing:     parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TraceSampleRatio:  parseFloat(k.String("OBS_TRACE_SAMPLE_RATIO"), 1),
		CurrencyPrecision: pricing.DefaultCurrency.Precision,
		CurrencyRate:      pricing.DefaultCurrency.Rate,
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}

	if raw := strings.TrimSpace(k.String("CURRENCY_PRECISION")); raw != "" {
		p, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || p < 0 || p > 8 {
			return nil, fmt.Errorf("CURRENCY_PRECISION must be an integer between 0 and 8, got %q", raw)
		}
		cfg.CurrencyPrecision = int32(p)
	}
	if raw := strings.TrimSpace(k.String("CURRENCY_RATE")); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("CURRENCY_RATE must be a positive decimal, got %q", raw)
		}
		cfg.CurrencyRate = rate
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// Currency returns the currency every cart is priced in.
func (c *Config) Currency() pricing.Currency {
	return pricing.Currency{Code: c.CurrencyCode, Precision: c.CurrencyPrecision, Rate: c.CurrencyRate}
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 || f > 1 {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
