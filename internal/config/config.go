package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	// Storefront backend (order creation, payment verify/confirm endpoints).
	BackendBaseURL string
	BackendTimeout time.Duration

	// Storefront web origin the terminal redirect targets point at.
	StorefrontBaseURL string

	// Payment SDK checkout configuration.
	PaymentPublicKey string
	CurrencyCode     string

	// Store resolution.
	StoreHeader  string
	RootDomain   string
	DefaultStore string

	// Orchestration budgets.
	ConfirmMaxAttempts   int
	ConfirmRetryBase     time.Duration
	ShortPollMaxAttempts int
	ShortPollInterval    time.Duration
	ReconcileMaxAttempts int
	ReconcileInterval    time.Duration
	ReconcileDelay       time.Duration
	ReconcileLockTTL     time.Duration
	BreakerMinRequests   int
	BreakerFailureRatio  float64
	BreakerOpenFor       time.Duration

	BuyNowTTL       time.Duration
	IdempotencyTTL  time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		BackendBaseURL: strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		BackendTimeout: parseDuration(k.String("BACKEND_TIMEOUT"), "10s"),

		StorefrontBaseURL: strings.TrimRight(strings.TrimSpace(k.String("STOREFRONT_BASE_URL")), "/"),

		PaymentPublicKey: k.String("PAYMENT_PUBLIC_KEY"),
		CurrencyCode:     valueOrDefault(k.String("CURRENCY_CODE"), "NGN"),

		StoreHeader:  valueOrDefault(k.String("STORE_HEADER"), "X-Store-ID"),
		RootDomain:   strings.TrimSpace(k.String("STORE_ROOT_DOMAIN")),
		DefaultStore: strings.TrimSpace(k.String("STORE_DEFAULT")),

		ConfirmMaxAttempts:   parseInt(k.String("CONFIRM_MAX_ATTEMPTS"), 3),
		ConfirmRetryBase:     parseDuration(k.String("CONFIRM_RETRY_BASE"), "1s"),
		ShortPollMaxAttempts: parseInt(k.String("SHORT_POLL_MAX_ATTEMPTS"), 3),
		ShortPollInterval:    parseDuration(k.String("SHORT_POLL_INTERVAL"), "1s"),
		ReconcileMaxAttempts: parseInt(k.String("RECONCILE_POLL_MAX_ATTEMPTS"), 10),
		ReconcileInterval:    parseDuration(k.String("RECONCILE_POLL_INTERVAL"), "1500ms"),
		ReconcileDelay:       parseDuration(k.String("RECONCILE_DELAY"), "30s"),
		ReconcileLockTTL:     parseDuration(k.String("RECONCILE_LOCK_TTL"), "30s"),
		BreakerMinRequests:   parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio:  parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:       parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		BuyNowTTL:       parseDuration(k.String("BUYNOW_TTL"), "30m"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 60),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.StorefrontBaseURL == "" {
		return nil, errors.New("STOREFRONT_BASE_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
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

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var f float64
	if _, err := fmt.Sscanf(trimmed, "%g", &f); err != nil || f <= 0 {
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
