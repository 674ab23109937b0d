package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/promo-pricing/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	CurrencyCode       string

	QuoteCacheTTL         time.Duration
	QuoteBatchMax         int
	QuoteBatchConcurrency int
	RateLimitQuotes       string
	BodyLimitBytes        int64

	SecurityHeadersEnabled bool
	HSTSEnabled            bool

	AuditEnabled      bool
	AuditQueue        string
	AuditMaxRetry     int
	WorkerConcurrency int

	Pricing pricing.Rules
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:                 valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                   valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:               strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:            strings.TrimSpace(k.String("DATABASE_URL")),
		CORSAllowedOrigins:     splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:           strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),
		QuoteCacheTTL:          parseDuration(k.String("QUOTE_CACHE_TTL"), "5m"),
		QuoteBatchMax:          parseInt(k.String("QUOTE_BATCH_MAX"), 50),
		QuoteBatchConcurrency:  parseInt(k.String("QUOTE_BATCH_CONCURRENCY"), 8),
		RateLimitQuotes:        valueOrDefault(k.String("RATE_LIMIT_QUOTES"), "300-M"),
		BodyLimitBytes:         int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled: parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSEnabled:            parseBool(k.String("SECURITY_HSTS_ENABLED")),
		AuditEnabled:           parseBool(k.String("AUDIT_ENABLED")),
		AuditQueue:             valueOrDefault(k.String("AUDIT_QUEUE"), "audit"),
		AuditMaxRetry:          parseInt(k.String("AUDIT_MAX_RETRY"), 5),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	rules, err := loadRules(k)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = rules

	if cfg.QuoteBatchMax <= 0 {
		return nil, fmt.Errorf("QUOTE_BATCH_MAX must be positive")
	}
	if cfg.QuoteBatchConcurrency <= 0 {
		cfg.QuoteBatchConcurrency = 1
	}
	if cfg.AuditEnabled && cfg.RedisURL == "" {
		return nil, fmt.Errorf("AUDIT_ENABLED requires REDIS_URL")
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

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
	original := make(map[string]*string, len(env))
	for key := range env {
		if v, ok := os.LookupEnv(key); ok {
			original[key] = &v
		} else {
			original[key] = nil
		}
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

func restoreEnv(values map[string]*string) error {
	var errs []string
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
