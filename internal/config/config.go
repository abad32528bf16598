package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenLifetime     = 7 * 24 * time.Hour
	DefaultMinPasswordLength = 6
	DefaultMinUsernameLength = 3
	DefaultMaxUsernameLength = 30

	// MaxUsernameColumn is the width of users.username.
	MaxUsernameColumn = 30

	// DevSigningSecret is only accepted outside production.
	DevSigningSecret = "dev-only-signing-secret-change-me"

	minProductionSecretBytes = 32
)

var (
	ErrMissingSigningSecret = errors.New("JWT_SECRET is required in production")
	ErrWeakSigningSecret    = errors.New("JWT_SECRET is too weak for production")
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required")
	ErrInvalidLengthPolicy  = errors.New("invalid username/password length policy")
)

type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	DBMaxConns  int

	SigningSecret string
	// UsingDevSecret reports that SigningSecret is the development fallback.
	UsingDevSecret bool
	TokenLifetime  time.Duration

	MinPasswordLength int
	MinUsernameLength int
	MaxUsernameLength int
	BcryptCost        int
	HashWorkers       int

	SentryDSN          string
	LogFormat          string
	CORSAllowedOrigins []string
	// TrustedProxies are the peers whose X-Forwarded-For is believed.
	TrustedProxies []netip.Prefix

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	RunMigrations bool
}

// Load reads the process environment. Callers that want a .env file must
// load it before calling Load.
func Load(runMigrationsByDefault bool) (*Config, error) {
	cfg := &Config{
		Env:                  envOrDefault("APP_ENV", "development"),
		Port:                 envOrDefault("PORT", "8080"),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:           envIntOrDefault("DB_MAX_CONNS", 10),
		SigningSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		MinPasswordLength:    envIntOrDefault("MIN_PASSWORD_LENGTH", DefaultMinPasswordLength),
		MinUsernameLength:    envIntOrDefault("MIN_USERNAME_LENGTH", DefaultMinUsernameLength),
		MaxUsernameLength:    envIntOrDefault("MAX_USERNAME_LENGTH", DefaultMaxUsernameLength),
		BcryptCost:           envIntOrDefault("BCRYPT_COST", bcrypt.DefaultCost),
		HashWorkers:          envIntOrDefault("HASH_WORKERS", runtime.NumCPU()),
		SentryDSN:            strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 0),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		RunMigrations:        EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", runMigrationsByDefault),
	}

	lifetime, err := ParseLifetime(envOrDefault("JWT_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, fmt.Errorf("parse JWT_EXPIRES_IN: %w", err)
	}
	cfg.TokenLifetime = lifetime

	defaultFormat := "text"
	if cfg.IsProduction() {
		defaultFormat = "json"
	}
	cfg.LogFormat = envOrDefault("LOG_FORMAT", defaultFormat)
	cfg.CORSAllowedOrigins = splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	proxies, err := ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if cfg.SigningSecret == "" && !cfg.IsProduction() {
		cfg.SigningSecret = DevSigningSecret
		cfg.UsingDevSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// Validate reports configurations the process must refuse to start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.IsProduction() {
		if c.SigningSecret == "" {
			return ErrMissingSigningSecret
		}
		if c.SigningSecret == DevSigningSecret || len(c.SigningSecret) < minProductionSecretBytes {
			return ErrWeakSigningSecret
		}
	}
	if c.SigningSecret == "" {
		return ErrMissingSigningSecret
	}
	if c.TokenLifetime <= 0 {
		return fmt.Errorf("token lifetime must be positive, got %s", c.TokenLifetime)
	}
	if c.MinPasswordLength < 1 || c.MinUsernameLength < 1 || c.MinUsernameLength > c.MaxUsernameLength || c.MaxUsernameLength > MaxUsernameColumn {
		return ErrInvalidLengthPolicy
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return nil
}

// ParseLifetime accepts Go durations ("36h") and whole days ("7d").
func ParseLifetime(value string) (time.Duration, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("lifetime must be positive, got %q", value)
	}
	return d, nil
}

// ParseTrustedProxies reads a comma separated list of CIDRs or single
// addresses.
func ParseTrustedProxies(value string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range splitList(value) {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
