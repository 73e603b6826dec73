// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/layer-3/doctorauth/core"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is everything the service reads from its environment
type Config struct {
	HTTPAddr     string
	Env          string
	LogLevel     string
	StoreBackend string
	RedisURL     string
	SentryDSN    string
	EventsOn     bool

	JWTSecret    string
	Issuer       string
	Audience     string
	CookieSecure bool
	CookieDomain string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration

	DoctorID        string
	DoctorPinHash   string
	DoctorPin       string
	MaxAttempts     int
	LockoutDuration time.Duration
	CountMalformed  bool
	LockoutScope    string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Load reads .env when present, then the process environment
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function and validates it
func FromEnv(getenv func(string) string) (Config, error) {
	e := env(getenv)
	appEnv := e.str("APP_ENV", "development")

	cfg := Config{
		HTTPAddr:     e.str("HTTP_ADDR", ":9000"),
		Env:          appEnv,
		LogLevel:     e.str("LOG_LEVEL", "info"),
		StoreBackend: strings.ToLower(e.str("STORE_BACKEND", BackendRedis)),
		RedisURL:     e.str("REDIS_URL", "redis://localhost:6379/0"),
		SentryDSN:    e.str("SENTRY_DSN", ""),
		EventsOn:     e.boolean("EVENTS_ENABLED", true),

		JWTSecret:    e.str("AUTH_JWT_SECRET", ""),
		Issuer:       e.str("AUTH_ISSUER", "doctorauth"),
		Audience:     e.str("AUTH_AUDIENCE", "doctor-portal"),
		CookieSecure: e.boolean("COOKIE_SECURE", appEnv == "production"),
		CookieDomain: e.str("COOKIE_DOMAIN", ""),
		AccessTTL:    time.Duration(e.integer("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:   time.Duration(e.integer("REFRESH_TOKEN_TTL_HOURS", 14*24)) * time.Hour,

		DoctorID:        e.str("DOCTOR_ID", "doctor"),
		DoctorPinHash:   e.str("DOCTOR_PIN_HASH", ""),
		DoctorPin:       e.str("DOCTOR_PIN", ""),
		MaxAttempts:     e.integer("PIN_MAX_ATTEMPTS", 5),
		LockoutDuration: time.Duration(e.integer("PIN_LOCKOUT_SECONDS", 900)) * time.Second,
		CountMalformed:  e.boolean("PIN_COUNT_MALFORMED", true),
		LockoutScope:    strings.ToLower(e.str("PIN_LOCKOUT_SCOPE", "identity")),
		RateLimitMax:    e.integer("PIN_RATE_LIMIT_MAX", 20),
		RateLimitWindow: time.Duration(e.integer("PIN_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether the service runs in production
func (c Config) Production() bool {
	return c.Env == "production"
}

// Validate rejects configurations the auth subsystem cannot run safely with
func (c Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("%w: AUTH_JWT_SECRET is required", core.ErrInvalidConfig)
	case len(c.JWTSecret) < 32:
		return fmt.Errorf("%w: AUTH_JWT_SECRET must be at least 32 bytes", core.ErrInvalidConfig)
	case c.DoctorPinHash == "" && c.DoctorPin == "":
		return fmt.Errorf("%w: DOCTOR_PIN_HASH or DOCTOR_PIN is required", core.ErrInvalidConfig)
	case c.DoctorPinHash == "" && c.Production():
		return fmt.Errorf("%w: DOCTOR_PIN is not accepted in production, set DOCTOR_PIN_HASH", core.ErrInvalidConfig)
	case c.AccessTTL >= c.RefreshTTL:
		return fmt.Errorf("%w: access token ttl must be shorter than refresh token ttl", core.ErrInvalidConfig)
	case c.StoreBackend != BackendRedis && c.StoreBackend != BackendMemory:
		return fmt.Errorf("%w: STORE_BACKEND must be %q or %q", core.ErrInvalidConfig, BackendRedis, BackendMemory)
	case c.LockoutScope != "identity" && c.LockoutScope != "source":
		return fmt.Errorf("%w: PIN_LOCKOUT_SCOPE must be identity or source", core.ErrInvalidConfig)
	}
	return nil
}

type env func(string) string

func (e env) str(name, fallback string) string {
	value := strings.TrimSpace(e(name))
	if value == "" {
		return fallback
	}
	return value
}

func (e env) integer(name string, fallback int) int {
	value := strings.TrimSpace(e(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (e env) boolean(name string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(e(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
