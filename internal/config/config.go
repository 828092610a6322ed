package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultHTTPAddr     = ":8080"
	defaultAccessTTL    = "15m"
	defaultRefreshTTL   = "168h"
	defaultCookieSecure = "false"
	defaultJWTIssuer    = "userdesk"
	defaultJWTSecret    = "change-me-jwt-secret"
	defaultAuthMode     = "local"
)

// AuthMode selects where credentials are verified: against the local user
// table or against an external Keycloak realm.
type AuthMode string

const (
	ModeLocal    AuthMode = "local"
	ModeKeycloak AuthMode = "keycloak"
)

// Keycloak holds the connection settings for the delegated-auth variant.
type Keycloak struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
}

// Config is built once at startup and passed to constructors; nothing reads
// the environment after Load returns.
type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string

	AuthMode AuthMode

	JWTSecret    string
	JWTIssuer    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	CookieSecure bool

	AllowedOrigins []string

	Keycloak Keycloak
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", "userdesk.db"))
	cfg.AuthMode = AuthMode(strings.ToLower(strings.TrimSpace(getEnv("AUTH_MODE", defaultAuthMode))))

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.JWTIssuer = strings.TrimSpace(getEnv("JWT_ISSUER", defaultJWTIssuer))

	var err error
	cfg.AccessTTL, err = parseDurationEnv("ACCESS_TOKEN_TTL", defaultAccessTTL)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TOKEN_TTL", defaultRefreshTTL)
	if err != nil {
		return nil, err
	}

	cfg.CookieSecure = parseBoolEnv("COOKIE_SECURE", defaultCookieSecure)

	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	cfg.Keycloak = Keycloak{
		BaseURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("KEYCLOAK_URL")), "/"),
		Realm:        strings.TrimSpace(os.Getenv("KEYCLOAK_REALM")),
		ClientID:     strings.TrimSpace(os.Getenv("KEYCLOAK_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("KEYCLOAK_CLIENT_SECRET")),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AccessTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_TTL must be > 0")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}

	switch cfg.AuthMode {
	case ModeLocal:
	case ModeKeycloak:
		kc := cfg.Keycloak
		if kc.BaseURL == "" || kc.Realm == "" || kc.ClientID == "" || kc.ClientSecret == "" {
			return fmt.Errorf("AUTH_MODE=keycloak requires KEYCLOAK_URL, KEYCLOAK_REALM, KEYCLOAK_CLIENT_ID and KEYCLOAK_CLIENT_SECRET")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be one of: local, keycloak")
	}

	if isProdLike(cfg.AppEnv) {
		if cfg.AuthMode == ModeLocal && isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if !cfg.CookieSecure {
			return fmt.Errorf("in prod/release COOKIE_SECURE must be true")
		}
	}

	return nil
}

// ProdLike reports whether the app runs under a production-style env name.
func (c *Config) ProdLike() bool {
	return isProdLike(c.AppEnv)
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
