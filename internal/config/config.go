// Package config holds the service configuration: operator credentials,
// token settings, login rate limits, service-account and spreadsheet settings.
// Values come from the process environment, optionally seeded from layered
// .env files.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// SpreadsheetsScope is the only scope delegated tokens are minted for.
	SpreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"
)

// Config is the root configuration.
type Config struct {
	Env       string `env:"APP_ENV" env-default:"development"`
	HTTP      HTTPConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Google    GoogleConfig
	Sheet     SheetConfig
	CSRF      CSRFConfig

	// LoadedEnvFiles lists the .env files applied before reading the env.
	LoadedEnvFiles []string
}

// HTTPConfig is the listener and static asset setup.
type HTTPConfig struct {
	Host        string   `env:"HOST" env-default:"0.0.0.0"`
	Port        string   `env:"PORT" env-default:"4000"`
	TrustProxy  bool     `env:"TRUST_PROXY" env-default:"false"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	StaticDir   string   `env:"STATIC_DIR" env-default:"dist"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig is the single operator identity and session token settings.
// Empty values are allowed; login then reports "not configured".
type AuthConfig struct {
	Username     string `env:"AUTH_USERNAME"`
	PasswordHash string `env:"AUTH_PASSWORD_HASH"`
	JWTSecret    string `env:"JWT_SECRET"`
	JWTExpiresIn string `env:"JWT_EXPIRES_IN" env-default:"1h"`
}

// Configured reports whether login can work at all.
func (a AuthConfig) Configured() bool {
	return a.Username != "" && a.PasswordHash != "" && a.JWTSecret != ""
}

// TokenLifetime parses JWT_EXPIRES_IN.
func (a AuthConfig) TokenLifetime() (time.Duration, error) {
	return ParseLifetime(a.JWTExpiresIn)
}

// RateLimitConfig caps login attempts per client address.
type RateLimitConfig struct {
	MaxLoginAttempts   int `env:"MAX_LOGIN_ATTEMPTS" env-default:"5"`
	LoginWindowMinutes int `env:"LOGIN_WINDOW_MINUTES" env-default:"15"`
}

// Window returns the window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.LoginWindowMinutes) * time.Minute
}

// GoogleConfig is the service account used to mint delegated tokens.
type GoogleConfig struct {
	ServiceAccountEmail      string        `env:"SERVICE_ACCOUNT_EMAIL"`
	ServiceAccountPrivateKey string        `env:"SERVICE_ACCOUNT_PRIVATE_KEY"`
	TokenURL                 string        `env:"GOOGLE_TOKEN_URL" env-default:"https://oauth2.googleapis.com/token"`
	TokenTimeout             time.Duration `env:"GOOGLE_TOKEN_TIMEOUT" env-default:"10s"`
	RequireSession           bool          `env:"GOOGLE_TOKEN_REQUIRE_SESSION" env-default:"true"`
}

// SheetConfig locates the spreadsheet and the ranges the gateway touches.
type SheetConfig struct {
	SpreadsheetID   string `env:"SPREADSHEET_ID"`
	Endpoint        string `env:"SHEETS_ENDPOINT"`
	CategoriesRange string `env:"SHEET_CATEGORIES_RANGE" env-default:"Справочники!B2:B"`
	AuthorsRange    string `env:"SHEET_AUTHORS_RANGE" env-default:"Справочники!E2:E"`
	ExpensesRange   string `env:"SHEET_EXPENSES_RANGE" env-default:"Расходы!A1"`
	WriteID         bool   `env:"SHEET_WRITE_ID" env-default:"true"`
}

// CSRFConfig toggles double-submit validation on state-changing routes.
type CSRFConfig struct {
	Enabled bool `env:"CSRF_ENABLED" env-default:"false"`
	Secure  bool `env:"CSRF_COOKIE_SECURE" env-default:"false"`
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects values that would break startup. Missing credentials are
// not an error here.
func (c *Config) validate() error {
	if c.RateLimit.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be > 0")
	}
	if c.RateLimit.LoginWindowMinutes <= 0 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES must be > 0")
	}
	if _, err := c.Auth.TokenLifetime(); err != nil {
		return fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	if c.Google.TokenTimeout <= 0 {
		return fmt.Errorf("GOOGLE_TOKEN_TIMEOUT must be > 0")
	}
	return nil
}

// ParseLifetime accepts Go durations ("90m", "1h30m"), bare seconds ("3600")
// and whole days ("7d").
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty lifetime")
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid lifetime %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid lifetime %q", s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("lifetime must be positive, got %q", s)
	}
	return d, nil
}
