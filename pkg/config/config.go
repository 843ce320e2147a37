package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort             = "3000"
	DefaultAccountsBaseURI  = "https://accounts.zoho.eu"
	DefaultAPIBaseURI       = "https://www.zohoapis.eu"
	DefaultTokenTTL         = time.Hour
	DefaultRefreshMargin    = 60 * time.Second
	DefaultRefreshTimeout   = 30 * time.Second
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultRateLimitBurst   = 1
	DefaultCORSAllowOrigins = "*"
)

type Config struct {
	Port string

	AccountsBaseURI string
	APIBaseURI      string
	RefreshToken    string
	ClientID        string
	ClientSecret    string
	// AccessToken optionally seeds the token cache at startup.
	AccessToken string

	TokenTTL       time.Duration
	RefreshMargin  time.Duration
	RefreshTimeout time.Duration
	HTTPTimeout    time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowOrigins []string
	AuditEnabled     bool
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		AccountsBaseURI:  strings.TrimRight(getEnv("ZOHO_ACCOUNTS_BASE_URI", DefaultAccountsBaseURI), "/"),
		APIBaseURI:       strings.TrimRight(getEnv("ZOHO_API_BASE_URI", DefaultAPIBaseURI), "/"),
		RefreshToken:     os.Getenv("ZOHO_REFRESH_TOKEN"),
		ClientID:         os.Getenv("ZOHO_CLIENT_ID"),
		ClientSecret:     os.Getenv("ZOHO_CLIENT_SECRET"),
		AccessToken:      os.Getenv("ZOHO_ACCESS_TOKEN"),
		RateLimitBurst:   DefaultRateLimitBurst,
		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", DefaultCORSAllowOrigins)),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("ZOHO_TOKEN_TTL", DefaultTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshMargin, err = getDuration("ZOHO_TOKEN_REFRESH_MARGIN", DefaultRefreshMargin); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout, err = getDuration("ZOHO_REFRESH_TIMEOUT", DefaultRefreshTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("ZOHO_RATE_LIMIT_RPS"); v != "" {
		if cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("ZOHO_RATE_LIMIT_RPS: %w", err)
		}
	}
	if v := os.Getenv("ZOHO_RATE_LIMIT_BURST"); v != "" {
		if cfg.RateLimitBurst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("ZOHO_RATE_LIMIT_BURST: %w", err)
		}
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		if cfg.AuditEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("AUDIT_ENABLED: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RefreshToken == "" {
		return fmt.Errorf("ZOHO_REFRESH_TOKEN is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("ZOHO_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("ZOHO_CLIENT_SECRET is required")
	}
	if c.AccountsBaseURI == "" {
		return fmt.Errorf("ZOHO_ACCOUNTS_BASE_URI must not be empty")
	}
	if c.APIBaseURI == "" {
		return fmt.Errorf("ZOHO_API_BASE_URI must not be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("ZOHO_TOKEN_TTL must be > 0")
	}
	if c.RefreshMargin < 0 || c.RefreshMargin >= c.TokenTTL {
		return fmt.Errorf("ZOHO_TOKEN_REFRESH_MARGIN must be >= 0 and shorter than ZOHO_TOKEN_TTL")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("ZOHO_RATE_LIMIT_RPS must be >= 0")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("ZOHO_RATE_LIMIT_BURST must be > 0 when ZOHO_RATE_LIMIT_RPS is set")
	}
	// AccessToken is optional, so we don't validate it
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
