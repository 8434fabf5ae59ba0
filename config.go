package consoleauth

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig is the environment-backed Config implementation.
type EnvConfig struct {
	APIBaseURL   string
	IdleTimeout  time.Duration
	JWKSEndpoint string
	Issuer       string
	Audience     []string
}

// LoadConfig reads configuration from the environment, optionally seeding it
// from dotenv files first. Missing files are not an error; a deployment that
// sets real environment variables has no dotenv file at all.
func LoadConfig(files ...string) (*EnvConfig, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		// best-effort default lookup
		_ = godotenv.Load()
	}

	cfg := &EnvConfig{
		APIBaseURL:   getEnv("CONSOLE_API_BASE_URL", "http://localhost:8572"),
		IdleTimeout:  DefaultIdleTimeout,
		JWKSEndpoint: getEnv("CONSOLE_AUTH_JWKS_ENDPOINT", ""),
		Issuer:       getEnv("CONSOLE_AUTH_ISSUER", ""),
	}

	if raw := os.Getenv("CONSOLE_AUTH_IDLE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		cfg.IdleTimeout = d
	}

	if raw := os.Getenv("CONSOLE_AUTH_AUDIENCE"); raw != "" {
		for _, aud := range strings.Split(raw, ",") {
			if aud = strings.TrimSpace(aud); aud != "" {
				cfg.Audience = append(cfg.Audience, aud)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetAPIBaseURL implements Config.
func (c *EnvConfig) GetAPIBaseURL() string {
	return c.APIBaseURL
}

// GetIdleTimeout implements Config.
func (c *EnvConfig) GetIdleTimeout() time.Duration {
	if c.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return c.IdleTimeout
}

// GetJWKSEndpoint implements Config.
func (c *EnvConfig) GetJWKSEndpoint() string {
	return c.JWKSEndpoint
}

// GetIssuer implements Config.
func (c *EnvConfig) GetIssuer() string {
	return c.Issuer
}

// GetAudience implements Config.
func (c *EnvConfig) GetAudience() []string {
	return c.Audience
}
