package consoleauth_test

import (
	"testing"
	"time"

	"github.com/melodia/console-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONSOLE_API_BASE_URL", "")
	t.Setenv("CONSOLE_AUTH_IDLE_TIMEOUT", "")
	t.Setenv("CONSOLE_AUTH_JWKS_ENDPOINT", "")
	t.Setenv("CONSOLE_AUTH_ISSUER", "")
	t.Setenv("CONSOLE_AUTH_AUDIENCE", "")

	cfg, err := consoleauth.LoadConfig("testdata/nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8572", cfg.GetAPIBaseURL())
	assert.Equal(t, consoleauth.DefaultIdleTimeout, cfg.GetIdleTimeout())
	assert.Empty(t, cfg.GetJWKSEndpoint())
	assert.Empty(t, cfg.GetAudience())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("CONSOLE_API_BASE_URL", "https://console.example.com")
	t.Setenv("CONSOLE_AUTH_IDLE_TIMEOUT", "45m")
	t.Setenv("CONSOLE_AUTH_JWKS_ENDPOINT", "https://keys.example.com/jwks.json")
	t.Setenv("CONSOLE_AUTH_ISSUER", "https://accounts.example.com")
	t.Setenv("CONSOLE_AUTH_AUDIENCE", "console-client, other-client ,")

	cfg, err := consoleauth.LoadConfig("testdata/nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "https://console.example.com", cfg.GetAPIBaseURL())
	assert.Equal(t, 45*time.Minute, cfg.GetIdleTimeout())
	assert.Equal(t, "https://keys.example.com/jwks.json", cfg.GetJWKSEndpoint())
	assert.Equal(t, "https://accounts.example.com", cfg.GetIssuer())
	assert.Equal(t, []string{"console-client", "other-client"}, cfg.GetAudience())
}

func TestLoadConfigRejectsBadIdleTimeout(t *testing.T) {
	t.Setenv("CONSOLE_AUTH_IDLE_TIMEOUT", "not-a-duration")

	_, err := consoleauth.LoadConfig("testdata/nonexistent.env")
	require.Error(t, err)
}

func TestEnvConfigIdleTimeoutFallback(t *testing.T) {
	cfg := &consoleauth.EnvConfig{}
	assert.Equal(t, consoleauth.DefaultIdleTimeout, cfg.GetIdleTimeout())

	cfg.IdleTimeout = 10 * time.Minute
	assert.Equal(t, 10*time.Minute, cfg.GetIdleTimeout())
}
