package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
database:
  path: /tmp/mesto.db
gateway:
  base_url: https://checkout.example.com
realtime:
  jwt_secret: test-secret
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout())
	assert.Equal(t, 3, cfg.Gateway.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.Retry.InitialDelay())
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL())
	assert.Equal(t, "USD", cfg.Pricing.Currency)
	assert.NotEmpty(t, cfg.Realtime.InstanceID)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MESTO_DB_PATH", "/data/mesto.db")
	t.Setenv("MESTO_JWT_SECRET", "from-env")

	content := `
database:
  path: ${MESTO_DB_PATH}
gateway:
  base_url: https://checkout.example.com
realtime:
  jwt_secret: ${MESTO_JWT_SECRET}
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "/data/mesto.db", cfg.Database.Path)
	assert.Equal(t, "from-env", cfg.Realtime.JWTSecret)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	content := `
database:
  path: /tmp/mesto.db
gateway:
  base_url: https://checkout.example.com
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestLoadParsesAPIKeys(t *testing.T) {
	content := minimalConfig + `
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: k1
        name: dashboard
        permissions: ["read:grid"]
  rate_limit:
    rps: 10
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "dashboard", cfg.API.Auth.APIKeys[0].Name)
	assert.Equal(t, []string{"read:grid"}, cfg.API.Auth.APIKeys[0].Permissions)
	assert.Equal(t, 5, cfg.API.RateLimit.Burst)
}
