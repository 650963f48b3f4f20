package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_Defaults tests defaults with only the required secret set
func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Setenv("VIGIL_WEBHOOK_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Listeners.Syslog.Host)
	assert.Equal(t, 514, cfg.Listeners.Syslog.Port)
	assert.Equal(t, 8080, cfg.Listeners.Webhook.Port)
	assert.Equal(t, "test-secret", cfg.Listeners.Webhook.Secret)
	assert.Equal(t, int64(DefaultMaxBodySize), cfg.Listeners.Webhook.MaxBodySize)
	assert.Equal(t, 5000, cfg.Listeners.RateLimit)
	assert.Equal(t, 1000, cfg.Listeners.MaxTCPConnections)
	assert.Equal(t, 10, cfg.Listeners.MaxConnectionsPerIP)
	assert.Equal(t, 8081, cfg.API.Port)
	assert.Equal(t, filepath.Join("data", "vigil.db"), filepath.Clean(cfg.Storage.SQLitePath))
}

// TestLoadConfig_EnvOverrides tests the prefixed env bindings
func TestLoadConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("VIGIL_WEBHOOK_SECRET", "test-secret")
	t.Setenv("VIGIL_SYSLOG_PORT", "1514")
	t.Setenv("VIGIL_HTTP_PORT", "9090")
	t.Setenv("VIGIL_API_PORT", "9091")
	t.Setenv("VIGIL_DATA_DIR", "/var/lib/vigil")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1514, cfg.Listeners.Syslog.Port)
	assert.Equal(t, 9090, cfg.Listeners.Webhook.Port)
	assert.Equal(t, 9091, cfg.API.Port)
	assert.Equal(t, "/var/lib/vigil", cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/vigil", "vigil.db"), cfg.Storage.SQLitePath)
}

// TestLoadConfig_UnprefixedFallbacks tests the legacy env names
func TestLoadConfig_UnprefixedFallbacks(t *testing.T) {
	viper.Reset()
	t.Setenv("WEBHOOK_SECRET", "legacy-secret")
	t.Setenv("SYSLOG_PORT", "2514")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "legacy-secret", cfg.Listeners.Webhook.Secret)
	assert.Equal(t, 2514, cfg.Listeners.Syslog.Port)
}

// TestLoadConfig_MissingSecret tests that startup fails closed
func TestLoadConfig_MissingSecret(t *testing.T) {
	viper.Reset()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
}

// TestLoadConfig_ExplicitSQLitePath tests that an explicit path wins
func TestLoadConfig_ExplicitSQLitePath(t *testing.T) {
	viper.Reset()
	t.Setenv("VIGIL_WEBHOOK_SECRET", "test-secret")
	t.Setenv("VIGIL_SQLITE_PATH", "/tmp/custom.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Storage.SQLitePath)
}

// TestValidatePort tests the port range check
func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort(0))
	assert.NoError(t, validatePort(514))
	assert.NoError(t, validatePort(MaxPort))
	assert.Error(t, validatePort(-1))
	assert.Error(t, validatePort(MaxPort+1))
}
