package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "config-secret")
	t.Setenv("APP_ENV", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 10, cfg.AuthRateLimit)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	t.Setenv("BUSINESS_NAME", "Hodan Store")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nBUSINESS_NAME=ignored\nRESET_TOKEN_TTL=30m\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("RESET_TOKEN_TTL")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "Hodan Store", cfg.BusinessName)
	assert.Equal(t, 30*time.Minute, cfg.ResetTokenTTL)
}

func TestLoadConfigRejectsShortProductionSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("APP_ENV", "production")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}
