package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "/api", cfg.API.Prefix)
	assert.Equal(t, "/api/auth/token/refresh/", cfg.API.RefreshPath)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StaleTime)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whatif.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: "https://plan.example.com/"
  timeout: 3s
cache:
  backend: redis
`), 0o644))
	t.Setenv("WHATIF_CACHE_STALE_TIME", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://plan.example.com", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.StaleTime)
}

func TestLoadRejectsEmptyBaseURL(t *testing.T) {
	t.Setenv("WHATIF_API_BASE_URL", " ")
	_, err := Load("")
	require.Error(t, err)
}
