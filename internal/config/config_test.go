package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

// unsetEnv removes key for the test so that a .env file can supply it.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestLoad_DefaultsWithEnvKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "gemini", cfg.Gateway.Provider)
	assert.Equal(t, "g-key", cfg.Gemini.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Flow.Timeout)
	assert.Equal(t, 2, cfg.Flow.Retries)
	assert.Equal(t, 8, cfg.Gateway.MaxConcurrency)
	assert.InDelta(t, 0.4, cfg.Gemini.Temperature, 0.0001)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRIPFLOW_GATEWAY_PROVIDER", "openai")
	t.Setenv("TRIPFLOW_OPENAI_API_KEY", "sk-1")
	t.Setenv("TRIPFLOW_FLOW_TIMEOUT", "5s")
	t.Setenv("TRIPFLOW_HTTP_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Gateway.Provider)
	assert.Equal(t, "sk-1", cfg.OpenAI.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Flow.Timeout)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoad_ConfigFileAndEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
gateway:
  max_concurrency: 3
redis:
  addr: localhost:6379
cache:
  ttl: 10m
`), 0o600))
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("GEMINI_API_KEY=from-file\n"), 0o600))
	unsetEnv(t, "GEMINI_API_KEY")

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Gateway.MaxConcurrency)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "from-file", cfg.Gemini.APIKey)
}

func TestLoad_MissingProviderKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load("")
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Gateway.Provider = "claude"
	assert.ErrorContains(t, cfg.Validate(), "unknown gateway provider")

	cfg.Gateway.Provider = "openai"
	cfg.OpenAI.APIKey = "k"
	cfg.Gateway.MaxConcurrency = 1
	cfg.Flow.Timeout = time.Second
	assert.NoError(t, cfg.Validate())

	cfg.Flow.Retries = -1
	assert.Error(t, cfg.Validate())
}
