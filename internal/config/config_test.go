package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.HasModel())
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "RELAY_TEST_REDIS=cache:6379\n")
	t.Cleanup(func() { os.Unsetenv("RELAY_TEST_REDIS") })

	path := writeFile(t, dir, "relay.yaml", `
workflows:
  dir: ./flows
store:
  driver: redis
  redis:
    addr: ${RELAY_TEST_REDIS}
    ttl: 24h
    lock: true
  mask_keys: [token, ssn]
sandbox:
  remote_provider: process
  env:
    team_id: MY_TEAM
model:
  id: claude-sonnet-4
integrations:
  alice: [github]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./flows", cfg.Workflows.Dir)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.True(t, cfg.Store.Redis.Lock)
	assert.Equal(t, []string{"token", "ssn"}, cfg.Store.MaskKeys)
	assert.Equal(t, "MY_TEAM", cfg.Sandbox.Env.TeamID)
	assert.Equal(t, map[string][]string{"alice": {"github"}}, cfg.Integrations)
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep their defaults")
	assert.True(t, cfg.HasModel())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"file without path", func(c *Config) { c.Store.Driver = DriverFile }, "store.path is required"},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite }, "store.path is required"},
		{"redis without addr", func(c *Config) { c.Store.Driver = DriverRedis }, "store.redis.addr is required"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, `unknown store driver "postgres"`},
		{"unknown provider", func(c *Config) { c.Sandbox.RemoteProvider = "e2b" }, "unknown remote sandbox provider"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestModelSettings(t *testing.T) {
	env := map[string]string{"ANTHROPIC_API_KEY": "sk-ant", "ROUTER_KEY": "sk-router"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	cfg.Model = ModelConfig{ID: "claude-sonnet-4", MaxTokens: 1024}
	got := cfg.ModelSettings(lookup)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, "sk-ant", got.APIKey)
	assert.Equal(t, 1024, got.MaxTokens)

	cfg.Model = ModelConfig{ID: "llama-3", Provider: "openrouter", APIKeyEnv: "ROUTER_KEY", BaseURL: "https://router.example/v1"}
	got = cfg.ModelSettings(lookup)
	assert.Equal(t, "openrouter", got.Provider)
	assert.Equal(t, "sk-router", got.APIKey)
	assert.Equal(t, "https://router.example/v1", got.BaseURL)

	cfg.Model = ModelConfig{ID: "mystery"}
	assert.Empty(t, cfg.ModelSettings(lookup).APIKey)
}
