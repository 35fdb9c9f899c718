// Package config loads relay.yaml and the optional .env file beside it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/relay/pkg/adapters/fantasy"
	"github.com/aretw0/relay/pkg/domain"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "relay.yaml"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Workflows    WorkflowsConfig     `yaml:"workflows"`
	Store        StoreConfig         `yaml:"store"`
	Sandbox      SandboxConfig       `yaml:"sandbox"`
	Model        ModelConfig         `yaml:"model"`
	Integrations map[string][]string `yaml:"integrations"`
	Server       ServerConfig        `yaml:"server"`
	Log          LogConfig           `yaml:"log"`
}

type WorkflowsConfig struct {
	Dir string `yaml:"dir"`
}

type StoreConfig struct {
	Driver        string      `yaml:"driver"`
	Path          string      `yaml:"path"`
	Redis         RedisConfig `yaml:"redis"`
	MaskKeys      []string    `yaml:"mask_keys"`
	EncryptionKey string      `yaml:"encryption_key"`
	FallbackKeys  []string    `yaml:"fallback_keys"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	// Lock enables the distributed record lock on the same server.
	Lock bool `yaml:"lock"`
}

type SandboxConfig struct {
	// RemoteProvider enables the remote sandbox kind. Only "process" is built in.
	RemoteProvider string            `yaml:"remote_provider"`
	Commands       string            `yaml:"commands"`
	BaseDir        string            `yaml:"base_dir"`
	Env            SandboxEnvConfig  `yaml:"env"`
	Probe          ProbeConfig       `yaml:"probe"`
	LocalFiles     map[string]string `yaml:"local_files"`
}

// SandboxEnvConfig names the variables holding the fallback team and project ids.
type SandboxEnvConfig struct {
	TeamID    string `yaml:"team_id"`
	ProjectID string `yaml:"project_id"`
}

type ProbeConfig struct {
	Workspace string `yaml:"workspace"`
	Alternate string `yaml:"alternate"`
	Base      string `yaml:"base"`
}

type ModelConfig struct {
	Provider     string `yaml:"provider"`
	ID           string `yaml:"id"`
	APIKeyEnv    string `yaml:"api_key_env"`
	BaseURL      string `yaml:"base_url"`
	MaxTokens    int    `yaml:"max_tokens"`
	Instructions string `yaml:"instructions"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Workflows: WorkflowsConfig{Dir: "workflows"},
		Store:     StoreConfig{Driver: DriverMemory},
		Server:    ServerConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. A blank path means DefaultFile, which may
// be absent; an explicit path must exist. A .env file next to the config is
// loaded into the process environment first, without overriding variables that
// are already set.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, domain.ConfigurationError("failed to parse %s", path).WithCause(err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, domain.ConfigurationError("failed to read %s", path).WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that can be checked without opening anything.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile, DriverSQLite:
		if c.Store.Path == "" {
			return domain.ConfigurationError("store.path is required for the %s driver", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return domain.ConfigurationError("store.redis.addr is required for the redis driver")
		}
	default:
		return domain.ConfigurationError("unknown store driver %q", c.Store.Driver)
	}

	switch c.Sandbox.RemoteProvider {
	case "", "process":
	default:
		return domain.ConfigurationError("unknown remote sandbox provider %q", c.Sandbox.RemoteProvider)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return domain.ConfigurationError("unknown log format %q", c.Log.Format)
	}
	return nil
}

// HasModel reports whether an agent model is configured.
func (c *Config) HasModel() bool {
	return c.Model.ID != ""
}

// ModelSettings resolves the model section. The provider is inferred from the
// model id when unset, and the API key is read from APIKeyEnv or the
// provider's conventional variable.
func (c *Config) ModelSettings(lookup func(string) (string, bool)) fantasy.Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	provider := c.Model.Provider
	if provider == "" {
		provider = fantasy.InferProvider(c.Model.ID)
	}
	keyEnv := c.Model.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultKeyEnv(provider)
	}
	key, _ := lookup(keyEnv)

	return fantasy.Config{
		Provider:  provider,
		Model:     c.Model.ID,
		APIKey:    key,
		BaseURL:   c.Model.BaseURL,
		MaxTokens: c.Model.MaxTokens,
	}
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	case "":
		return ""
	}
	return strings.ToUpper(provider) + "_API_KEY"
}
