package fantasy

import (
	"context"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/google"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openaicompat"
	"github.com/aretw0/relay/pkg/domain"
)

// Config selects a provider and its default model.
type Config struct {
	Provider  string `yaml:"provider" json:"provider"`
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"-" json:"-"`
	BaseURL   string `yaml:"base_url" json:"baseUrl"`
	MaxTokens int    `yaml:"max_tokens" json:"maxTokens"`
}

// InferProvider guesses the provider from a model id.
func InferProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "openai"
	case strings.HasPrefix(m, "gemini"):
		return "google"
	}
	return ""
}

// NewProvider builds the fantasy provider named by name. A base URL routes
// anthropic and openai through the OpenAI-compatible client; any other name
// requires one.
func NewProvider(name, apiKey, baseURL string) (fantasy.Provider, error) {
	switch name {
	case "anthropic":
		if baseURL == "" {
			return anthropic.New(anthropic.WithAPIKey(apiKey))
		}
	case "openai":
		if baseURL == "" {
			return openai.New(openai.WithAPIKey(apiKey))
		}
	case "google":
		return google.New(google.WithGeminiAPIKey(apiKey))
	case "":
		return nil, domain.ConfigurationError("model provider is not set")
	}
	if baseURL == "" {
		return nil, domain.ConfigurationError("base_url is required for provider %s", name)
	}
	return openaicompat.New(
		openaicompat.WithBaseURL(baseURL),
		openaicompat.WithAPIKey(apiKey),
		openaicompat.WithName(name),
	)
}

// Open builds a Model from cfg. The provider is inferred from the model id
// when cfg.Provider is empty.
func Open(ctx context.Context, cfg Config) (*Model, error) {
	name := cfg.Provider
	if name == "" {
		name = InferProvider(cfg.Model)
	}
	provider, err := NewProvider(name, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	m := NewModel(provider, cfg.Model, WithMaxTokens(cfg.MaxTokens))
	if cfg.Model != "" {
		if _, err := m.open(ctx, cfg.Model); err != nil {
			return nil, err
		}
	}
	return m, nil
}
