package provider

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/telebiz/agentcore/internal/config"
	"github.com/telebiz/agentcore/internal/domain"
)

// Config holds provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient HTTPClient
}

// ConfigOption modifies provider configuration.
type ConfigOption func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) { c.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used by the raw HTTP providers.
func WithHTTPClient(client HTTPClient) ConfigOption {
	return func(c *Config) { c.HTTPClient = client }
}

// Builder constructs a provider from config.
type Builder func(cfg Config) Provider

// Factory creates providers and caches them per id and credentials.
type Factory struct {
	mu       sync.RWMutex
	cache    map[string]Provider
	builders map[domain.ProviderID]Builder
}

// NewFactory creates a factory with the four built-in providers.
func NewFactory() *Factory {
	f := &Factory{
		cache:    make(map[string]Provider),
		builders: make(map[domain.ProviderID]Builder),
	}
	f.Register(domain.ProviderOpenRouter, func(cfg Config) Provider {
		return NewOpenRouter(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient)
	})
	f.Register(domain.ProviderClaude, func(cfg Config) Provider {
		return NewClaude(cfg.APIKey, cfg.BaseURL)
	})
	f.Register(domain.ProviderOpenAI, func(cfg Config) Provider {
		return NewOpenAI(cfg.APIKey, cfg.BaseURL)
	})
	f.Register(domain.ProviderGemini, func(cfg Config) Provider {
		return NewGemini(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient)
	})
	return f
}

// Register adds or replaces a builder.
func (f *Factory) Register(id domain.ProviderID, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[id] = b
}

// Create returns the provider for id. A missing API key falls back to the
// environment.
func (f *Factory) Create(id domain.ProviderID, opts ...ConfigOption) (Provider, error) {
	cfg := Config{HTTPClient: &http.Client{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = envKey(id)
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", id, cfg.APIKey[:min(8, len(cfg.APIKey))], cfg.BaseURL)

	f.mu.RLock()
	if p, ok := f.cache[cacheKey]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[cacheKey]; ok {
		return p, nil
	}
	b, ok := f.builders[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	p := b(cfg)
	f.cache[cacheKey] = p
	return p, nil
}

// FromConfig creates the configured provider.
func (f *Factory) FromConfig(cfg *config.Config) (Provider, error) {
	id := domain.ProviderID(cfg.Provider)
	return f.Create(id, WithAPIKey(cfg.APIKeys[cfg.Provider]), WithBaseURL(cfg.BaseURLs[cfg.Provider]))
}

// Clear removes cached providers.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]Provider)
}

// Default is the process-wide factory.
var Default = NewFactory()

func envKey(id domain.ProviderID) string {
	env := config.Env()
	switch id {
	case domain.ProviderOpenRouter:
		return env.OpenRouterKey
	case domain.ProviderClaude:
		return env.AnthropicKey
	case domain.ProviderOpenAI:
		return env.OpenAIKey
	case domain.ProviderGemini:
		return env.GeminiKey
	}
	return ""
}
