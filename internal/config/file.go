package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider defaults mirror the models the agent ships with.
var defaultModels = map[string]string{
	"openrouter": "anthropic/claude-sonnet-4.5",
	"claude":     "claude-sonnet-4-5-20250929",
	"openai":     "gpt-4o",
	"gemini":     "gemini-2.0-flash",
}

// DefaultModel returns the default model for a provider id.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// Neo4jConfig configures the optional execution audit graph.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Config is the merged file + environment configuration.
type Config struct {
	Provider      string            `yaml:"provider"`
	Model         string            `yaml:"model"`
	Mode          string            `yaml:"mode"`
	UserID        string            `yaml:"user_id"`
	APIKeys       map[string]string `yaml:"api_keys"`
	BaseURLs      map[string]string `yaml:"base_urls"`
	DataDir       string            `yaml:"data_dir"`
	HTTPAddr      string            `yaml:"http_addr"`
	LogLevel      string            `yaml:"log_level"`
	DisabledTools []string          `yaml:"disabled_tools"`
	ReminderSweep string            `yaml:"reminder_sweep"`
	AllOrNothing  bool              `yaml:"all_or_nothing"`
	Neo4j         Neo4jConfig       `yaml:"neo4j"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Provider:      "openrouter",
		Mode:          "agent",
		APIKeys:       map[string]string{},
		BaseURLs:      map[string]string{},
		DataDir:       GetPaths().Data,
		HTTPAddr:      ":8088",
		LogLevel:      "info",
		ReminderSweep: "@every 1m",
	}
}

// Load reads the YAML file at path (missing files are fine) over the
// defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(Env())
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[string]string{}
	}
	return cfg, nil
}

func (c *Config) applyEnv(e *TelebizEnv) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Provider, e.Provider)
	override(&c.Model, e.Model)
	override(&c.Mode, e.Mode)
	override(&c.HTTPAddr, e.HTTPAddr)
	override(&c.LogLevel, e.LogLevel)
	override(&c.Neo4j.URI, e.Neo4jURI)
	override(&c.Neo4j.User, e.Neo4jUser)
	override(&c.Neo4j.Password, e.Neo4jPassword)
	if c.UserID == "" {
		c.UserID = e.UserID
	}

	if c.APIKeys == nil {
		c.APIKeys = map[string]string{}
	}
	for id, key := range map[string]string{
		"openrouter": e.OpenRouterKey,
		"claude":     e.AnthropicKey,
		"openai":     e.OpenAIKey,
		"gemini":     e.GeminiKey,
	} {
		if key != "" {
			c.APIKeys[id] = key
		}
	}
}

// Validate checks the fields that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("unknown provider %q (want openrouter, claude, openai or gemini)", c.Provider)
	}
	switch c.Mode {
	case "ask", "plan", "agent":
	default:
		return fmt.Errorf("unknown mode %q (want ask, plan or agent)", c.Mode)
	}
	return nil
}
