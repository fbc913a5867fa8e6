// Package config provides centralized configuration management.
package config

import (
	"os"
	"path/filepath"
	"sync"
)

// TelebizEnv holds the environment variables the agent reads.
type TelebizEnv struct {
	// Provider is the default model backend (TELEBIZ_PROVIDER)
	Provider string

	// Model overrides the provider's default model (TELEBIZ_MODEL)
	Model string

	// Mode is the default agent mode (TELEBIZ_MODE)
	Mode string

	// Home overrides the data home directory (TELEBIZ_HOME)
	Home string

	// HTTPAddr is the serve listen address (TELEBIZ_HTTP_ADDR)
	HTTPAddr string

	// UserID identifies the requesting user in execution records (TELEBIZ_USER_ID)
	UserID string

	// LogLevel is the minimum log level (TELEBIZ_LOG_LEVEL)
	LogLevel string

	// OpenRouterKey is the OpenRouter API key (OPENROUTER_API_KEY)
	OpenRouterKey string

	// AnthropicKey is the Anthropic API key (ANTHROPIC_API_KEY)
	AnthropicKey string

	// OpenAIKey is the OpenAI API key (OPENAI_API_KEY)
	OpenAIKey string

	// GeminiKey is the Gemini API key (GEMINI_API_KEY, falls back to GOOGLE_API_KEY)
	GeminiKey string

	// Neo4jURI is the audit graph URI (NEO4J_URI)
	Neo4jURI string

	// Neo4jUser is the audit graph user (NEO4J_USER)
	Neo4jUser string

	// Neo4jPassword is the audit graph password (NEO4J_PASSWORD)
	Neo4jPassword string
}

var (
	env     *TelebizEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *TelebizEnv {
	envOnce.Do(func() {
		env = &TelebizEnv{
			Provider:      os.Getenv("TELEBIZ_PROVIDER"),
			Model:         os.Getenv("TELEBIZ_MODEL"),
			Mode:          os.Getenv("TELEBIZ_MODE"),
			Home:          os.Getenv("TELEBIZ_HOME"),
			HTTPAddr:      os.Getenv("TELEBIZ_HTTP_ADDR"),
			UserID:        getEnvDefault("TELEBIZ_USER_ID", os.Getenv("USER")),
			LogLevel:      os.Getenv("TELEBIZ_LOG_LEVEL"),
			OpenRouterKey: os.Getenv("OPENROUTER_API_KEY"),
			AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			GeminiKey:     getEnvDefault("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
			Neo4jURI:      os.Getenv("NEO4J_URI"),
			Neo4jUser:     os.Getenv("NEO4J_USER"),
			Neo4jPassword: os.Getenv("NEO4J_PASSWORD"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
	pathsOnce = sync.Once{}
	paths = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Paths holds standard directory paths.
type Paths struct {
	// Home is the telebiz home directory (~/.telebiz)
	Home string

	// Data is the data directory (~/.telebiz/data)
	Data string

	// ConfigFile is the YAML config path (~/.telebiz/config.yaml)
	ConfigFile string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home := Env().Home
		if home == "" {
			userHome, err := os.UserHomeDir()
			if err != nil {
				userHome = "."
			}
			home = filepath.Join(userHome, ".telebiz")
		}

		paths = &Paths{
			Home:       home,
			Data:       filepath.Join(home, "data"),
			ConfigFile: filepath.Join(home, "config.yaml"),
		}
	})
	return paths
}

// Path returns a path under the telebiz home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
