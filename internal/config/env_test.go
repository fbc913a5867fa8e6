package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setenv(t *testing.T, key, value string) {
	t.Helper()
	t.Setenv(key, value)
	ResetEnv()
	t.Cleanup(ResetEnv)
}

func TestEnv(t *testing.T) {
	setenv(t, "TELEBIZ_PROVIDER", "claude")
	setenv(t, "ANTHROPIC_API_KEY", "sk-ant")
	setenv(t, "NEO4J_URI", "bolt://testhost:7687")

	env := Env()

	assert.Equal(t, "claude", env.Provider)
	assert.Equal(t, "sk-ant", env.AnthropicKey)
	assert.Equal(t, "bolt://testhost:7687", env.Neo4jURI)
}

func TestGeminiKeyFallback(t *testing.T) {
	setenv(t, "GEMINI_API_KEY", "")
	setenv(t, "GOOGLE_API_KEY", "g-key")

	assert.Equal(t, "g-key", Env().GeminiKey)
}

func TestPathsUnderHome(t *testing.T) {
	home := t.TempDir()
	setenv(t, "TELEBIZ_HOME", home)

	p := GetPaths()
	assert.Equal(t, home, p.Home)
	assert.Equal(t, filepath.Join(home, "data"), p.Data)
	assert.Equal(t, filepath.Join(home, "config.yaml"), p.ConfigFile)
	assert.Equal(t, filepath.Join(home, "a", "b"), Path("a", "b"))
}

func TestLoadDefaults(t *testing.T) {
	setenv(t, "TELEBIZ_HOME", t.TempDir())
	setenv(t, "TELEBIZ_PROVIDER", "")
	setenv(t, "TELEBIZ_MODEL", "")
	setenv(t, "TELEBIZ_MODE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Provider)
	assert.Equal(t, "anthropic/claude-sonnet-4.5", cfg.Model)
	assert.Equal(t, "agent", cfg.Mode)
	assert.Equal(t, "@every 1m", cfg.ReminderSweep)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	setenv(t, "TELEBIZ_HOME", t.TempDir())
	setenv(t, "TELEBIZ_PROVIDER", "")
	setenv(t, "TELEBIZ_MODEL", "")
	setenv(t, "TELEBIZ_MODE", "plan")
	setenv(t, "OPENAI_API_KEY", "sk-env")
	setenv(t, "GEMINI_API_KEY", "")
	setenv(t, "GOOGLE_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: openai
mode: agent
disabled_tools:
  - "crm/create*"
api_keys:
  gemini: g-file
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "plan", cfg.Mode, "env overrides file")
	assert.Equal(t, []string{"crm/create*"}, cfg.DisabledTools)
	assert.Equal(t, "sk-env", cfg.APIKeys["openai"])
	assert.Equal(t, "g-file", cfg.APIKeys["gemini"])
}

func TestValidate(t *testing.T) {
	cfg := &Config{Provider: "bard", Mode: "agent"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Provider: "gemini", Mode: "yolo"}
	assert.Error(t, cfg.Validate())
}
