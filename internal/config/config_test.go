package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.Models.Default)
	assert.NotEmpty(t, cfg.Models.Fallback)
	assert.Equal(t, 0.5, cfg.Budget.ForceFraction)
	assert.Equal(t, 0.3, cfg.Budget.WarnFraction)
	assert.Equal(t, 4096, cfg.Context.SoftCapLow)
	assert.Equal(t, 8192, cfg.Context.SoftCapDefault)
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.Providers.OpenAIAPIKey = "sk-test"
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty default model", func(c *Config) { c.Models.Default = "" }},
		{"no provider keys", func(c *Config) { c.Providers.OpenAIAPIKey = "" }},
		{"warn above force", func(c *Config) { c.Budget.WarnFraction = 0.9 }},
		{"zero rounds", func(c *Config) { c.Loop.MaxRounds = 0 }},
		{"inverted caps", func(c *Config) { c.Context.SoftCapLow = 99999 }},
		{"bad prefix", func(c *Config) { c.Context.LowPrefixes = []string{"groq"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Providers.OpenAIAPIKey = "sk-test"
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nonexistent.json"))
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Models.Default, cfg.Models.Default)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.DriveRoot)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ouro.json")
	content := `{
		"data_dir": "` + dir + `",
		"models": {"default": "openai/gpt-5.2", "fallback": ["openai/gpt-5.2"]},
		"loop": {"max_rounds": 50}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5.2", cfg.Models.Default)
	assert.Equal(t, 50, cfg.Loop.MaxRounds)
	assert.Equal(t, 0.5, cfg.Budget.ForceFraction, "unset sections keep defaults")
	assert.Equal(t, filepath.Join(dir, "ouro.log"), cfg.Logging.File)
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("OURO_OPENAI_API_KEY", "sk-from-env")
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers.OpenAIAPIKey)
}
