package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads configuration from a JSON file with OURO_ env overrides.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path uses ~/.ouro/ouro.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the config file, applies environment overrides, and fills in
// defaults. A missing file is not an error; defaults are returned.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".ouro", "ouro.json")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("OURO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Credentials usually arrive via environment rather than the file.
	if key := os.Getenv("OURO_ANTHROPIC_API_KEY"); key != "" {
		cfg.Providers.AnthropicAPIKey = key
	}
	if key := os.Getenv("OURO_OPENAI_API_KEY"); key != "" {
		cfg.Providers.OpenAIAPIKey = key
	}
	if key := os.Getenv("OURO_OPENROUTER_API_KEY"); key != "" {
		cfg.Providers.OpenRouterAPIKey = key
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".ouro")
	}
	if cfg.RepoRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.RepoRoot = cwd
	}
	if cfg.DriveRoot == "" {
		cfg.DriveRoot = filepath.Join(cfg.DataDir, "drive")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "ouro.log")
	}

	return cfg, nil
}
