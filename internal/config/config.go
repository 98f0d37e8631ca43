package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the emb configuration file
const ConfigFileName = "config.yaml"

// ConfigDirName is the name of the emb configuration directory
const ConfigDirName = ".emb"

// Config holds all emb configuration
type Config struct {
	Model     string       `yaml:"model"`
	Engine    string       `yaml:"engine"`
	ModelsDir string       `yaml:"models_dir"`
	BatchSize int          `yaml:"batch_size"`
	Normalize *bool        `yaml:"normalize"`
	Cache     CacheConfig  `yaml:"cache"`
	Ollama    OllamaConfig `yaml:"ollama"`
	Daemon    DaemonConfig `yaml:"daemon"`
}

// CacheConfig holds configuration for the embedding cache
type CacheConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// OllamaConfig holds configuration for the Ollama engine
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// DaemonConfig holds configuration for the background daemon
type DaemonConfig struct {
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
}

// NormalizeEnabled reports whether output vectors should be L2-normalized.
func (c *Config) NormalizeEnabled() bool {
	return c.Normalize == nil || *c.Normalize
}

// CacheEnabled reports whether the embedding cache is in use.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// ErrConfigNotFound is returned when no config file can be found
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidConfig is returned when config validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads config from .emb/config.yaml, falling back to defaults.
// It searches for the config directory starting from workDir and walking up
// the directory tree. If no config is found, returns defaults.
func Load(workDir string) (*Config, error) {
	configDir, err := FindConfigDir(workDir)
	if err != nil {
		// No config dir found, return defaults
		return DefaultConfig(), nil
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	return LoadFromPath(configPath)
}

// LoadFromPath reads config from a specific path.
// Merges loaded config with defaults and validates the result.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loaded := &Config{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge with defaults
	merged := Merge(loaded, DefaultConfig())

	// Validate the merged config
	if err := Validate(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// FindConfigDir locates the .emb directory by walking up from startDir.
// Returns the path to the .emb directory if found.
func FindConfigDir(startDir string) (string, error) {
	// Get absolute path
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	currentDir := absDir
	for {
		configDir := filepath.Join(currentDir, ConfigDirName)
		info, err := os.Stat(configDir)
		if err == nil && info.IsDir() {
			return configDir, nil
		}

		// Move to parent directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, config not found
			return "", ErrConfigNotFound
		}
		currentDir = parentDir
	}
}

// EnsureConfigDir creates the .emb directory if it doesn't exist.
// Returns the path to the .emb directory.
func EnsureConfigDir(workDir string) (string, error) {
	// Get absolute path
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	configDir := filepath.Join(absDir, ConfigDirName)

	// Check if it already exists
	info, err := os.Stat(configDir)
	if err == nil {
		if info.IsDir() {
			return configDir, nil
		}
		return "", fmt.Errorf("%s exists but is not a directory", configDir)
	}

	// Create the directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	return configDir, nil
}

// Validate checks that config values are valid.
// Returns an error if validation fails.
func Validate(cfg *Config) error {
	if cfg.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidConfig)
	}

	if !IsValidEngine(cfg.Engine) {
		return fmt.Errorf("%w: engine must be one of %v, got %q",
			ErrInvalidConfig, ValidEngines, cfg.Engine)
	}

	if cfg.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d",
			ErrInvalidConfig, cfg.BatchSize)
	}

	if cfg.Engine == "ollama" && cfg.Ollama.URL == "" {
		return fmt.Errorf("%w: ollama.url must be set when engine is ollama",
			ErrInvalidConfig)
	}

	if cfg.Daemon.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("%w: daemon.idle_timeout_minutes must be non-negative, got %d",
			ErrInvalidConfig, cfg.Daemon.IdleTimeoutMinutes)
	}

	return nil
}

// SaveDefault writes the default configuration to .emb/config.yaml in workDir.
// Creates the .emb directory if it doesn't exist.
func SaveDefault(workDir string) (string, error) {
	configDir, err := EnsureConfigDir(workDir)
	if err != nil {
		return "", err
	}

	configPath := filepath.Join(configDir, ConfigFileName)

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return "", fmt.Errorf("config file already exists: %s", configPath)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	// Add header comment
	header := "# emb configuration\n# See https://github.com/hargabyte/emb for documentation\n\n"
	data = append([]byte(header), data...)

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return configPath, nil
}
