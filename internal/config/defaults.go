package config

// DefaultConfig returns configuration with sensible defaults.
// These defaults are used when no config file exists or when
// config file is missing specific fields.
func DefaultConfig() *Config {
	enabled := true
	normalize := true
	return &Config{
		Model:     "mini_lm_v2",
		Engine:    "local",
		ModelsDir: "",
		BatchSize: 32,
		Normalize: &normalize,
		Cache: CacheConfig{
			Enabled: &enabled,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "all-minilm",
		},
		Daemon: DaemonConfig{
			IdleTimeoutMinutes: 30,
		},
	}
}

// Merge merges loaded config with defaults.
// Values from loaded config take precedence over defaults.
// Returns a new Config with merged values.
func Merge(loaded, defaults *Config) *Config {
	result := &Config{}

	// Model: use loaded if non-empty
	if loaded.Model != "" {
		result.Model = loaded.Model
	} else {
		result.Model = defaults.Model
	}

	// Engine: use loaded if non-empty
	if loaded.Engine != "" {
		result.Engine = loaded.Engine
	} else {
		result.Engine = defaults.Engine
	}

	// ModelsDir: use loaded if non-empty
	if loaded.ModelsDir != "" {
		result.ModelsDir = loaded.ModelsDir
	} else {
		result.ModelsDir = defaults.ModelsDir
	}

	// BatchSize: use loaded if non-zero
	if loaded.BatchSize != 0 {
		result.BatchSize = loaded.BatchSize
	} else {
		result.BatchSize = defaults.BatchSize
	}

	// Normalize: pointer distinguishes unset from explicit false
	if loaded.Normalize != nil {
		result.Normalize = loaded.Normalize
	} else {
		result.Normalize = defaults.Normalize
	}

	result.Cache = mergeCacheConfig(loaded.Cache, defaults.Cache)
	result.Ollama = mergeOllamaConfig(loaded.Ollama, defaults.Ollama)
	result.Daemon = mergeDaemonConfig(loaded.Daemon, defaults.Daemon)

	return result
}

func mergeCacheConfig(loaded, defaults CacheConfig) CacheConfig {
	result := CacheConfig{}

	// Enabled: pointer distinguishes unset from explicit false
	if loaded.Enabled != nil {
		result.Enabled = loaded.Enabled
	} else {
		result.Enabled = defaults.Enabled
	}

	return result
}

func mergeOllamaConfig(loaded, defaults OllamaConfig) OllamaConfig {
	result := OllamaConfig{}

	// URL: use loaded if non-empty
	if loaded.URL != "" {
		result.URL = loaded.URL
	} else {
		result.URL = defaults.URL
	}

	// Model: use loaded if non-empty
	if loaded.Model != "" {
		result.Model = loaded.Model
	} else {
		result.Model = defaults.Model
	}

	return result
}

func mergeDaemonConfig(loaded, defaults DaemonConfig) DaemonConfig {
	result := DaemonConfig{}

	// IdleTimeoutMinutes: use loaded if non-zero
	if loaded.IdleTimeoutMinutes != 0 {
		result.IdleTimeoutMinutes = loaded.IdleTimeoutMinutes
	} else {
		result.IdleTimeoutMinutes = defaults.IdleTimeoutMinutes
	}

	return result
}

// ValidEngines lists the valid values for the embedding engine
var ValidEngines = []string{"local", "ollama"}

// IsValidEngine checks if the given engine value is valid
func IsValidEngine(engine string) bool {
	for _, valid := range ValidEngines {
		if engine == valid {
			return true
		}
	}
	return false
}
