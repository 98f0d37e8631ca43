package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hargabyte/emb/internal/cache"
	"github.com/hargabyte/emb/internal/config"
	"github.com/hargabyte/emb/internal/embedder"
	"github.com/hargabyte/emb/internal/models"
	"github.com/hargabyte/emb/internal/output"
)

// loadConfig loads configuration from --config or the nearest .emb directory.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return config.Load(cwd)
}

// embDir returns the .emb directory to use for cache and daemon files:
// the nearest project .emb if one exists, otherwise ~/.emb (created on
// demand).
func embDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if dir, err := config.FindConfigDir(cwd); err == nil {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, config.ConfigDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// resolveModelsDir returns the weights directory from config or the default.
func resolveModelsDir(cfg *config.Config) string {
	if cfg.ModelsDir != "" {
		return cfg.ModelsDir
	}
	return models.DefaultModelsDir()
}

// lookupConfiguredModel resolves the configured model name in the catalog.
func lookupConfiguredModel(cfg *config.Config) (models.Model, error) {
	return models.Lookup(cfg.Model)
}

// buildEngine constructs the embedding engine selected by config.
// For the local engine this loads model weights, downloading them on first
// use; expect the first call to take a while.
func buildEngine(cfg *config.Config) (embedder.Embedder, models.Model, error) {
	m, err := models.Lookup(cfg.Model)
	if err != nil {
		return nil, models.Model{}, initError(err)
	}

	switch cfg.Engine {
	case "ollama":
		e := embedder.NewOllamaEmbedder(cfg.Ollama.URL, cfg.Ollama.Model, m.Dimensions)
		return e, m, nil

	case "local":
		weightsDir, err := models.ResolveWeights(m, resolveModelsDir(cfg))
		if err != nil {
			return nil, models.Model{}, initError(err)
		}
		logVerbose("loading %s from %s", m.HubID, weightsDir)
		e, err := embedder.NewLocalEmbedder(m, weightsDir, embedder.LocalOptions{
			BatchSize: cfg.BatchSize,
			Normalize: cfg.NormalizeEnabled(),
		})
		if err != nil {
			return nil, models.Model{}, err
		}
		return e, m, nil

	default:
		return nil, models.Model{}, fmt.Errorf("unknown engine: %s", cfg.Engine)
	}
}

// initError marks a model-resolution failure as InitializationFailed, so
// wire callers see the same code the engine constructors report.
func initError(err error) error {
	return &embedder.Error{Code: embedder.CodeInitializationFailed, Err: err}
}

// openCache opens the embedding cache, or returns nil if caching is disabled.
func openCache(cfg *config.Config) (*cache.Cache, error) {
	if !cfg.CacheEnabled() {
		return nil, nil
	}
	dir, err := embDir()
	if err != nil {
		return nil, err
	}
	return cache.Open(dir)
}

// getFormatter returns the formatter selected by --format.
func getFormatter() (output.Formatter, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.GetFormatter(format)
}

// printResult writes a value to stdout in the selected format.
func printResult(v interface{}) error {
	formatter, err := getFormatter()
	if err != nil {
		return err
	}
	return formatter.FormatToWriter(os.Stdout, v)
}

// logVerbose writes a progress message to stderr when --verbose is set.
func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
