// Package models holds the catalog of supported embedding models and resolves
// their weights to a local directory, downloading from the Hugging Face hub
// when no local copy exists.
package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knights-analytics/hugot"
)

// Model describes a supported embedding model.
type Model struct {
	// Name is the canonical model name used in config and the CLI.
	Name string

	// HubID is the Hugging Face repository identifier.
	HubID string

	// Dimensions is the model's output vector dimension.
	Dimensions int

	// EnvFolder names an environment variable that, when set, points at a
	// local directory holding the model's tokenizer and weights.
	EnvFolder string
}

// TokenizerFile is the tokenizer definition every model folder must contain.
const TokenizerFile = "tokenizer.json"

var catalog = map[string]Model{
	"mini_lm_v2": {
		Name:       "mini_lm_v2",
		HubID:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
		EnvFolder:  "EMB_MINI_LM_FOLDER",
	},
	"jina": {
		Name:       "jina",
		HubID:      "jinaai/jina-embeddings-v2-base-en",
		Dimensions: 768,
		EnvFolder:  "EMB_JINA_FOLDER",
	},
}

var aliases = map[string]string{
	"mini_lm": "mini_lm_v2",
	"bert":    "mini_lm_v2",
}

// Lookup resolves a model name or alias to its catalog entry.
func Lookup(name string) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	m, ok := catalog[key]
	if !ok {
		return Model{}, fmt.Errorf("unknown model %q: supported models are %s", name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Names returns the canonical model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the catalog entries in name order.
func All() []Model {
	all := make([]Model, 0, len(catalog))
	for _, name := range Names() {
		all = append(all, catalog[name])
	}
	return all
}

// DefaultModelsDir returns the directory downloaded weights are cached in.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "emb-models")
	}
	return filepath.Join(home, ".emb", "models")
}

// LocalFolder returns the model folder named by the model's environment
// variable, or "" if the variable is unset.
func LocalFolder(m Model) string {
	if m.EnvFolder == "" {
		return ""
	}
	return os.Getenv(m.EnvFolder)
}

// ResolveWeights returns a local directory holding the model's tokenizer and
// weights. An explicitly configured local folder wins; otherwise a previously
// downloaded copy under modelsDir is reused; otherwise the model is downloaded
// from the hub. modelsDir defaults to DefaultModelsDir when empty.
func ResolveWeights(m Model, modelsDir string) (string, error) {
	if folder := LocalFolder(m); folder != "" {
		if err := verifyModelFolder(folder); err != nil {
			return "", err
		}
		return folder, nil
	}

	if modelsDir == "" {
		modelsDir = DefaultModelsDir()
	}

	// Reuse a prior download. The downloader names the folder owner_model.
	cached := filepath.Join(modelsDir, strings.ReplaceAll(m.HubID, "/", "_"))
	if err := verifyModelFolder(cached); err == nil {
		return cached, nil
	}

	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return "", fmt.Errorf("create models directory: %w", err)
	}

	path, err := hugot.DownloadModel(m.HubID, modelsDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("download %s: %w", m.HubID, err)
	}
	return path, nil
}

// WeightsPresent reports whether the model's weights are available locally,
// either via its environment folder or a prior download under modelsDir.
func WeightsPresent(m Model, modelsDir string) bool {
	if folder := LocalFolder(m); folder != "" {
		return verifyModelFolder(folder) == nil
	}
	if modelsDir == "" {
		modelsDir = DefaultModelsDir()
	}
	cached := filepath.Join(modelsDir, strings.ReplaceAll(m.HubID, "/", "_"))
	return verifyModelFolder(cached) == nil
}

// verifyModelFolder checks that folder contains the files the pipeline needs.
func verifyModelFolder(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("model folder %s: %w", folder, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("model folder %s is not a directory", folder)
	}

	tokenizerPath := filepath.Join(folder, TokenizerFile)
	if _, err := os.Stat(tokenizerPath); err != nil {
		return fmt.Errorf("tokenizer file not found at %s", tokenizerPath)
	}
	return nil
}
