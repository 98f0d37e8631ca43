package cmd

import (
	"fmt"
	"os"

	"github.com/hargabyte/emb/internal/models"
	"github.com/spf13/cobra"
)

// modelsCmd represents the models command group
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage embedding models",
	Long: `Manage the embedding model catalog and local weights.

Subcommands:
  list   Show the models in the catalog
  pull   Download a model's weights ahead of time

Examples:
  emb models list
  emb models pull mini_lm_v2
  emb models pull jina`,
}

// modelsListCmd lists the catalog
var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the models in the catalog",
	RunE:  runModelsList,
}

// modelsPullCmd downloads weights
var modelsPullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Download a model's weights",
	Long: `Download a model's weights into the models directory so the first
embed call does not pay download time.

The models directory defaults to ~/.emb/models and can be changed with the
models_dir config key. A directory named by the EMB_MINI_LM_FOLDER or
EMB_JINA_FOLDER environment variable takes precedence and skips the download.

Examples:
  emb models pull mini_lm_v2
  emb models pull jina`,
	Args: cobra.ExactArgs(1),
	RunE: runModelsPull,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsPullCmd)
}

// ModelOutput is one catalog entry in the models list output.
type ModelOutput struct {
	Name       string `json:"name" yaml:"name"`
	HubID      string `json:"hub_id" yaml:"hub_id"`
	Dimensions int    `json:"dimensions" yaml:"dimensions"`
	Default    bool   `json:"default,omitempty" yaml:"default,omitempty"`
	Downloaded bool   `json:"downloaded" yaml:"downloaded"`
}

func runModelsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := resolveModelsDir(cfg)

	var list []ModelOutput
	for _, m := range models.All() {
		list = append(list, ModelOutput{
			Name:       m.Name,
			HubID:      m.HubID,
			Dimensions: m.Dimensions,
			Default:    m.Name == cfg.Model,
			Downloaded: models.WeightsPresent(m, dir),
		})
	}

	return printResult(map[string]interface{}{"models": list})
}

func runModelsPull(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := models.Lookup(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "pulling %s (%s)...\n", m.Name, m.HubID)
	weightsDir, err := models.ResolveWeights(m, resolveModelsDir(cfg))
	if err != nil {
		return err
	}

	return printResult(map[string]interface{}{
		"model": m.Name,
		"path":  weightsDir,
	})
}
