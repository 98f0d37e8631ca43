package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command group
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the embedding cache",
	Long: `Inspect and manage the SQLite embedding cache.

The cache lives in .emb/cache.db and stores one row per (text, model)
pair so repeated texts never touch the model twice.

Subcommands:
  stats   Show cache statistics
  clear   Remove cached embeddings

Examples:
  emb cache stats
  emb cache clear
  emb cache clear --model sentence-transformers/all-MiniLM-L6-v2`,
}

// cacheStatsCmd shows statistics
var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runCacheStats,
}

// cacheClearCmd clears the cache
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached embeddings",
	RunE:  runCacheClear,
}

var cacheClearModel string

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().StringVar(&cacheClearModel, "model", "", "Only clear embeddings for this model version")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cache is disabled (cache.enabled: false)")
	}
	defer c.Close()

	stats, err := c.GetStats()
	if err != nil {
		return err
	}

	return printResult(map[string]interface{}{
		"path":       c.Path(),
		"embeddings": stats.EmbeddingCount,
		"models":     stats.ModelVersions,
		"size_bytes": stats.SizeBytes,
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cache is disabled (cache.enabled: false)")
	}
	defer c.Close()

	if cacheClearModel != "" {
		if err := c.ClearModel(cacheClearModel); err != nil {
			return err
		}
		return printResult(map[string]interface{}{"cleared": cacheClearModel})
	}

	if err := c.Clear(); err != nil {
		return err
	}
	return printResult(map[string]interface{}{"cleared": "all"})
}
