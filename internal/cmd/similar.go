package cmd

import (
	"context"
	"fmt"

	"github.com/hargabyte/emb/internal/vectors"
	"github.com/spf13/cobra"
)

// similarCmd represents the similar command
var similarCmd = &cobra.Command{
	Use:   "similar <text_a> <text_b> | similar --search <query>",
	Short: "Compute cosine similarity between texts",
	Long: `Compute the cosine similarity between two texts, or search previously
embedded texts for the nearest neighbors of a query.

With two arguments, both texts are embedded and their cosine similarity is
printed. With --search, the query is embedded and matched against the
embedding cache.

Examples:
  emb similar "login user" "authenticate user"
  emb similar --search "user login" --top 5`,
	RunE: runSimilar,
}

var (
	similarSearch string
	similarTop    int
)

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().StringVar(&similarSearch, "search", "", "Search the cache for neighbors of this query")
	similarCmd.Flags().IntVar(&similarTop, "top", 10, "Maximum search results")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	if similarSearch != "" {
		return runSimilarSearch(similarSearch)
	}
	if len(args) != 2 {
		return fmt.Errorf("need exactly two texts, or --search <query>")
	}
	return runSimilarPair(args[0], args[1])
}

func runSimilarPair(textA, textB string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	vecs, err := engine.EmbedBatch(context.Background(), []string{textA, textB})
	if err != nil {
		return err
	}

	return printResult(map[string]interface{}{
		"model":      engine.ModelVersion(),
		"text_a":     textA,
		"text_b":     textB,
		"similarity": vectors.Cosine(vecs[0], vecs[1]),
	})
}

func runSimilarSearch(query string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("search requires the embedding cache (cache.enabled: true)")
	}
	defer c.Close()

	engine, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	vec, err := engine.Embed(context.Background(), query)
	if err != nil {
		return err
	}

	results, err := c.FindSimilar(vec, engine.ModelVersion(), similarTop)
	if err != nil {
		return err
	}

	return printResult(map[string]interface{}{
		"model":   engine.ModelVersion(),
		"query":   query,
		"results": results,
	})
}
