package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hargabyte/emb/internal/cache"
	"github.com/hargabyte/emb/internal/config"
	"github.com/hargabyte/emb/internal/daemon"
	"github.com/hargabyte/emb/internal/embedder"
	"github.com/spf13/cobra"
)

// embedCmd represents the embed command
var embedCmd = &cobra.Command{
	Use:   "embed [text]...",
	Short: "Compute embedding vectors for one or more texts",
	Long: `Compute dense embedding vectors for the given texts.

With a single text the output is one vector; with several texts the batch is
embedded in one call and either succeeds for every text or fails as a whole.

Results are cached in .emb/cache.db keyed by content hash and model version,
so repeated texts are served without touching the model. A running daemon is
used automatically when its model matches, avoiding model load time.

Examples:
  emb embed "a quick brown fox"           # One text
  emb embed "one" "two" "three"           # Batch
  cat texts.txt | emb embed --stdin       # One text per stdin line
  emb embed --no-cache "fresh"            # Bypass the cache
  emb embed --format json "x" > vec.json  # JSON output`,
	RunE: runEmbed,
}

var (
	embedStdin    bool
	embedNoCache  bool
	embedNoDaemon bool
)

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().BoolVar(&embedStdin, "stdin", false, "Read texts from stdin, one per line")
	embedCmd.Flags().BoolVar(&embedNoCache, "no-cache", false, "Bypass the embedding cache")
	embedCmd.Flags().BoolVar(&embedNoDaemon, "no-daemon", false, "Do not use a running daemon")
}

// EmbeddingOutput is one embedded text in the command output.
type EmbeddingOutput struct {
	Text      string    `json:"text" yaml:"text"`
	Cached    bool      `json:"cached" yaml:"cached"`
	Embedding []float32 `json:"embedding" yaml:"embedding"`
}

// EmbedOutput is the embed command output.
type EmbedOutput struct {
	Model   string            `json:"model" yaml:"model"`
	Dims    int               `json:"dims" yaml:"dims"`
	Count   int               `json:"count" yaml:"count"`
	Results []EmbeddingOutput `json:"results" yaml:"results"`
}

func runEmbed(cmd *cobra.Command, args []string) error {
	texts := args
	if embedStdin {
		stdinTexts, err := readLines(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		texts = append(texts, stdinTexts...)
	}
	if len(texts) == 0 {
		return fmt.Errorf("no texts given (pass arguments or --stdin)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var c *cache.Cache
	if !embedNoCache {
		c, err = openCache(cfg)
		if err != nil {
			return err
		}
		if c != nil {
			defer c.Close()
		}
	}

	results, modelVersion, err := embedTexts(cfg, c, texts)
	if err != nil {
		return err
	}

	out := EmbedOutput{
		Model:   modelVersion,
		Count:   len(results),
		Results: results,
	}
	if len(results) > 0 {
		out.Dims = len(results[0].Embedding)
	}
	return printResult(out)
}

// embedTexts embeds texts through the cache, a running daemon, or a local
// engine, in that order of preference. Returns results in input order.
func embedTexts(cfg *config.Config, c *cache.Cache, texts []string) ([]EmbeddingOutput, string, error) {
	modelVersion := expectedModelVersion(cfg)

	results := make([]EmbeddingOutput, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		results[i] = EmbeddingOutput{Text: text}
		if c != nil {
			entry, err := c.Get(embedder.ContentHash(text), modelVersion)
			if err != nil {
				return nil, "", err
			}
			if entry != nil {
				results[i].Cached = true
				results[i].Embedding = entry.Vector
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vecs, err := embedMissing(cfg, modelVersion, missing)
		if err != nil {
			return nil, "", err
		}
		for j, vec := range vecs {
			results[missingIdx[j]].Embedding = vec
			if c != nil {
				text := missing[j]
				if err := c.Put(embedder.ContentHash(text), modelVersion, text, vec); err != nil {
					logVerbose("cache put: %v", err)
				}
			}
		}
	}

	return results, modelVersion, nil
}

// embedMissing computes embeddings for cache misses.
func embedMissing(cfg *config.Config, modelVersion string, texts []string) ([][]float32, error) {
	if !embedNoDaemon {
		if vecs, ok := embedViaDaemon(modelVersion, texts); ok {
			return vecs, nil
		}
	}

	engine, _, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	return engine.EmbedBatch(context.Background(), texts)
}

// embedViaDaemon tries a running daemon whose model matches. Returns
// (nil, false) when no suitable daemon is available.
func embedViaDaemon(modelVersion string, texts []string) ([][]float32, bool) {
	status, err := daemon.GetDaemonStatus("")
	if err != nil || status == nil || status.ModelVersion != modelVersion {
		return nil, false
	}

	client, err := daemon.ConnectToDaemon("")
	if err != nil {
		return nil, false
	}
	// Large batches can outlast the default request timeout.
	client.SetTimeout(2 * time.Minute)
	resp, err := client.EmbedBatch(texts)
	if err != nil || !resp.Success {
		if resp != nil {
			logVerbose("daemon embed failed: %s", resp.Error)
		}
		return nil, false
	}

	raw, ok := resp.Data["embeddings"].([]interface{})
	if !ok || len(raw) != len(texts) {
		return nil, false
	}
	vecs := make([][]float32, len(raw))
	for i, rv := range raw {
		values, ok := rv.([]interface{})
		if !ok {
			return nil, false
		}
		vec := make([]float32, len(values))
		for j, v := range values {
			f, ok := v.(float64)
			if !ok {
				return nil, false
			}
			vec[j] = float32(f)
		}
		vecs[i] = vec
	}

	logVerbose("embedded %d texts via daemon (pid=%d)", len(texts), status.PID)
	return vecs, true
}

// expectedModelVersion computes the model version string the configured
// engine will report, without loading the engine.
func expectedModelVersion(cfg *config.Config) string {
	if cfg.Engine == "ollama" {
		return "ollama/" + cfg.Ollama.Model
	}
	if m, err := lookupConfiguredModel(cfg); err == nil {
		return m.HubID
	}
	return cfg.Model
}

func readLines(f *os.File) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
