// Package cmd contains all CLI commands for emb.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hargabyte/emb/internal/embedder"
	"github.com/hargabyte/emb/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is the current version of emb
	Version = embedder.Version

	// Global flags
	verbose      bool
	configPath   string
	forAgents    bool
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "emb",
	Short: "Text embedding CLI and serving tool",
	Long: `emb computes dense vector embeddings for text using local transformer
models or a remote Ollama instance.

It loads sentence-transformer models (ONNX weights), embeds single texts or
batches, caches results in SQLite so a text is only ever embedded once per
model, and serves embeddings to other processes over a Unix socket daemon or
an MCP server.

Main capabilities:
  - Embed texts with a local model or Ollama
  - Batch embedding with all-or-nothing semantics
  - Cosine similarity between texts and nearest-neighbor search
  - Manage model weights (list, pull)
  - Background daemon that keeps the model warm
  - MCP server for AI agent integration

Global Flags:
  --format    Output format: yaml (default) | json
  --config    Path to config file (default: .emb/config.yaml)

Examples:
  emb embed "a quick brown fox"       # Embed one text
  emb embed one two three             # Embed a batch
  emb similar "login user" "sign in"  # Cosine similarity
  emb models list                     # Show available models
  emb daemon start --background       # Keep the model warm
  emb serve                           # MCP server on stdio

See 'emb <command> --help' for command-specific options.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: .emb/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", output.DefaultFormat.String(), "Output format (yaml|json)")
	rootCmd.Flags().BoolVar(&forAgents, "for-agents", false, "Output machine-readable capability discovery JSON")

	// Set custom help function to intercept --for-agents flag
	originalHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if forAgents {
			outputAgentHelp(cmd)
			return
		}
		originalHelp(cmd, args)
	})
}

// CommandInfo represents a command for agent discovery
type CommandInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Usage       string        `json:"usage"`
	Flags       []FlagInfo    `json:"flags,omitempty"`
	Subcommands []CommandInfo `json:"subcommands,omitempty"`
}

// FlagInfo represents a command flag for agent discovery
type FlagInfo struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
}

// outputAgentHelp outputs machine-readable JSON describing all commands
func outputAgentHelp(cmd *cobra.Command) {
	root := buildCommandInfo(cmd.Root())

	output := map[string]interface{}{
		"version":  Version,
		"commands": root.Subcommands,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

// buildCommandInfo recursively builds CommandInfo from a cobra command
func buildCommandInfo(cmd *cobra.Command) CommandInfo {
	info := CommandInfo{
		Name:        cmd.Name(),
		Description: cmd.Short,
		Usage:       cmd.UseLine(),
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		info.Flags = append(info.Flags, FlagInfo{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Description: f.Usage,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
		})
	})

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		info.Subcommands = append(info.Subcommands, buildCommandInfo(sub))
	}

	return info
}
