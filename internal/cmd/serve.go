package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/hargabyte/emb/internal/mcp"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server for AI agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets AI agents compute embeddings and similarities through MCP tools
instead of spawning CLI commands. The model stays loaded between calls, so
iterative work is fast.

Available Tools:
  emb_embed        Embed a single text
  emb_embed_batch  Embed several texts in one call
  emb_similarity   Cosine similarity between two texts
  emb_search       Nearest neighbors of a query among cached texts
  emb_models       List available models

Examples:
  emb serve                              # Default tool set
  emb serve --tools embed,similarity     # Specific tools only
  emb serve --timeout 30m                # Auto-stop after inactivity
  emb serve --list-tools                 # Show available tools`,
	RunE: runServe,
}

var (
	serveTools     string
	serveTimeout   string
	serveListTools bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTools, "tools", "", "Comma-separated list of tools to expose (default: embed,embed_batch,similarity,models)")
	serveCmd.Flags().StringVar(&serveTimeout, "timeout", "0", "Inactivity timeout (0 for no timeout)")
	serveCmd.Flags().BoolVar(&serveListTools, "list-tools", false, "List available tools")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListTools {
		fmt.Println("Available MCP tools:")
		fmt.Println()
		fmt.Println("  emb_embed        Embed a single text")
		fmt.Println("  emb_embed_batch  Embed several texts in one call")
		fmt.Println("  emb_similarity   Cosine similarity between two texts")
		fmt.Println("  emb_search       Nearest neighbors of a query among cached texts")
		fmt.Println("  emb_models       List available models")
		fmt.Println()
		fmt.Println("Default set: embed, embed_batch, similarity, models")
		return nil
	}

	var timeout time.Duration
	if serveTimeout != "" && serveTimeout != "0" {
		var err error
		timeout, err = time.ParseDuration(serveTimeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, m, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		engine.Close()
		return err
	}

	server, err := mcp.New(mcp.Config{
		Engine:    engine,
		Cache:     c,
		ModelName: m.Name,
		Tools:     parseToolList(serveTools),
		Timeout:   timeout,
	})
	if err != nil {
		engine.Close()
		return err
	}
	defer server.Close()

	logVerbose("mcp server ready (model=%s, tools=%s)", m.Name, strings.Join(server.ListTools(), ","))
	return server.ServeStdio()
}

// parseToolList expands a comma-separated tool list, accepting names with or
// without the emb_ prefix.
func parseToolList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tools []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, "emb_") {
			name = "emb_" + name
		}
		tools = append(tools, name)
	}
	return tools
}
