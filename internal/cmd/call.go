package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/hargabyte/emb/internal/mcp"
	"github.com/spf13/cobra"
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke an MCP tool directly from the CLI",
	Long: `Invoke an MCP tool directly, without starting a server.

This is useful for scripting and for testing tool behavior. Arguments are
passed as a JSON object with --args.

Examples:
  emb call --list
  emb call emb_embed --args '{"text": "hello"}'
  emb call emb_similarity --args '{"text_a": "login", "text_b": "sign in"}'
  emb call emb_models`,
	RunE: runCall,
}

var (
	callArgs string
	callList bool
)

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&callArgs, "args", "", "Tool arguments as a JSON object")
	callCmd.Flags().BoolVar(&callList, "list", false, "List tools and their parameters")
}

func runCall(cmd *cobra.Command, args []string) error {
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
		Tools:     mcp.AllTools,
	})
	if err != nil {
		engine.Close()
		return err
	}
	defer server.Close()

	if callList {
		return printResult(map[string]interface{}{"tools": server.GetToolSchemas()})
	}

	if len(args) != 1 {
		return fmt.Errorf("need a tool name (run 'emb call --list' to see available tools)")
	}

	toolArgs, err := parseToolArgs(callArgs)
	if err != nil {
		return err
	}

	result, err := server.CallTool(args[0], toolArgs)
	if err != nil {
		return err
	}

	fmt.Println(result)
	return nil
}

// parseToolArgs decodes the --args JSON object.
func parseToolArgs(s string) (map[string]interface{}, error) {
	if s == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("parse --args: %w", err)
	}
	return args, nil
}
