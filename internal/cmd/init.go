package cmd

import (
	"fmt"
	"os"

	"github.com/hargabyte/emb/internal/config"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default .emb/config.yaml in the current directory",
	Long: `Create the .emb directory and write a default config.yaml.

The config file documents every key with its default value. Commands walk
up the directory tree to find the nearest .emb directory, so running init
at a project root configures the whole project.

Examples:
  emb init`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	path, err := config.SaveDefault(cwd)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", path)
	return nil
}
