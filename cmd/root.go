package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/project"
)

var (
	// Global flags
	jsonOutput bool
	verbose    bool
	configPath string

	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ragchunk",
	Short: "Split Kotlin sources into retrieval-ready chunks",
	Long: `ragchunk scans Kotlin source trees and splits them into semantically
meaningful chunks (classes, functions, properties) for retrieval-augmented
generation pipelines.

It provides:
- Streaming chunk export (JSON, JSONL, RAG batches, Markdown report)
- Filtering and near-duplicate suppression
- A local full-text index with search
- File watching for incremental re-indexing
- An MCP server exposing the index to LLM clients

Use 'ragchunk init' to create a .ragchunk project, then 'ragchunk scan'.`,
	Version:      "1.0.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging := project.DefaultConfig().Logging
		p, err := currentProject()
		switch {
		case err == nil:
			logging = p.Config.Logging
		case !errors.Is(err, project.ErrNotInitialized):
			return err
		}

		l, err := newLogger(logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: nearest .ragchunk/config.yaml)")
}
