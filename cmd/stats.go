package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search index statistics",
	Run: func(cmd *cobra.Command, args []string) {
		p := projectOrDefault()
		ix := openIndex(p)
		defer func() { _ = ix.Close() }()

		status, err := ix.Status()
		if err != nil {
			exitError("%v", err)
		}

		if jsonOutput {
			if err := outputJSON(status); err != nil {
				exitError("failed to encode JSON: %v", err)
			}
			return
		}

		fmt.Printf("Index: %s\n", status.Dir)
		if status.TotalChunks == 0 {
			fmt.Println("\nThe index is empty. Run 'ragchunk scan --index' to build it.")
			return
		}
		fmt.Printf("  Files:     %d (%d failed)\n", status.TotalFiles, status.FailedFiles)
		fmt.Printf("  Chunks:    %d\n", status.TotalChunks)
		fmt.Printf("  Documents: %d\n", status.Documents)
		fmt.Printf("  Tokens:    ~%d\n", status.TotalTokens)
		if status.LastIndexed != "" {
			fmt.Printf("  Updated:   %s\n", status.LastIndexed)
		}

		types := make([]chunk.ChunkType, 0, len(status.TypeCounts))
		for t := range status.TypeCounts {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		fmt.Println("\nBy type:")
		for _, t := range types {
			fmt.Printf("  %-12s %d\n", t, status.TypeCounts[t])
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
