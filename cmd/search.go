package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindweaver/ragchunk/internal/index"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the chunk index",
	Long: `Full-text search over indexed chunks. Build the index first with
'ragchunk scan --index' or keep it current with 'ragchunk watch'.

Examples:
  ragchunk search "user repository"
  ragchunk search cache --types function --path src/main/`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := projectOrDefault()
		limit, _ := cmd.Flags().GetInt("limit")
		types, _ := cmd.Flags().GetStringSlice("types")
		prefix, _ := cmd.Flags().GetString("path")
		showContent, _ := cmd.Flags().GetBool("content")

		ix := openIndex(p)
		defer func() { _ = ix.Close() }()

		opts := index.SearchOptions{
			Limit:      limit,
			Types:      parseTypes(types),
			PathPrefix: prefix,
		}
		if !jsonOutput {
			opts.Highlight = "ansi"
		}

		query := strings.Join(args, " ")
		results, err := ix.Search(query, opts)
		if err != nil {
			exitError("search failed: %v", err)
		}

		if jsonOutput {
			if err := outputJSON(map[string]interface{}{
				"query":   query,
				"count":   len(results),
				"results": results,
			}); err != nil {
				exitError("failed to encode JSON: %v", err)
			}
			return
		}

		if len(results) == 0 {
			fmt.Printf("No results for %q\n", query)
			return
		}

		for i, r := range results {
			c := r.Chunk
			fmt.Printf("%d. %s:%d-%d  %s %s  (score %.2f)\n", i+1, c.FilePath, c.StartLine, c.EndLine, c.Type, c.DisplayName(), r.Score)
			if showContent {
				fmt.Println(indentLines(c.Content, "     "))
			} else if r.Snippet != "" {
				fmt.Println(indentLines(r.Snippet, "     "))
			}
			fmt.Printf("     id: %s\n", c.ID)
		}
	},
}

func indentLines(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().StringSlice("types", nil, "Only return these chunk types")
	searchCmd.Flags().String("path", "", "Only return chunks from files below this path")
	searchCmd.Flags().Bool("content", false, "Print the full chunk content")
}
