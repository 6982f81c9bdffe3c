package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Show the declarations and chunks of a single file",
	Long: `Parse one Kotlin file and print the declarations found in it. With --chunks
the chunks that scan would produce are listed as well.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := projectOrDefault()
		members, _ := cmd.Flags().GetBool("members")
		showChunks, _ := cmd.Flags().GetBool("chunks")

		analysis, lines, err := parser.New(parser.WithMembers(members)).ParseFile(args[0])
		if err != nil {
			exitError("%v", err)
		}

		var chunks []*chunk.Chunk
		if showChunks {
			chunker := chunk.NewChunker(p.Config.Chunking, logger.Named("chunker"))
			_, err := chunker.ChunkFile(context.Background(), analysis, lines, func(c *chunk.Chunk) error {
				chunks = append(chunks, c)
				return nil
			})
			if err != nil {
				exitError("failed to chunk %s: %v", args[0], err)
			}
		}

		if jsonOutput {
			out := map[string]interface{}{"analysis": analysis}
			if showChunks {
				out["chunks"] = chunks
			}
			if err := outputJSON(out); err != nil {
				exitError("failed to encode JSON: %v", err)
			}
			return
		}

		fmt.Printf("%s (%d lines)\n", analysis.FilePath, analysis.TotalLines)
		if analysis.PackageName != "" {
			fmt.Printf("Package: %s\n", analysis.PackageName)
		}
		fmt.Printf("Imports: %d\n\n", len(analysis.Imports))

		for _, el := range analysis.Elements {
			indent := ""
			if el.Parent != "" {
				indent = "  "
			}
			vis := ""
			if el.IsPrivate {
				vis = " (private)"
			}
			fmt.Printf("%s%-10s %s [%d-%d]%s\n", indent, el.Type, el.Name, el.StartLine, el.EndLine, vis)
			if verbose && el.Signature != "" {
				fmt.Printf("%s           %s\n", indent, el.Signature)
			}
		}

		if showChunks {
			fmt.Printf("\nChunks: %d\n", len(chunks))
			for _, c := range chunks {
				part := ""
				if c.Parts > 0 {
					part = fmt.Sprintf(" part %d/%d", c.Part, c.Parts)
				}
				fmt.Printf("  %-10s %s [%d-%d]%s ~%d tokens\n", c.Type, c.DisplayName(), c.StartLine, c.EndLine, part, c.TokenEstimate)
			}
		}

		counts := analysis.CountByType()
		var summary []string
		for _, t := range []parser.ElementType{parser.ElementClass, parser.ElementInterface, parser.ElementEnum, parser.ElementFunction, parser.ElementProperty} {
			if n := counts[t]; n > 0 {
				summary = append(summary, fmt.Sprintf("%d %s", n, strings.ToLower(string(t))))
			}
		}
		if len(summary) > 0 {
			fmt.Printf("\n%s\n", strings.Join(summary, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().Bool("members", true, "Include members declared inside classes")
	parseCmd.Flags().Bool("chunks", false, "Also list the chunks produced for the file")
}
