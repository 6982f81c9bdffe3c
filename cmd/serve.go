package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mindweaver/ragchunk/internal/mcp"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chunk index to MCP clients over stdio",
	Long: `Start an MCP server on stdin/stdout exposing the tools search_chunks,
get_chunk, index_status and index_repository. Logs go to stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		p := projectOrDefault()
		ix := openIndex(p)
		defer func() { _ = ix.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		srv := mcp.NewServer(ix, newScanner(p), p.RootPath, rootCmd.Version, logger.Named("mcp"))
		if err := srv.Serve(ctx); err != nil {
			exitError("server failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
