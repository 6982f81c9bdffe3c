package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/scanner"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Keep the search index current as files change",
	Long: `Index the source tree, then watch it and re-chunk files as they are
created, modified or deleted. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := projectOrDefault()
		skipInitial, _ := cmd.Flags().GetBool("skip-initial")
		debounce := p.Config.Index.Debounce
		if cmd.Flags().Changed("debounce") {
			debounce, _ = cmd.Flags().GetDuration("debounce")
		}

		root := p.RootPath
		if len(args) > 0 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				exitError("failed to resolve %s: %v", args[0], err)
			}
			root = abs
		}

		base, inProject := scanBase(p, root)
		if !inProject {
			exitError("cannot watch %s: it is outside the project root %s", root, p.RootPath)
		}

		ix := openIndex(p)
		defer func() { _ = ix.Close() }()

		sc := newScanner(p)
		ctx, cancel := signalContext()
		defer cancel()

		if !skipInitial {
			result, err := sc.ScanDir(ctx, base, root, ix)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				exitError("initial scan failed: %v", err)
			}
			if !jsonOutput {
				fmt.Printf("Indexed %d files (%d failed) in %s\n",
					result.ScannedFiles, result.ErrorFiles, result.Duration.Round(time.Millisecond))
			}
		}

		w := scanner.NewWatcher(sc, root, ix,
			scanner.WithBase(base),
			scanner.WithDebounce(debounce),
			scanner.WithRemoveHook(ix.Remove),
			scanner.WithFlushHook(func(changed, removed []string) {
				if jsonOutput {
					_ = outputJSON(map[string]interface{}{
						"time":    time.Now().Format(time.RFC3339),
						"changed": changed,
						"removed": removed,
					})
					return
				}
				if len(changed) > 0 {
					fmt.Printf("Reindexed: %s\n", strings.Join(changed, ", "))
				}
				if len(removed) > 0 {
					fmt.Printf("Removed: %s\n", strings.Join(removed, ", "))
				}
			}),
		)
		if err := w.Start(ctx); err != nil {
			exitError("%v", err)
		}
		if !jsonOutput {
			fmt.Printf("Watching %s (Ctrl+C to stop)\n", root)
		}

		<-ctx.Done()
		if err := w.Stop(); err != nil {
			logger.Warn("watcher stop failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("skip-initial", false, "Do not index the tree before watching")
	watchCmd.Flags().Duration("debounce", scanner.DefaultDebounce, "Wait this long for changes to settle")
}
