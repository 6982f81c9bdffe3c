package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/export"
	"github.com/mindweaver/ragchunk/internal/index"
	"github.com/mindweaver/ragchunk/internal/processor"
	"github.com/mindweaver/ragchunk/internal/project"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Chunk a source tree and export the chunks",
	Long: `Walk a source tree, split every Kotlin file into chunks and stream them to
the selected exporters.

Formats (repeat --format or separate with commas):
  json       chunks.json array
  jsonl      chunks.jsonl, one chunk per line
  rag        rag/ batch files plus manifest.json
  report     report.md summary
  analytics  statistics only
  console    per-file progress and a summary

Examples:
  ragchunk scan
  ragchunk scan ./service --format json --format report
  ragchunk scan --types function,class --min-tokens 20 --dedup
  ragchunk scan --index --rebuild`,
	Args: cobra.MaximumNArgs(1),
	Run:  runScan,
}

// scanOutcome is the --json output of scan
type scanOutcome struct {
	Root       string                `json:"root"`
	OutputDir  string                `json:"output_dir"`
	Formats    []string              `json:"formats"`
	Filtered   int                   `json:"filtered"`
	Duplicates int                   `json:"duplicates"`
	Indexed    bool                  `json:"indexed"`
	Duration   string                `json:"duration"`
	Statistics *processor.Statistics `json:"statistics"`
	Errors     []string              `json:"errors,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) {
	p := projectOrDefault()
	cfg := *p.Config
	applyScanFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		exitError("invalid configuration: %v", err)
	}
	p = &project.Project{RootPath: p.RootPath, Config: &cfg}

	root := p.RootPath
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			exitError("failed to resolve %s: %v", args[0], err)
		}
		root = abs
	}

	base, inProject := scanBase(p, root)
	if cfg.Index.Enabled && !inProject {
		exitError("cannot index %s: it is outside the project root %s", root, p.RootPath)
	}

	outDir := p.GetOutputPath()
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		outDir = out
	}

	var formats []string
	var exporters []processor.Processor
	for _, format := range cfg.Export.Formats {
		if format == "console" && jsonOutput {
			continue
		}
		e, err := export.New(format, export.Options{
			Dir:         outDir,
			Indent:      cfg.Export.Indent,
			BatchSize:   cfg.Export.BatchSize,
			ProjectName: cfg.Name,
			Writer:      os.Stdout,
			Verbose:     verbose,
		})
		if err != nil {
			exitError("%v", err)
		}
		formats = append(formats, format)
		exporters = append(exporters, e)
	}

	var pipeline processor.Processor = processor.NewMulti(exporters...)

	var dedup *processor.Dedup
	if cfg.Filter.Dedup {
		dedup = processor.NewDedup(pipeline, processor.WithThreshold(float32(cfg.Filter.DedupThreshold)))
		pipeline = dedup
	}

	var filter *processor.Filter
	filterOpts, err := cfg.Filter.Options()
	if err != nil {
		exitError("invalid filter: %v", err)
	}
	if !filterOpts.IsZero() {
		filter = processor.NewFilter(filterOpts, pipeline)
		pipeline = filter
	}

	// The index sees every chunk, ahead of filtering
	var ix *index.Index
	if cfg.Index.Enabled {
		ix = openIndex(p)
		defer func() { _ = ix.Close() }()
		if rebuild, _ := cmd.Flags().GetBool("rebuild"); rebuild {
			if err := ix.Clear(); err != nil {
				exitError("failed to clear index: %v", err)
			}
		}
		pipeline = processor.NewMulti(ix, pipeline)
	}
	top := processor.NewMulti(pipeline)

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("scanning",
		zap.String("root", root),
		zap.Strings("formats", formats),
		zap.String("output", outDir),
		zap.Bool("index", ix != nil))

	result, err := newScanner(p).ScanDir(ctx, base, root, top)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Scan cancelled")
			os.Exit(130)
		}
		exitError("scan failed: %v", err)
	}

	outcome := scanOutcome{
		Root:       root,
		OutputDir:  outDir,
		Formats:    formats,
		Indexed:    ix != nil,
		Duration:   result.Duration.Round(time.Millisecond).String(),
		Statistics: top.Statistics(),
		Errors:     result.Errors,
	}
	if filter != nil {
		outcome.Filtered = filter.Filtered()
	}
	if dedup != nil {
		outcome.Duplicates = dedup.Suppressed()
	}

	if jsonOutput {
		if err := outputJSON(outcome); err != nil {
			exitError("failed to encode JSON: %v", err)
		}
		return
	}

	stats := outcome.Statistics
	fmt.Printf("\nScanned %d files in %s (%d skipped, %d failed)\n", result.ScannedFiles, outcome.Duration, result.SkippedFiles, result.ErrorFiles)
	fmt.Printf("  Chunks: %d (~%d tokens)\n", stats.TotalChunks, stats.TotalTokens)
	if filter != nil {
		fmt.Printf("  Filtered out: %d\n", outcome.Filtered)
	}
	if dedup != nil {
		fmt.Printf("  Duplicates suppressed: %d\n", outcome.Duplicates)
	}
	if len(formats) > 0 {
		fmt.Printf("  Output: %s\n", outDir)
	}
	if ix != nil {
		fmt.Printf("  Index: %s\n", ix.Dir())
	}
}

// applyScanFlags overrides config values with flags given on the command line
func applyScanFlags(cmd *cobra.Command, cfg *project.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Export.Formats, _ = flags.GetStringSlice("format")
	}
	if flags.Changed("batch-size") {
		cfg.Export.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("indent") {
		cfg.Export.Indent, _ = flags.GetBool("indent")
	}
	if flags.Changed("types") {
		cfg.Filter.Types, _ = flags.GetStringSlice("types")
	}
	if flags.Changed("min-tokens") {
		cfg.Filter.MinTokens, _ = flags.GetInt("min-tokens")
	}
	if flags.Changed("max-tokens") {
		cfg.Filter.MaxTokens, _ = flags.GetInt("max-tokens")
	}
	if flags.Changed("exclude-private") {
		cfg.Filter.ExcludePrivate, _ = flags.GetBool("exclude-private")
	}
	if flags.Changed("path") {
		cfg.Filter.Paths, _ = flags.GetStringSlice("path")
	}
	if flags.Changed("dedup") {
		cfg.Filter.Dedup, _ = flags.GetBool("dedup")
	}
	if flags.Changed("index") {
		cfg.Index.Enabled, _ = flags.GetBool("index")
	}
	if flags.Changed("max-file-size") {
		cfg.Scan.MaxFileSize, _ = flags.GetInt64("max-file-size")
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceP("format", "f", nil, "Output format (json, jsonl, rag, report, analytics, console)")
	scanCmd.Flags().StringP("output", "o", "", "Output directory (default from config)")
	scanCmd.Flags().Int("batch-size", export.DefaultBatchSize, "Documents per RAG batch file")
	scanCmd.Flags().Bool("indent", false, "Pretty-print JSON output")
	scanCmd.Flags().StringSlice("types", nil, "Only export these chunk types")
	scanCmd.Flags().Int("min-tokens", 0, "Drop chunks below this token estimate")
	scanCmd.Flags().Int("max-tokens", 0, "Drop chunks above this token estimate")
	scanCmd.Flags().Bool("exclude-private", false, "Drop private declarations")
	scanCmd.Flags().StringSlice("path", nil, "Only export chunks whose file matches these globs")
	scanCmd.Flags().Bool("dedup", false, "Suppress near-duplicate chunks")
	scanCmd.Flags().Bool("index", false, "Update the search index")
	scanCmd.Flags().Bool("rebuild", false, "Clear the search index before scanning")
	scanCmd.Flags().Int64("max-file-size", 0, "Skip files larger than this many bytes")
}
