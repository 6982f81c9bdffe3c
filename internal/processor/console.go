package processor

import (
	"fmt"
	"io"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// Console prints a line per file, optionally a line per chunk, and a final
// summary
type Console struct {
	w       io.Writer
	verbose bool
	stats   *Statistics
}

// NewConsole creates a console reporter writing to w
func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{w: w, verbose: verbose, stats: NewStatistics()}
}

// ProcessChunk records the chunk and prints it in verbose mode
func (c *Console) ProcessChunk(ch *chunk.Chunk) error {
	c.stats.Record(ch)
	if c.verbose {
		fmt.Fprintf(c.w, "    %-10s %s [%d-%d] ~%d tokens\n", ch.Type, ch.DisplayName(), ch.StartLine, ch.EndLine, ch.TokenEstimate)
	}
	return nil
}

// OnFileComplete prints the file result
func (c *Console) OnFileComplete(summary FileSummary) error {
	c.stats.RecordFile(summary)
	if summary.Failed() {
		fmt.Fprintf(c.w, "  ✗ %s: %v\n", summary.Path, summary.Err)
		return nil
	}
	fmt.Fprintf(c.w, "  %s: %d chunks (%d lines)\n", summary.Path, summary.Chunks, summary.Lines)
	return nil
}

// OnComplete prints the summary
func (c *Console) OnComplete() error {
	s := c.stats
	fmt.Fprintf(c.w, "\nFiles:  %d (%d failed)\n", s.TotalFiles, s.FailedFiles)
	fmt.Fprintf(c.w, "Chunks: %d (%d sub-chunks, %d truncated)\n", s.TotalChunks, s.SubChunks, s.TruncatedChunks)
	fmt.Fprintf(c.w, "Tokens: %d (avg %.1f, min %d, max %d)\n", s.TotalTokens, s.AverageTokens(), s.MinTokens, s.MaxTokens)
	for _, tc := range s.SortedTypes() {
		fmt.Fprintf(c.w, "  %-10s %d\n", tc.Type, tc.Count)
	}
	return nil
}

// Statistics returns the collected counters
func (c *Console) Statistics() *Statistics {
	return c.stats
}
