// Package processor defines the streaming consumers that receive chunks from
// the scanner, and the built-in implementations for analytics, filtering,
// fan-out, console reporting and de-duplication.
package processor

import "github.com/mindweaver/ragchunk/internal/chunk"

// Processor consumes chunks as they are produced. Implementations must not
// retain the full chunk set in memory.
type Processor interface {
	// ProcessChunk handles one chunk
	ProcessChunk(c *chunk.Chunk) error
	// OnFileComplete is called once for every scanned file, after its chunks
	OnFileComplete(summary FileSummary) error
	// OnComplete is called once when the scan is finished
	OnComplete() error
	// Statistics returns the counters collected so far
	Statistics() *Statistics
}

// FileSummary describes a file once all of its chunks have been delivered
type FileSummary struct {
	Path   string `json:"path"`
	Lines  int    `json:"lines"`
	Chunks int    `json:"chunks"`
	// Err is set when the file could not be parsed or chunked
	Err error `json:"-"`
}

// Failed reports whether the file failed
func (s FileSummary) Failed() bool {
	return s.Err != nil
}
