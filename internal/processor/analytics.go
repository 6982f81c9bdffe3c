package processor

import "github.com/mindweaver/ragchunk/internal/chunk"

// Analytics only collects statistics
type Analytics struct {
	stats *Statistics
}

// NewAnalytics creates a statistics-only processor
func NewAnalytics() *Analytics {
	return &Analytics{stats: NewStatistics()}
}

// ProcessChunk records the chunk
func (a *Analytics) ProcessChunk(c *chunk.Chunk) error {
	a.stats.Record(c)
	return nil
}

// OnFileComplete records the file
func (a *Analytics) OnFileComplete(summary FileSummary) error {
	a.stats.RecordFile(summary)
	return nil
}

// OnComplete does nothing
func (a *Analytics) OnComplete() error {
	return nil
}

// Statistics returns the collected counters
func (a *Analytics) Statistics() *Statistics {
	return a.stats
}
