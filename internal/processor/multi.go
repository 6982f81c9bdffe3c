package processor

import (
	"golang.org/x/sync/errgroup"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// Multi fans every call out to several processors. Every target is called
// even when an earlier one fails; the first error is returned.
type Multi struct {
	targets []Processor
	stats   *Statistics
}

// NewMulti creates a fan-out processor
func NewMulti(targets ...Processor) *Multi {
	return &Multi{targets: targets, stats: NewStatistics()}
}

// Targets returns the wrapped processors
func (m *Multi) Targets() []Processor {
	return m.targets
}

// ProcessChunk delivers c to every target
func (m *Multi) ProcessChunk(c *chunk.Chunk) error {
	m.stats.Record(c)
	var first error
	for _, t := range m.targets {
		if err := t.ProcessChunk(c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OnFileComplete delivers the summary to every target
func (m *Multi) OnFileComplete(summary FileSummary) error {
	m.stats.RecordFile(summary)
	var first error
	for _, t := range m.targets {
		if err := t.OnFileComplete(summary); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OnComplete finalizes all targets concurrently
func (m *Multi) OnComplete() error {
	var g errgroup.Group
	for _, t := range m.targets {
		g.Go(t.OnComplete)
	}
	return g.Wait()
}

// Statistics returns counters over every chunk seen by the fan-out
func (m *Multi) Statistics() *Statistics {
	return m.stats
}
