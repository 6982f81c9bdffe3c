package export

import (
	"encoding/json"
	"fmt"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/processor"
)

// JSONLExporter writes one JSON object per line
type JSONLExporter struct {
	path  string
	file  *atomicFile
	enc   *json.Encoder
	done  bool
	stats *processor.Statistics
}

// NewJSONLExporter creates a JSON Lines exporter writing to path
func NewJSONLExporter(path string) *JSONLExporter {
	return &JSONLExporter{path: path, stats: processor.NewStatistics()}
}

func (e *JSONLExporter) open() error {
	if e.file != nil {
		return nil
	}
	f, err := createAtomic(e.path)
	if err != nil {
		return err
	}
	e.file = f
	e.enc = json.NewEncoder(f)
	e.enc.SetEscapeHTML(false)
	return nil
}

// ProcessChunk writes c as one line
func (e *JSONLExporter) ProcessChunk(c *chunk.Chunk) error {
	if e.done {
		return fmt.Errorf("jsonl exporter already completed")
	}
	if err := e.open(); err != nil {
		return err
	}
	if err := e.enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", c.ID, err)
	}
	e.stats.Record(c)
	return nil
}

// OnFileComplete records the file
func (e *JSONLExporter) OnFileComplete(summary processor.FileSummary) error {
	e.stats.RecordFile(summary)
	return nil
}

// OnComplete moves the file into place
func (e *JSONLExporter) OnComplete() error {
	if e.done {
		return nil
	}
	if err := e.open(); err != nil {
		return err
	}
	e.done = true
	return e.file.Commit()
}

// Statistics returns counters over exported chunks
func (e *JSONLExporter) Statistics() *processor.Statistics {
	return e.stats
}
