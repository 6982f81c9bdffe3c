package export

import (
	"encoding/json"
	"fmt"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/processor"
)

// JSONExporter streams chunks into a single JSON array. The file appears at
// its destination only once OnComplete succeeds, and is then always a valid
// JSON document.
type JSONExporter struct {
	path   string
	indent bool
	file   *atomicFile
	count  int
	done   bool
	stats  *processor.Statistics
}

// NewJSONExporter creates a JSON array exporter writing to path
func NewJSONExporter(path string, indent bool) *JSONExporter {
	return &JSONExporter{
		path:   path,
		indent: indent,
		stats:  processor.NewStatistics(),
	}
}

// Path returns the destination file
func (e *JSONExporter) Path() string {
	return e.path
}

func (e *JSONExporter) open() error {
	if e.file != nil {
		return nil
	}
	f, err := createAtomic(e.path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("["); err != nil {
		f.Abort()
		return err
	}
	e.file = f
	return nil
}

func (e *JSONExporter) marshal(c *chunk.Chunk) ([]byte, error) {
	if e.indent {
		return json.MarshalIndent(c, "  ", "  ")
	}
	return json.Marshal(c)
}

// ProcessChunk appends c to the array
func (e *JSONExporter) ProcessChunk(c *chunk.Chunk) error {
	if e.done {
		return fmt.Errorf("json exporter already completed")
	}
	if err := e.open(); err != nil {
		return err
	}

	data, err := e.marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode chunk %s: %w", c.ID, err)
	}
	sep := "\n  "
	if e.count > 0 {
		sep = ",\n  "
	}
	if _, err := e.file.WriteString(sep); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.path, err)
	}
	if _, err := e.file.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.path, err)
	}

	e.count++
	e.stats.Record(c)
	return nil
}

// OnFileComplete records the file
func (e *JSONExporter) OnFileComplete(summary processor.FileSummary) error {
	e.stats.RecordFile(summary)
	return nil
}

// OnComplete closes the array and moves the file into place
func (e *JSONExporter) OnComplete() error {
	if e.done {
		return nil
	}
	if err := e.open(); err != nil {
		return err
	}
	e.done = true

	closing := "]\n"
	if e.count > 0 {
		closing = "\n]\n"
	}
	if _, err := e.file.WriteString(closing); err != nil {
		e.file.Abort()
		return fmt.Errorf("failed to write %s: %w", e.path, err)
	}
	return e.file.Commit()
}

// Statistics returns counters over exported chunks
func (e *JSONExporter) Statistics() *processor.Statistics {
	return e.stats
}
