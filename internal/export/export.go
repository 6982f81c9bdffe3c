// Package export provides streaming processors that write chunks to disk.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mindweaver/ragchunk/internal/processor"
)

// ErrUnknownFormat is returned by New for unsupported formats
var ErrUnknownFormat = errors.New("unknown export format")

// Output names inside Options.Dir
const (
	JSONFileName   = "chunks.json"
	JSONLFileName  = "chunks.jsonl"
	RAGDirName     = "rag"
	ReportFileName = "report.md"
)

// ValidFormats contains all supported output formats
var ValidFormats = []string{"json", "jsonl", "rag", "report", "analytics", "console"}

// Options configures the exporters created by New
type Options struct {
	// Dir is the output directory
	Dir string
	// Indent pretty-prints JSON output
	Indent bool
	// BatchSize is the number of documents per RAG batch file
	BatchSize   int
	ProjectName string
	// Writer receives console output, defaults to stdout
	Writer  io.Writer
	Verbose bool
}

// New returns a processor for the given format
func New(format string, opts Options) (processor.Processor, error) {
	switch format {
	case "json":
		return NewJSONExporter(filepath.Join(opts.Dir, JSONFileName), opts.Indent), nil
	case "jsonl":
		return NewJSONLExporter(filepath.Join(opts.Dir, JSONLFileName)), nil
	case "rag":
		return NewRAGExporter(filepath.Join(opts.Dir, RAGDirName), opts.BatchSize, opts.ProjectName), nil
	case "report":
		return NewReportExporter(filepath.Join(opts.Dir, ReportFileName), opts.ProjectName), nil
	case "analytics":
		return processor.NewAnalytics(), nil
	case "console":
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		return processor.NewConsole(w, opts.Verbose), nil
	default:
		return nil, fmt.Errorf("%w: %s (valid: %v)", ErrUnknownFormat, format, ValidFormats)
	}
}

// IsValidFormat reports whether format is supported by New
func IsValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
