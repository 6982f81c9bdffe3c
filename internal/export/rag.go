package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
	"github.com/mindweaver/ragchunk/internal/processor"
)

const (
	// DefaultBatchSize is the number of documents per batch file
	DefaultBatchSize = 100
	// ManifestFileName is written once all batches are flushed
	ManifestFileName = "manifest.json"
)

// RAGDocument is a chunk shaped for embedding pipelines
type RAGDocument struct {
	ID       string      `json:"id"`
	Text     string      `json:"text"`
	Metadata RAGMetadata `json:"metadata"`
}

// RAGMetadata carries the fields retrieval systems filter on
type RAGMetadata struct {
	FilePath      string             `json:"file_path"`
	Type          chunk.ChunkType    `json:"type"`
	ElementType   parser.ElementType `json:"element_type,omitempty"`
	ClassName     string             `json:"class_name,omitempty"`
	MethodName    string             `json:"method_name,omitempty"`
	ElementName   string             `json:"element_name,omitempty"`
	Signature     string             `json:"signature,omitempty"`
	Package       string             `json:"package,omitempty"`
	StartLine     int                `json:"start_line"`
	EndLine       int                `json:"end_line"`
	TokenEstimate int                `json:"token_estimate"`
	ParentID      string             `json:"parent_id,omitempty"`
	Part          int                `json:"part,omitempty"`
	Parts         int                `json:"parts,omitempty"`
	IsPrivate     bool               `json:"is_private"`
	Truncated     bool               `json:"truncated,omitempty"`
	ContentHash   string             `json:"content_hash"`
}

// RAGBatch is the content of one batch file
type RAGBatch struct {
	Batch     int           `json:"batch"`
	Count     int           `json:"count"`
	Documents []RAGDocument `json:"documents"`
}

// Manifest describes a completed RAG export
type Manifest struct {
	RunID       string                `json:"run_id"`
	Project     string                `json:"project,omitempty"`
	GeneratedAt time.Time             `json:"generated_at"`
	BatchSize   int                   `json:"batch_size"`
	Batches     int                   `json:"batches"`
	Chunks      int                   `json:"chunks"`
	Files       []string              `json:"files"`
	Statistics  *processor.Statistics `json:"statistics"`
}

// RAGExporter writes chunks as fixed-size batch files of documents. At most
// one batch is held in memory. Batch files from an earlier run into the same
// directory are removed on OnComplete.
type RAGExporter struct {
	dir       string
	batchSize int
	project   string
	runID     string
	pending   []RAGDocument
	files     []string
	done      bool
	stats     *processor.Statistics
}

// NewRAGExporter creates a batch exporter writing into dir
func NewRAGExporter(dir string, batchSize int, project string) *RAGExporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RAGExporter{
		dir:       dir,
		batchSize: batchSize,
		project:   project,
		runID:     uuid.New().String(),
		pending:   make([]RAGDocument, 0, batchSize),
		stats:     processor.NewStatistics(),
	}
}

// RunID returns the identifier recorded in the manifest
func (e *RAGExporter) RunID() string {
	return e.runID
}

// NewRAGDocument converts a chunk into a document whose text starts with a
// short context header
func NewRAGDocument(c *chunk.Chunk) RAGDocument {
	var b strings.Builder
	fmt.Fprintf(&b, "// File: %s\n", c.FilePath)
	if c.Context.Package != "" {
		fmt.Fprintf(&b, "// Package: %s\n", c.Context.Package)
	}
	if name := c.DisplayName(); name != "" {
		kind := string(c.Type)
		if c.Type == chunk.ChunkSubChunk && c.ElementType != "" {
			kind = fmt.Sprintf("%s part %d/%d", c.ElementType, c.Part, c.Parts)
		}
		fmt.Fprintf(&b, "// Element: %s %s\n", kind, name)
	}
	b.WriteString("\n")
	b.WriteString(c.Content)

	return RAGDocument{
		ID:   c.ID,
		Text: b.String(),
		Metadata: RAGMetadata{
			FilePath:      c.FilePath,
			Type:          c.Type,
			ElementType:   c.ElementType,
			ClassName:     c.ClassName,
			MethodName:    c.MethodName,
			ElementName:   c.ElementName,
			Signature:     c.Signature,
			Package:       c.Context.Package,
			StartLine:     c.StartLine,
			EndLine:       c.EndLine,
			TokenEstimate: c.TokenEstimate,
			ParentID:      c.ParentID,
			Part:          c.Part,
			Parts:         c.Parts,
			IsPrivate:     c.IsPrivate,
			Truncated:     c.Truncated,
			ContentHash:   c.ContentHash,
		},
	}
}

// ProcessChunk adds c to the current batch, flushing it when full
func (e *RAGExporter) ProcessChunk(c *chunk.Chunk) error {
	if e.done {
		return fmt.Errorf("rag exporter already completed")
	}
	e.pending = append(e.pending, NewRAGDocument(c))
	e.stats.Record(c)
	if len(e.pending) >= e.batchSize {
		return e.flush()
	}
	return nil
}

// BatchFileName returns the file name of the n-th batch (1-based)
func BatchFileName(n int) string {
	return fmt.Sprintf("rag_batch_%04d.json", n)
}

func (e *RAGExporter) flush() error {
	if len(e.pending) == 0 {
		return nil
	}
	n := len(e.files) + 1
	batch := RAGBatch{Batch: n, Count: len(e.pending), Documents: e.pending}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode batch %d: %w", n, err)
	}
	name := BatchFileName(n)
	if err := writeFileAtomic(filepath.Join(e.dir, name), data); err != nil {
		return err
	}
	e.files = append(e.files, name)
	e.pending = e.pending[:0]
	return nil
}

// removeStaleBatches deletes batch files in dir left by an earlier run
func (e *RAGExporter) removeStaleBatches() error {
	existing, err := filepath.Glob(filepath.Join(e.dir, "rag_batch_*.json"))
	if err != nil {
		return fmt.Errorf("failed to list batch files: %w", err)
	}
	written := make(map[string]bool, len(e.files))
	for _, name := range e.files {
		written[name] = true
	}
	for _, path := range existing {
		if written[filepath.Base(path)] {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale batch %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// OnFileComplete records the file
func (e *RAGExporter) OnFileComplete(summary processor.FileSummary) error {
	e.stats.RecordFile(summary)
	return nil
}

// OnComplete flushes the partial batch and writes the manifest
func (e *RAGExporter) OnComplete() error {
	if e.done {
		return nil
	}
	e.done = true
	if err := e.flush(); err != nil {
		return err
	}
	if err := e.removeStaleBatches(); err != nil {
		return err
	}

	manifest := Manifest{
		RunID:       e.runID,
		Project:     e.project,
		GeneratedAt: time.Now().UTC(),
		BatchSize:   e.batchSize,
		Batches:     len(e.files),
		Chunks:      e.stats.TotalChunks,
		Files:       append([]string{}, e.files...),
		Statistics:  e.stats,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(e.dir, ManifestFileName), data)
}

// Statistics returns counters over exported chunks
func (e *RAGExporter) Statistics() *processor.Statistics {
	return e.stats
}
