// Package index keeps chunks in a local SQLite store with a bleve full-text
// index alongside, so they can be searched and retrieved after a scan.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/processor"
)

const (
	// StoreFileName is the SQLite database inside the index directory
	StoreFileName = "chunks.db"
	// SearchDirName is the bleve index inside the index directory
	SearchDirName = "search.bleve"
)

// Index is a processor that persists chunks and makes them searchable.
// Chunks are buffered per file and committed in OnFileComplete, so a file
// that fails part way keeps whatever was indexed for it before.
type Index struct {
	dir    string
	store  *Store
	search *SearchIndex
	logger *zap.Logger
	stats  *processor.Statistics

	mu      sync.Mutex
	pending []*chunk.Chunk
}

// Result is a search hit together with its stored chunk
type Result struct {
	Hit
	Chunk *chunk.Chunk `json:"chunk,omitempty"`
}

// Status describes the contents of an index
type Status struct {
	Dir       string `json:"dir"`
	Documents uint64 `json:"documents"`
	*StoreStats
}

// Open creates or opens the index under dir. A nil logger discards output.
func Open(dir string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	store, err := OpenStore(filepath.Join(dir, StoreFileName))
	if err != nil {
		return nil, err
	}
	search, err := OpenSearchIndex(filepath.Join(dir, SearchDirName))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Index{
		dir:    dir,
		store:  store,
		search: search,
		logger: logger,
		stats:  processor.NewStatistics(),
	}, nil
}

// Dir returns the index directory
func (ix *Index) Dir() string {
	return ix.dir
}

// Store returns the underlying chunk store
func (ix *Index) Store() *Store {
	return ix.store
}

// ProcessChunk buffers a chunk until its file completes
func (ix *Index) ProcessChunk(c *chunk.Chunk) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.pending = append(ix.pending, c)
	ix.stats.Record(c)
	return nil
}

// OnFileComplete commits the buffered chunks of a file, replacing what was
// stored for it. Failed files only have their status recorded.
func (ix *Index) OnFileComplete(summary processor.FileSummary) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.stats.RecordFile(summary)
	chunks := ix.pending
	ix.pending = nil

	if summary.Failed() {
		ix.logger.Debug("keeping previous index entries for failed file",
			zap.String("file", summary.Path),
			zap.Int("discarded", len(chunks)))
		return ix.store.MarkFailed(summary)
	}

	removed, err := ix.store.ReplaceFile(summary, chunks)
	if err != nil {
		return err
	}
	if err := ix.search.Replace(removed, chunks); err != nil {
		return err
	}

	ix.logger.Debug("indexed file",
		zap.String("file", summary.Path),
		zap.Int("chunks", len(chunks)),
		zap.Int("removed", len(removed)))
	return nil
}

// OnComplete is a no-op; every file is committed as it completes
func (ix *Index) OnComplete() error {
	return nil
}

// Statistics returns the statistics of chunks seen by this index instance
func (ix *Index) Statistics() *processor.Statistics {
	return ix.stats
}

// Remove deletes every chunk of a root-relative file
func (ix *Index) Remove(file string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids, err := ix.store.DeleteByFile(file)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", file, err)
	}
	if err := ix.search.Replace(ids, nil); err != nil {
		return err
	}
	ix.logger.Debug("removed file from index", zap.String("file", file), zap.Int("chunks", len(ids)))
	return nil
}

// Search runs a full-text search and attaches the stored chunk to each hit.
// Hits whose chunk has disappeared from the store are dropped.
func (ix *Index) Search(text string, opts SearchOptions) ([]Result, error) {
	hits, err := ix.search.Search(text, opts)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		c, err := ix.store.Get(hit.ID)
		if err != nil {
			ix.logger.Warn("search hit missing from store", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		results = append(results, Result{Hit: hit, Chunk: c})
	}
	return results, nil
}

// Get retrieves a chunk by ID
func (ix *Index) Get(id string) (*chunk.Chunk, error) {
	return ix.store.Get(id)
}

// Status reports the store statistics and the search document count
func (ix *Index) Status() (*Status, error) {
	stats, err := ix.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}
	docs, err := ix.search.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	return &Status{Dir: ix.dir, Documents: docs, StoreStats: stats}, nil
}

// Clear removes every chunk from the store and the search index
func (ix *Index) Clear() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.pending = nil
	if err := ix.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return ix.search.Clear()
}

// Close closes the store and the search index
func (ix *Index) Close() error {
	searchErr := ix.search.Close()
	if err := ix.store.Close(); err != nil {
		return err
	}
	return searchErr
}
