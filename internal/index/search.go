package index

import (
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// DefaultSearchLimit is used when a search does not set a limit
const DefaultSearchLimit = 20

// SearchIndex manages the bleve full-text index over chunks
type SearchIndex struct {
	index bleve.Index
	path  string
	mu    sync.RWMutex
}

// ChunkDocument is the indexed form of a chunk
type ChunkDocument struct {
	FilePath  string `json:"file_path"`
	Type      string `json:"type"`
	Package   string `json:"package"`
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Signature string `json:"signature"`
	Content   string `json:"content"`
}

// SearchOptions narrows a search
type SearchOptions struct {
	Limit int
	// Types restricts hits to the given chunk types
	Types []chunk.ChunkType
	// PathPrefix restricts hits to files below a root-relative prefix
	PathPrefix string
	// Highlight names the bleve highlighter for snippets, "html" by default
	Highlight string
}

// Hit is a single search match
type Hit struct {
	ID       string          `json:"id"`
	Score    float64         `json:"score"`
	FilePath string          `json:"file_path"`
	Type     chunk.ChunkType `json:"type"`
	Name     string          `json:"name"`
	Snippet  string          `json:"snippet,omitempty"`
}

// OpenSearchIndex creates or opens a search index at path
func OpenSearchIndex(path string) (*SearchIndex, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else if err != nil {
		// Unreadable index, rebuild from scratch
		_ = os.RemoveAll(path)
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	}

	return &SearchIndex{
		index: index,
		path:  path,
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en"

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = "standard"

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = "keyword"

	chunkMapping := bleve.NewDocumentMapping()
	chunkMapping.AddFieldMappingsAt("file_path", keywordFieldMapping)
	chunkMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	chunkMapping.AddFieldMappingsAt("package", keywordFieldMapping)
	chunkMapping.AddFieldMappingsAt("name", nameFieldMapping)
	chunkMapping.AddFieldMappingsAt("class_name", nameFieldMapping)
	chunkMapping.AddFieldMappingsAt("signature", nameFieldMapping)
	chunkMapping.AddFieldMappingsAt("content", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = chunkMapping
	indexMapping.DefaultAnalyzer = "en"

	return indexMapping
}

func newChunkDocument(c *chunk.Chunk) ChunkDocument {
	return ChunkDocument{
		FilePath:  c.FilePath,
		Type:      string(c.Type),
		Package:   c.Context.Package,
		Name:      c.DisplayName(),
		ClassName: c.ClassName,
		Signature: c.Signature,
		Content:   c.Content,
	}
}

// Replace removes the given IDs and indexes chunks in a single batch
func (s *SearchIndex) Replace(remove []string, chunks []*chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for _, id := range remove {
		batch.Delete(id)
	}
	for _, c := range chunks {
		if err := batch.Index(c.ID, newChunkDocument(c)); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	return s.index.Batch(batch)
}

// Search performs a fuzzy full-text search
func (s *SearchIndex) Search(text string, opts SearchOptions) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetFuzziness(1)

	queries := []query.Query{matchQuery}
	if len(opts.Types) > 0 {
		typeQueries := make([]query.Query, 0, len(opts.Types))
		for _, t := range opts.Types {
			tq := bleve.NewTermQuery(string(t))
			tq.SetField("type")
			typeQueries = append(typeQueries, tq)
		}
		queries = append(queries, bleve.NewDisjunctionQuery(typeQueries...))
	}
	if opts.PathPrefix != "" {
		pq := bleve.NewPrefixQuery(opts.PathPrefix)
		pq.SetField("file_path")
		queries = append(queries, pq)
	}

	var q query.Query = matchQuery
	if len(queries) > 1 {
		q = bleve.NewConjunctionQuery(queries...)
	}

	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"file_path", "type", "name"}
	searchRequest.Highlight = bleve.NewHighlight()
	if opts.Highlight != "" {
		searchRequest.Highlight = bleve.NewHighlightWithStyle(opts.Highlight)
	}
	searchRequest.Highlight.AddField("content")
	searchRequest.Highlight.AddField("signature")

	searchResult, err := s.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(searchResult.Hits))
	for _, match := range searchResult.Hits {
		hit := Hit{
			ID:    match.ID,
			Score: match.Score,
		}
		if v, ok := match.Fields["file_path"].(string); ok {
			hit.FilePath = v
		}
		if v, ok := match.Fields["type"].(string); ok {
			hit.Type = chunk.ChunkType(v)
		}
		if v, ok := match.Fields["name"].(string); ok {
			hit.Name = v
		}

		for _, field := range []string{"content", "signature"} {
			if fragments := match.Fragments[field]; len(fragments) > 0 {
				hit.Snippet = fragments[0]
				break
			}
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// DocCount returns the number of documents in the index
func (s *SearchIndex) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.DocCount()
}

// Clear drops every document by recreating the index
func (s *SearchIndex) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("failed to close search index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("failed to remove search index: %w", err)
	}
	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create search index: %w", err)
	}
	s.index = index
	return nil
}

// Close closes the search index
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index.Close()
}
