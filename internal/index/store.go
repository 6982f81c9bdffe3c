package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
	"github.com/mindweaver/ragchunk/internal/processor"
)

// ErrNotFound is returned when a chunk ID is not in the store
var ErrNotFound = errors.New("chunk not found")

// Store persists chunks and per-file status in SQLite
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore creates or opens the chunk database at path
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{
		db:   db,
		path: path,
	}

	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// init creates the database schema
func (s *Store) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			file TEXT NOT NULL,
			class_name TEXT NOT NULL DEFAULT '',
			method_name TEXT NOT NULL DEFAULT '',
			element_name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			element_type TEXT NOT NULL DEFAULT '',
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			content TEXT NOT NULL,
			signature TEXT NOT NULL DEFAULT '',
			token_estimate INTEGER NOT NULL,
			package TEXT NOT NULL DEFAULT '',
			imports TEXT NOT NULL DEFAULT 'null',
			total_imports INTEGER NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			part INTEGER NOT NULL DEFAULT 0,
			parts INTEGER NOT NULL DEFAULT 0,
			is_private INTEGER NOT NULL DEFAULT 0,
			truncated INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			lines INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			indexed_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file);
		CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(type);
		CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(parent_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const chunkColumns = `id, file, class_name, method_name, element_name, type, element_type,
	start_line, end_line, content, signature, token_estimate, package, imports,
	total_imports, parent_id, part, parts, is_private, truncated, content_hash`

// ReplaceFile stores the chunks of a successfully processed file, replacing
// whatever was stored for it before. It returns the IDs of removed chunks.
func (s *Store) ReplaceFile(summary processor.FileSummary, chunks []*chunk.Chunk) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := queryIDs(tx, "SELECT id FROM chunks WHERE file = ?", summary.Path)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file = ?", summary.Path); err != nil {
		return nil, fmt.Errorf("failed to delete chunks of %s: %w", summary.Path, err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO chunks (` + chunkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	kept := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		imports, err := json.Marshal(c.Context.Imports)
		if err != nil {
			return nil, fmt.Errorf("failed to encode imports: %w", err)
		}
		_, err = stmt.Exec(
			c.ID,
			c.FilePath,
			c.ClassName,
			c.MethodName,
			c.ElementName,
			string(c.Type),
			string(c.ElementType),
			c.StartLine,
			c.EndLine,
			c.Content,
			c.Signature,
			c.TokenEstimate,
			c.Context.Package,
			string(imports),
			c.Context.TotalImports,
			c.ParentID,
			c.Part,
			c.Parts,
			c.IsPrivate,
			c.Truncated,
			c.ContentHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
		kept[c.ID] = true
	}

	if err := upsertFile(tx, summary, len(chunks)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	var removed []string
	for _, id := range old {
		if !kept[id] {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// MarkFailed records a failed file without touching its stored chunks
func (s *Store) MarkFailed(summary processor.FileSummary) error {
	_, err := s.db.Exec(`
		INSERT INTO files (path, lines, chunks, error, indexed_at)
		VALUES (?, ?, (SELECT COUNT(*) FROM chunks WHERE file = ?), ?, ?)
		ON CONFLICT(path) DO UPDATE SET error = excluded.error, indexed_at = excluded.indexed_at
	`, summary.Path, summary.Lines, summary.Path, summary.Err.Error(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record file %s: %w", summary.Path, err)
	}
	return nil
}

func upsertFile(tx *sql.Tx, summary processor.FileSummary, chunks int) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO files (path, lines, chunks, error, indexed_at)
		VALUES (?, ?, ?, '', ?)
	`, summary.Path, summary.Lines, chunks, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record file %s: %w", summary.Path, err)
	}
	return nil
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryIDs(q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get retrieves a chunk by ID
func (s *Store) Get(id string) (*chunk.Chunk, error) {
	row := s.db.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, err
}

// GetByFile retrieves all chunks for a file
func (s *Store) GetByFile(file string) ([]*chunk.Chunk, error) {
	rows, err := s.db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE file = ? ORDER BY start_line, end_line`, file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

// DeleteByFile removes all chunks and the status row for a file, returning
// the removed chunk IDs
func (s *Store) DeleteByFile(file string) ([]string, error) {
	ids, err := queryIDs(s.db, "SELECT id FROM chunks WHERE file = ?", file)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec("DELETE FROM chunks WHERE file = ?", file); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", file); err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the total number of chunks
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// Files returns all indexed file paths
func (s *Store) Files() ([]string, error) {
	return queryIDs(s.db, "SELECT path FROM files ORDER BY path")
}

// Clear removes all data
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM chunks"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM files")
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreStats contains statistics about the store
type StoreStats struct {
	TotalChunks int                     `json:"total_chunks"`
	TotalFiles  int                     `json:"total_files"`
	FailedFiles int                     `json:"failed_files"`
	TotalTokens int                     `json:"total_tokens"`
	TypeCounts  map[chunk.ChunkType]int `json:"type_counts"`
	LastIndexed string                  `json:"last_indexed,omitempty"`
}

// Stats returns statistics about the store
func (s *Store) Stats() (*StoreStats, error) {
	stats := &StoreStats{
		TypeCounts: make(map[chunk.ChunkType]int),
	}

	if err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(token_estimate), 0) FROM chunks").Scan(&stats.TotalChunks, &stats.TotalTokens); err != nil {
		return nil, err
	}

	var last sql.NullString
	if err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(error != ''), 0), MAX(indexed_at) FROM files").Scan(&stats.TotalFiles, &stats.FailedFiles, &last); err != nil {
		return nil, err
	}
	stats.LastIndexed = last.String

	rows, err := s.db.Query("SELECT type, COUNT(*) FROM chunks GROUP BY type")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var t string
		var count int
		if err := rows.Scan(&t, &count); err != nil {
			return nil, err
		}
		stats.TypeCounts[chunk.ChunkType(t)] = count
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk scans a single row into a chunk
func scanChunk(row rowScanner) (*chunk.Chunk, error) {
	var c chunk.Chunk
	var chunkType, elementType, imports string

	err := row.Scan(
		&c.ID,
		&c.FilePath,
		&c.ClassName,
		&c.MethodName,
		&c.ElementName,
		&chunkType,
		&elementType,
		&c.StartLine,
		&c.EndLine,
		&c.Content,
		&c.Signature,
		&c.TokenEstimate,
		&c.Context.Package,
		&imports,
		&c.Context.TotalImports,
		&c.ParentID,
		&c.Part,
		&c.Parts,
		&c.IsPrivate,
		&c.Truncated,
		&c.ContentHash,
	)
	if err != nil {
		return nil, err
	}

	c.Type = chunk.ChunkType(chunkType)
	c.ElementType = parser.ElementType(elementType)
	if err := json.Unmarshal([]byte(imports), &c.Context.Imports); err != nil {
		return nil, fmt.Errorf("failed to decode imports of %s: %w", c.ID, err)
	}
	return &c, nil
}
