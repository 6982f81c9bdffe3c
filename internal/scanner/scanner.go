// Package scanner walks a source tree and streams the chunks of every
// matching file to a processor.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
	"github.com/mindweaver/ragchunk/internal/processor"
)

// ErrFileTooLarge is returned by ScanFile for files above MaxFileSize
var ErrFileTooLarge = errors.New("file exceeds size limit")

// ErrOutsideBase is returned for paths that are not below the scan base
var ErrOutsideBase = errors.New("path is outside the scan base")

// Options controls which files are scanned
type Options struct {
	Extensions    []string `yaml:"extensions" json:"extensions"`
	ExcludeDirs   []string `yaml:"exclude_dirs" json:"exclude_dirs"`
	ExcludeHidden bool     `yaml:"exclude_hidden" json:"exclude_hidden"`
	// MaxFileSize is in bytes
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// DefaultOptions returns the default scan options for Kotlin sources
func DefaultOptions() Options {
	return Options{
		Extensions:    []string{".kt", ".kts"},
		ExcludeDirs:   []string{"build", ".git", ".gradle", ".idea", "out", "node_modules", "target"},
		ExcludeHidden: true,
		MaxFileSize:   1 << 20,
	}
}

// Result summarizes a scan
type Result struct {
	ScannedFiles int           `json:"scanned_files"`
	SkippedFiles int           `json:"skipped_files"`
	ErrorFiles   int           `json:"error_files"`
	TotalChunks  int           `json:"total_chunks"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
}

// Scanner feeds source files through the parser and chunker
type Scanner struct {
	parser   *parser.Parser
	chunker  *chunk.Chunker
	opts     Options
	logger   *zap.Logger
	exts     map[string]bool
	excluded map[string]bool
}

// New creates a scanner. A nil logger discards output.
func New(p *parser.Parser, c *chunk.Chunker, opts Options, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		parser:   p,
		chunker:  c,
		opts:     opts,
		logger:   logger,
		exts:     make(map[string]bool, len(opts.Extensions)),
		excluded: make(map[string]bool, len(opts.ExcludeDirs)),
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.exts[ext] = true
	}
	for _, dir := range opts.ExcludeDirs {
		s.excluded[dir] = true
	}
	return s
}

// Options returns the scan options
func (s *Scanner) Options() Options {
	return s.opts
}

func (s *Scanner) isExcludedDir(name string) bool {
	if s.excluded[name] {
		return true
	}
	return s.opts.ExcludeHidden && strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (s *Scanner) hasExtension(name string) bool {
	return s.exts[strings.ToLower(filepath.Ext(name))]
}

// ExcludesDir reports whether any component of a root-relative directory
// path is excluded
func (s *Scanner) ExcludesDir(rel string) bool {
	for _, dir := range strings.Split(filepath.ToSlash(rel), "/") {
		if s.isExcludedDir(dir) {
			return true
		}
	}
	return false
}

// ShouldScan reports whether a root-relative file path passes the extension
// and directory filters
func (s *Scanner) ShouldScan(rel string) bool {
	dir, name := filepath.Split(filepath.ToSlash(rel))
	if dir != "" && s.ExcludesDir(strings.TrimSuffix(dir, "/")) {
		return false
	}
	return s.hasExtension(name)
}

// Scan walks root in lexical order. Every matching file below the size limit
// is chunked into proc and reported through proc.OnFileComplete exactly once.
// proc.OnComplete is always called at the end and its error returned.
func (s *Scanner) Scan(ctx context.Context, root string, proc processor.Processor) (*Result, error) {
	return s.ScanDir(ctx, root, root, proc)
}

// ScanDir is Scan over dir, a directory inside base. Chunk and file paths are
// recorded relative to base, so scans of different subdirectories of one
// project never produce the same path for different files.
func (s *Scanner) ScanDir(ctx context.Context, base, dir string, proc processor.Processor) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var walkErr error
	if _, err := RelPath(base, dir); err != nil {
		walkErr = err
	} else {
		walkErr = s.walk(ctx, base, dir, proc, result)
	}
	completeErr := proc.OnComplete()
	if completeErr != nil {
		completeErr = fmt.Errorf("failed to complete processing: %w", completeErr)
	}

	result.Duration = time.Since(start)
	s.logger.Info("scan complete",
		zap.String("root", dir),
		zap.Int("scanned", result.ScannedFiles),
		zap.Int("skipped", result.SkippedFiles),
		zap.Int("errors", result.ErrorFiles),
		zap.Int("chunks", result.TotalChunks),
		zap.Duration("duration", result.Duration))

	return result, errors.Join(walkErr, completeErr)
}

// RelPath returns path relative to base in slash form. It fails with
// ErrOutsideBase when path is not base or below it.
func RelPath(base, path string) (string, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	return filepath.ToSlash(rel), nil
}

func (s *Scanner) walk(ctx context.Context, base, root string, proc processor.Processor, result *Result) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to access %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && s.isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.hasExtension(d.Name()) {
			return nil
		}

		rel, err := RelPath(base, path)
		if err != nil {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping file", zap.String("file", rel), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			return nil
		}
		if s.opts.MaxFileSize > 0 && fi.Size() > s.opts.MaxFileSize {
			s.logger.Debug("skipping large file",
				zap.String("file", rel),
				zap.Int64("size", fi.Size()),
				zap.Int64("limit", s.opts.MaxFileSize))
			result.SkippedFiles++
			return nil
		}

		return s.processFile(ctx, rel, path, proc, result)
	})
}

// ScanFile chunks a single file below root into proc and reports it through
// proc.OnFileComplete. It does not call proc.OnComplete.
func (s *Scanner) ScanFile(ctx context.Context, root, path string, proc processor.Processor) (*Result, error) {
	start := time.Now()
	result := &Result{}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, path)
	}
	rel, err := RelPath(root, abs)
	if err != nil {
		return result, err
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return result, fmt.Errorf("failed to access %s: %w", rel, err)
	}
	if s.opts.MaxFileSize > 0 && fi.Size() > s.opts.MaxFileSize {
		result.SkippedFiles++
		return result, fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, rel, fi.Size())
	}

	err = s.processFile(ctx, rel, abs, proc, result)
	result.Duration = time.Since(start)
	return result, err
}

// processFile chunks one file and reports it. Read, parse and chunk failures,
// and errors returned by proc.ProcessChunk, fail only this file: it is still
// reported once through OnFileComplete with summary.Err set, and recorded on
// the result. Only OnFileComplete and context errors are returned.
func (s *Scanner) processFile(ctx context.Context, rel, abs string, proc processor.Processor, result *Result) error {
	result.ScannedFiles++

	lines, fileResult, err := s.chunkFile(ctx, rel, abs, proc)
	summary := processor.FileSummary{Path: rel, Lines: lines}
	if fileResult != nil {
		summary.Chunks = fileResult.Chunks
		result.TotalChunks += fileResult.Chunks
		if fileResult.SkippedElements > 0 {
			s.logger.Debug("elements skipped",
				zap.String("file", rel),
				zap.Int("skipped", fileResult.SkippedElements))
		}
	}
	if err != nil {
		summary.Err = err
		result.ErrorFiles++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
		s.logger.Warn("failed to process file", zap.String("file", rel), zap.Error(err))
	}

	if err := proc.OnFileComplete(summary); err != nil {
		return fmt.Errorf("processor failed on %s: %w", rel, err)
	}
	return ctx.Err()
}

func (s *Scanner) chunkFile(ctx context.Context, rel, abs string, proc processor.Processor) (lines int, res *chunk.FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while chunking: %v", r)
		}
	}()

	content, err := os.ReadFile(abs)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read file: %w", err)
	}
	src := parser.SplitLines(string(content))
	analysis := s.parser.Parse(rel, src)

	s.logger.Debug("parsed file",
		zap.String("file", rel),
		zap.Int("lines", len(src)),
		zap.Int("elements", len(analysis.Elements)))

	res, err = s.chunker.ChunkFile(ctx, analysis, src, proc.ProcessChunk)
	return len(src), res, err
}
