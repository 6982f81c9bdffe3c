package chunk

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/parser"
)

// TruncationMarker is appended to content cut at MaxContentChars
const TruncationMarker = "\n// ... [truncated]"

var errChunkLimit = errors.New("chunk limit reached")

// EmitFunc receives chunks as they are produced
type EmitFunc func(*Chunk) error

// FileResult summarizes the chunking of one file
type FileResult struct {
	Chunks          int `json:"chunks"`
	SubChunks       int `json:"sub_chunks"`
	SkippedElements int `json:"skipped_elements"`
	Truncated       int `json:"truncated"`
}

// Chunker turns parsed elements into size-bounded chunks
type Chunker struct {
	cfg    Config
	logger *zap.Logger
}

// NewChunker creates a new chunker. A nil logger discards output.
func NewChunker(cfg Config, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{cfg: cfg, logger: logger}
}

// Config returns the chunker limits
func (c *Chunker) Config() Config {
	return c.cfg
}

// EstimateTokens approximates the token count of text as one token per four
// characters, rounded up
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// fileState holds per-file values while chunking
type fileState struct {
	path   string
	lines  []string
	ctx    Context
	emit   EmitFunc
	result *FileResult
}

// ChunkFile streams the chunks of one parsed file to emit. Elements that
// cannot be chunked are logged and skipped; errors from emit or the context
// abort the file.
func (c *Chunker) ChunkFile(ctx context.Context, analysis *parser.FileAnalysis, lines []string, emit EmitFunc) (*FileResult, error) {
	result := &FileResult{}
	if len(lines) == 0 {
		return result, nil
	}

	st := &fileState{
		path:   analysis.FilePath,
		lines:  lines,
		ctx:    c.buildContext(analysis),
		emit:   emit,
		result: result,
	}

	if len(analysis.Elements) == 0 {
		whole := parser.CodeElement{
			Name:      filepath.Base(analysis.FilePath),
			StartLine: 1,
			EndLine:   len(lines),
		}
		err := c.chunkElement(st, whole, ChunkFile)
		if errors.Is(err, errChunkLimit) {
			return result, nil
		}
		return result, err
	}

	for i, el := range analysis.Elements {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if el.StartLine > len(lines) || el.EndLine < 1 {
			c.logger.Warn("skipping element outside file",
				zap.String("file", st.path),
				zap.String("element", el.QualifiedName()),
				zap.Int("start_line", el.StartLine),
				zap.Int("total_lines", len(lines)))
			result.SkippedElements++
			continue
		}
		el.StartLine = max(el.StartLine, 1)
		el.EndLine = min(max(el.EndLine, el.StartLine), len(lines))

		err := c.chunkElement(st, el, TypeForElement(el.Type))
		if errors.Is(err, errChunkLimit) {
			remaining := len(analysis.Elements) - i
			c.logger.Warn("chunk limit reached",
				zap.String("file", st.path),
				zap.Int("limit", c.cfg.MaxChunksPerFile),
				zap.Int("skipped_elements", remaining))
			result.SkippedElements += remaining
			break
		}
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

func (c *Chunker) buildContext(analysis *parser.FileAnalysis) Context {
	imports := analysis.Imports
	if len(imports) > c.cfg.MaxContextImports {
		imports = imports[:c.cfg.MaxContextImports]
	}
	return Context{
		Package:      analysis.PackageName,
		Imports:      append([]string(nil), imports...),
		TotalImports: len(analysis.Imports),
	}
}

// chunkElement emits one chunk for a small element or a series of
// overlapping sub-chunks for a large one
func (c *Chunker) chunkElement(st *fileState, el parser.CodeElement, typ ChunkType) error {
	if el.LineCount() <= c.cfg.LargeElementLines {
		return c.send(st, c.newChunk(st, el, typ, el.StartLine, el.EndLine))
	}

	ranges := c.cfg.SubChunkRanges(el.StartLine, el.EndLine)
	parentID := GenerateID(st.path, el.StartLine, el.EndLine, el.QualifiedName())
	c.logger.Debug("splitting large element",
		zap.String("file", st.path),
		zap.String("element", el.QualifiedName()),
		zap.Int("lines", el.LineCount()),
		zap.Int("parts", len(ranges)))

	for i, r := range ranges {
		ch := c.newChunk(st, el, ChunkSubChunk, r.Start, r.End)
		ch.ParentID = parentID
		ch.Part = i + 1
		ch.Parts = len(ranges)
		if err := c.send(st, ch); err != nil {
			return err
		}
		st.result.SubChunks++
	}
	return nil
}

func (c *Chunker) send(st *fileState, ch *Chunk) error {
	if st.result.Chunks >= c.cfg.MaxChunksPerFile {
		return errChunkLimit
	}
	if err := st.emit(ch); err != nil {
		return err
	}
	st.result.Chunks++
	if ch.Truncated {
		st.result.Truncated++
	}
	return nil
}

func (c *Chunker) newChunk(st *fileState, el parser.CodeElement, typ ChunkType, start, end int) *Chunk {
	content, truncated := truncate(strings.Join(st.lines[start-1:end], "\n"), c.cfg.MaxContentChars)

	ch := &Chunk{
		FilePath:      st.path,
		ElementName:   el.Name,
		Type:          typ,
		ElementType:   el.Type,
		StartLine:     start,
		EndLine:       end,
		Content:       content,
		Signature:     el.Signature,
		TokenEstimate: EstimateTokens(content),
		Context:       st.ctx,
		IsPrivate:     el.IsPrivate,
		Truncated:     truncated,
		ContentHash:   GenerateContentHash(content),
	}
	switch {
	case el.IsContainer():
		ch.ClassName = el.QualifiedName()
	case el.Type == parser.ElementFunction:
		ch.ClassName = el.Parent
		ch.MethodName = el.Name
	default:
		ch.ClassName = el.Parent
	}
	ch.ID = GenerateID(st.path, start, end, content)
	return ch
}

// truncate cuts s to at most limit characters on a rune boundary and appends
// the truncation marker
func truncate(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker, true
		}
		n++
	}
	return s, false
}
