package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/index"
	"github.com/mindweaver/ragchunk/internal/scanner"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeChunkNotFound      = -32003 // No chunk with the requested ID
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

const maxSearchLimit = 100

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// searchResult is the wire form of a search hit
type searchResult struct {
	ID        string          `json:"id"`
	Score     float64         `json:"score"`
	FilePath  string          `json:"file_path"`
	Type      chunk.ChunkType `json:"type"`
	Name      string          `json:"name"`
	StartLine int             `json:"start_line"`
	EndLine   int             `json:"end_line"`
	Signature string          `json:"signature,omitempty"`
	Snippet   string          `json:"snippet,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// handleSearchChunks handles the search_chunks tool invocation
func (s *Server) handleSearchChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	opts := index.SearchOptions{
		Limit:      limit,
		PathPrefix: getStringDefault(args, "path_prefix", ""),
	}
	if raw, ok := args["types"].([]interface{}); ok {
		for _, v := range raw {
			name, _ := v.(string)
			t, err := chunk.ParseChunkType(name)
			if err != nil {
				return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunk type", map[string]interface{}{
					"param": "types",
					"value": v,
				})
			}
			opts.Types = append(opts.Types, t)
		}
	}
	includeContent := getBoolDefault(args, "include_content", false)

	results, err := s.index.Search(query, opts)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	out := make([]searchResult, 0, len(results))
	for _, r := range results {
		sr := searchResult{
			ID:        r.ID,
			Score:     r.Score,
			FilePath:  r.Chunk.FilePath,
			Type:      r.Chunk.Type,
			Name:      r.Chunk.DisplayName(),
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Signature: r.Chunk.Signature,
			Snippet:   r.Snippet,
		}
		if includeContent {
			sr.Content = r.Chunk.Content
		}
		out = append(out, sr)
	}

	s.logger.Debug("search_chunks", zap.String("query", query), zap.Int("results", len(out)))

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"count":   len(out),
		"results": out,
	})), nil
}

// handleGetChunk handles the get_chunk tool invocation
func (s *Server) handleGetChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	c, err := s.index.Get(id)
	if errors.Is(err, index.ErrNotFound) {
		return nil, newMCPError(ErrorCodeChunkNotFound, "chunk not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get chunk", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(c)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.index.Status()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed": status.TotalChunks > 0,
		"root":    s.root,
		"status":  status,
	})), nil
}

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	path := s.root
	if p := getStringDefault(args, "path", ""); p != "" {
		path = filepath.Clean(p)
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.root, path)
		}
	}

	if err := validateDir(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	// Chunks are keyed by their path relative to the served root
	if _, err := scanner.RelPath(s.root, path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrOutsideRoot.Error(),
		})
	}

	if !s.indexing.TryLock() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	defer s.indexing.Unlock()

	result, err := s.scanner.ScanDir(ctx, s.root, path, s.index)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":       true,
		"path":          path,
		"files_scanned": result.ScannedFiles,
		"files_skipped": result.SkippedFiles,
		"files_failed":  result.ErrorFiles,
		"chunks":        result.TotalChunks,
		"duration_ms":   result.Duration.Milliseconds(),
	}
	if n := len(result.Errors); n > 0 {
		if n > 5 {
			response["errors"] = result.Errors[:5]
			response["error_count"] = n
		} else {
			response["errors"] = result.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// validateDir checks that path exists and is a directory
func validateDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

var (
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrOutsideRoot     = errors.New("path is outside the served root")
)
