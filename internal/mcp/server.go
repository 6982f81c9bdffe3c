// Package mcp exposes a chunk index to LLM clients over the Model Context
// Protocol on stdio.
package mcp

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/index"
	"github.com/mindweaver/ragchunk/internal/scanner"
)

// ServerName is the MCP server name
const ServerName = "ragchunk"

// Server wraps the MCP server with the index it serves
type Server struct {
	mcp     *server.MCPServer
	index   *index.Index
	scanner *scanner.Scanner
	root    string
	logger  *zap.Logger

	// indexing guards index_repository against concurrent runs
	indexing sync.Mutex
}

// NewServer creates a server over ix. Repositories passed to
// index_repository are resolved against root and scanned with sc.
func NewServer(ix *index.Index, sc *scanner.Scanner, root, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, version),
		index:   ix,
		scanner: sc,
		root:    root,
		logger:  logger,
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdio until the client disconnects or ctx is
// cancelled. Cancellation is a normal shutdown and returns nil.
func (s *Server) Serve(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("serving MCP on stdio", zap.String("root", s.root), zap.String("index", s.index.Dir()))

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		s.logger.Info("MCP server stopped")
		return nil
	}
	return err
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchChunksTool(), s.handleSearchChunks)
	s.mcp.AddTool(getChunkTool(), s.handleGetChunk)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
}
