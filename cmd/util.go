package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/index"
	"github.com/mindweaver/ragchunk/internal/parser"
	"github.com/mindweaver/ragchunk/internal/project"
	"github.com/mindweaver/ragchunk/internal/scanner"
)

// outputJSON outputs data as JSON
func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// exitError prints an error message and exits
func exitError(format string, args ...interface{}) {
	if jsonOutput {
		_ = outputJSON(map[string]string{"error": fmt.Sprintf(format, args...)})
	} else {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	}
	os.Exit(1)
}

// newLogger builds the zap logger. Logs always go to stderr so stdout stays
// usable for --json output and the MCP stdio transport.
func newLogger(cfg project.LoggingConfig, verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	if cfg.Format != "" {
		config.Encoding = cfg.Format
	}
	if config.Encoding == "console" {
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return config.Build()
}

// currentProject returns the project selected by --config or found from the
// working directory
func currentProject() (*project.Project, error) {
	if configPath == "" {
		return project.EnsureActive()
	}
	if project.Active != nil {
		return project.Active, nil
	}

	path, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", configPath, err)
	}
	config, err := project.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	root := filepath.Dir(path)
	if filepath.Base(root) == project.ConfigDir {
		root = filepath.Dir(root)
	} else if root, err = os.Getwd(); err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	project.Active = &project.Project{RootPath: root, Config: config}
	return project.Active, nil
}

// projectOrDefault returns the current project, or a project rooted at the
// working directory with the default configuration when none is initialized
func projectOrDefault() *project.Project {
	p, err := currentProject()
	if err == nil {
		return p
	}
	if !errors.Is(err, project.ErrNotInitialized) {
		exitError("%v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("failed to get current directory: %v", err)
	}
	config := project.DefaultConfig()
	config.Name = filepath.Base(cwd)
	return &project.Project{RootPath: cwd, Config: config}
}

// newScanner builds the parser, chunker and scanner from the project config
func newScanner(p *project.Project) *scanner.Scanner {
	chunker := chunk.NewChunker(p.Config.Chunking, logger.Named("chunker"))
	return scanner.New(parser.New(), chunker, p.Config.Scan, logger.Named("scanner"))
}

// scanBase returns the directory chunk paths are recorded against when
// scanning dir: the project root when dir is inside it, otherwise dir itself
func scanBase(p *project.Project, dir string) (string, bool) {
	if _, err := scanner.RelPath(p.RootPath, dir); err != nil {
		return dir, false
	}
	return p.RootPath, true
}

// openIndex opens the project's search index
func openIndex(p *project.Project) *index.Index {
	ix, err := index.Open(p.GetIndexPath(), logger.Named("index"))
	if err != nil {
		exitError("failed to open index: %v", err)
	}
	return ix
}

// parseTypes converts chunk type flags
func parseTypes(names []string) []chunk.ChunkType {
	var types []chunk.ChunkType
	for _, name := range names {
		t, err := chunk.ParseChunkType(name)
		if err != nil {
			exitError("%v", err)
		}
		types = append(types, t)
	}
	return types
}

// signalContext returns a context cancelled on interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
