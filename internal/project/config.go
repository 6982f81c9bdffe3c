package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/export"
	"github.com/mindweaver/ragchunk/internal/processor"
	"github.com/mindweaver/ragchunk/internal/scanner"
)

const (
	ConfigDir  = ".ragchunk"
	ConfigFile = "config.yaml"
	IndexDir   = "index"
	OutputDir  = "output"
)

// ErrNotInitialized is returned when no .ragchunk directory can be found
var ErrNotInitialized = errors.New("no ragchunk project found")

// FilterConfig selects which chunks reach the exporters
type FilterConfig struct {
	Types          []string `yaml:"types,omitempty" json:"types,omitempty"`
	MinTokens      int      `yaml:"min_tokens,omitempty" json:"min_tokens,omitempty"`
	MaxTokens      int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	ExcludePrivate bool     `yaml:"exclude_private" json:"exclude_private"`
	Paths          []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Dedup          bool     `yaml:"dedup" json:"dedup"`
	DedupThreshold float64  `yaml:"dedup_threshold" json:"dedup_threshold"`
}

// Options converts the filter section to processor filter options
func (f FilterConfig) Options() (processor.FilterOptions, error) {
	opts := processor.FilterOptions{
		MinTokens:      f.MinTokens,
		MaxTokens:      f.MaxTokens,
		ExcludePrivate: f.ExcludePrivate,
		PathPatterns:   f.Paths,
	}
	for _, name := range f.Types {
		t, err := chunk.ParseChunkType(name)
		if err != nil {
			return opts, err
		}
		opts.Types = append(opts.Types, t)
	}
	return opts, opts.Validate()
}

// ExportConfig selects output formats and where they are written
type ExportConfig struct {
	Formats []string `yaml:"formats" json:"formats"`
	// OutputDir is relative to the project root unless absolute
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	Indent    bool   `yaml:"indent" json:"indent"`
}

// IndexConfig controls the local search index
type IndexConfig struct {
	// Enabled makes scan update the index alongside the exports
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir is relative to the .ragchunk directory unless absolute
	Dir      string        `yaml:"dir" json:"dir"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// Format is "json" or "console"
	Format string `yaml:"format" json:"format"`
}

// Config represents the .ragchunk/config.yaml configuration
type Config struct {
	Name      string          `yaml:"name" json:"name"`
	Version   string          `yaml:"version" json:"version"`
	CreatedAt time.Time       `yaml:"created_at" json:"created_at"`
	Build     *BuildInfo      `yaml:"build,omitempty" json:"build,omitempty"`
	Scan      scanner.Options `yaml:"scan" json:"scan"`
	Chunking  chunk.Config    `yaml:"chunking" json:"chunking"`
	Filter    FilterConfig    `yaml:"filter" json:"filter"`
	Export    ExportConfig    `yaml:"export" json:"export"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// DefaultConfig returns the configuration used for values missing from
// config.yaml
func DefaultConfig() *Config {
	return &Config{
		Version:  "1.0",
		Scan:     scanner.DefaultOptions(),
		Chunking: chunk.DefaultConfig(),
		Filter: FilterConfig{
			DedupThreshold: processor.DefaultDedupThreshold,
		},
		Export: ExportConfig{
			Formats:   []string{"jsonl"},
			OutputDir: filepath.Join(ConfigDir, OutputDir),
			BatchSize: export.DefaultBatchSize,
		},
		Index: IndexConfig{
			Dir:      IndexDir,
			Debounce: scanner.DefaultDebounce,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for values the pipeline would reject
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if _, err := c.Filter.Options(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if c.Filter.DedupThreshold <= 0 || c.Filter.DedupThreshold > 1 {
		return fmt.Errorf("filter: dedup_threshold must be in (0, 1], got %v", c.Filter.DedupThreshold)
	}
	for _, f := range c.Export.Formats {
		if !export.IsValidFormat(f) {
			return fmt.Errorf("export: %w: %s", export.ErrUnknownFormat, f)
		}
	}
	if c.Export.BatchSize < 1 {
		return fmt.Errorf("export: batch_size must be positive, got %d", c.Export.BatchSize)
	}
	return nil
}

// Project represents an initialized ragchunk project
type Project struct {
	RootPath string
	Config   *Config
}

// Active holds the currently active project
var Active *Project

// FindProjectRoot looks for a .ragchunk directory starting from path and going up
func FindProjectRoot(startPath string) (string, error) {
	path, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", startPath, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(path, ConfigDir)); err == nil && info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", fmt.Errorf("%w (searched from %s to root)", ErrNotInitialized, startPath)
		}
		path = parent
	}
}

// GetConfigDir returns the path to the .ragchunk directory
func (p *Project) GetConfigDir() string {
	return filepath.Join(p.RootPath, ConfigDir)
}

// GetConfigPath returns the path to config.yaml
func (p *Project) GetConfigPath() string {
	return filepath.Join(p.GetConfigDir(), ConfigFile)
}

// GetIndexPath returns the directory of the search index
func (p *Project) GetIndexPath() string {
	dir := p.Config.Index.Dir
	if dir == "" {
		dir = IndexDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.GetConfigDir(), dir)
}

// GetOutputPath returns the export output directory
func (p *Project) GetOutputPath() string {
	dir := p.Config.Export.OutputDir
	if dir == "" {
		dir = filepath.Join(ConfigDir, OutputDir)
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.RootPath, dir)
}

// Load loads the project configuration from disk. Keys missing from the
// file keep their default values.
func (p *Project) Load() error {
	config, err := LoadConfig(p.GetConfigPath())
	if err != nil {
		return err
	}
	p.Config = config
	return nil
}

// LoadConfig reads a config file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project config %s: %w", path, err)
	}
	return config, nil
}

// Save saves the project configuration to disk
func (p *Project) Save() error {
	data, err := yaml.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}

	if err := os.WriteFile(p.GetConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}

	return nil
}

// Initialize creates a new .ragchunk project structure with a default config
func Initialize(rootPath string) (*Project, error) {
	configDir := filepath.Join(rootPath, ConfigDir)

	if _, err := os.Stat(configDir); err == nil {
		return nil, fmt.Errorf("project already initialized at %s", configDir)
	}

	for _, dir := range []string{configDir, filepath.Join(configDir, IndexDir), filepath.Join(configDir, OutputDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	config := DefaultConfig()
	config.Name = filepath.Base(rootPath)
	config.CreatedAt = time.Now().UTC().Truncate(time.Second)
	if build := DetectBuild(rootPath); build != nil {
		config.Build = build
		if build.ProjectName != "" {
			config.Name = build.ProjectName
		}
	}

	project := &Project{
		RootPath: rootPath,
		Config:   config,
	}

	if err := project.Save(); err != nil {
		return nil, err
	}

	return project, nil
}

// Activate loads and activates the project containing path
func Activate(path string) (*Project, error) {
	rootPath, err := FindProjectRoot(path)
	if err != nil {
		return nil, err
	}

	project := &Project{
		RootPath: rootPath,
	}

	if err := project.Load(); err != nil {
		return nil, err
	}

	Active = project
	return project, nil
}

// EnsureActive returns the active project or activates from current directory
func EnsureActive() (*Project, error) {
	if Active != nil {
		return Active, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return Activate(cwd)
}
