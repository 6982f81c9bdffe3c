package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/export"
	"github.com/mindweaver/ragchunk/internal/processor"
)

func TestInitialize(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := Initialize(tmpDir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if p.RootPath != tmpDir {
		t.Errorf("expected RootPath %s, got %s", tmpDir, p.RootPath)
	}
	if p.Config == nil {
		t.Fatal("Config is nil")
	}
	if p.Config.Name != filepath.Base(tmpDir) {
		t.Errorf("expected Name %s, got %s", filepath.Base(tmpDir), p.Config.Name)
	}
	if p.Config.Build != nil {
		t.Errorf("expected no build info, got %+v", p.Config.Build)
	}

	dirs := []string{
		filepath.Join(tmpDir, ConfigDir),
		filepath.Join(tmpDir, ConfigDir, IndexDir),
		filepath.Join(tmpDir, ConfigDir, OutputDir),
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("directory not created: %s", dir)
		}
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ConfigDir, ConfigFile)); os.IsNotExist(err) {
		t.Error("config.yaml not created")
	}
}

func TestInitializeUsesBuildName(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"settings.gradle.kts": `rootProject.name = "orders-service"` + "\n",
	})

	p, err := Initialize(tmpDir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if p.Config.Name != "orders-service" {
		t.Errorf("expected name from settings.gradle.kts, got %s", p.Config.Name)
	}
	if p.Config.Build == nil || p.Config.Build.Tool != "gradle" {
		t.Errorf("expected gradle build info, got %+v", p.Config.Build)
	}
}

func TestInitializeAlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Initialize(tmpDir); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}
	if _, err := Initialize(tmpDir); err == nil {
		t.Error("expected error when initializing already initialized project")
	}
}

func TestProjectLoadSave(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := Initialize(tmpDir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	p.Config.Name = "test-project"
	p.Config.Chunking.SubChunkLines = 80
	p.Config.Filter.Types = []string{"function", "class"}
	p.Config.Export.Formats = []string{"json", "rag"}
	p.Config.Index.Enabled = true
	p.Config.Index.Debounce = 2 * time.Second

	if err := p.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	p2 := &Project{RootPath: tmpDir}
	if err := p2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if diff := cmp.Diff(p.Config, p2.Config); diff != "" {
		t.Errorf("config round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	partial := `name: partial
chunking:
  sub_chunk_lines: 60
export:
  formats: [json, report]
index:
  debounce: 250ms
`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Chunking.SubChunkLines != 60 {
		t.Errorf("expected sub_chunk_lines 60, got %d", config.Chunking.SubChunkLines)
	}
	defaults := chunk.DefaultConfig()
	if config.Chunking.LargeElementLines != defaults.LargeElementLines || config.Chunking.OverlapLines != defaults.OverlapLines {
		t.Errorf("missing chunking keys should keep defaults: %+v", config.Chunking)
	}
	if diff := cmp.Diff([]string{"json", "report"}, config.Export.Formats); diff != "" {
		t.Errorf("formats mismatch (-want +got):\n%s", diff)
	}
	if config.Export.BatchSize != export.DefaultBatchSize {
		t.Errorf("expected default batch size, got %d", config.Export.BatchSize)
	}
	if config.Index.Debounce != 250*time.Millisecond {
		t.Errorf("expected 250ms debounce, got %v", config.Index.Debounce)
	}
	if config.Filter.DedupThreshold != processor.DefaultDedupThreshold {
		t.Errorf("expected default dedup threshold, got %v", config.Filter.DedupThreshold)
	}
	if len(config.Scan.Extensions) == 0 {
		t.Error("scan extensions should default")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"bad format":    "export:\n  formats: [xml]\n",
		"bad type":      "filter:\n  types: [module]\n",
		"bad overlap":   "chunking:\n  sub_chunk_lines: 10\n  overlap_lines: 10\n",
		"bad threshold": "filter:\n  dedup_threshold: 1.5\n",
		"bad yaml":      "chunking: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFile)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFilterConfigOptions(t *testing.T) {
	f := FilterConfig{Types: []string{"function", "sub-chunk"}, MinTokens: 5, Paths: []string{"src/*"}}
	opts, err := f.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	want := processor.FilterOptions{
		Types:        []chunk.ChunkType{chunk.ChunkFunction, chunk.ChunkSubChunk},
		MinTokens:    5,
		PathPatterns: []string{"src/*"},
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Initialize(tmpDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	nestedDir := filepath.Join(tmpDir, "src", "main", "kotlin")
	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	root, err := FindProjectRoot(nestedDir)
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	if root != tmpDir {
		t.Errorf("expected root %s, got %s", tmpDir, root)
	}
}

func TestFindProjectRootNotFound(t *testing.T) {
	_, err := FindProjectRoot(t.TempDir())
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestActivate(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Initialize(tmpDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Active = nil
	defer func() { Active = nil }()

	p, err := Activate(tmpDir)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if p != Active {
		t.Error("Activate did not set Active project")
	}
	if p.Config == nil {
		t.Error("Activate did not load config")
	}

	again, err := EnsureActive()
	if err != nil || again != p {
		t.Errorf("EnsureActive should return the active project, got %v %v", again, err)
	}
}

func TestProjectPaths(t *testing.T) {
	p := &Project{
		RootPath: "/test/project",
		Config:   DefaultConfig(),
	}

	if p.GetConfigDir() != "/test/project/.ragchunk" {
		t.Errorf("unexpected config dir: %s", p.GetConfigDir())
	}
	if p.GetConfigPath() != "/test/project/.ragchunk/config.yaml" {
		t.Errorf("unexpected config path: %s", p.GetConfigPath())
	}
	if p.GetIndexPath() != "/test/project/.ragchunk/index" {
		t.Errorf("unexpected index path: %s", p.GetIndexPath())
	}
	if p.GetOutputPath() != "/test/project/.ragchunk/output" {
		t.Errorf("unexpected output path: %s", p.GetOutputPath())
	}

	p.Config.Index.Dir = "/var/cache/ragchunk"
	p.Config.Export.OutputDir = "dist/chunks"
	if p.GetIndexPath() != "/var/cache/ragchunk" {
		t.Errorf("absolute index dir should be kept: %s", p.GetIndexPath())
	}
	if !strings.HasSuffix(p.GetOutputPath(), "/test/project/dist/chunks") {
		t.Errorf("unexpected output path: %s", p.GetOutputPath())
	}
}
