package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
	"github.com/mindweaver/ragchunk/internal/processor"
)

// recorder is a processor that remembers the calls it received
type recorder struct {
	mu        sync.Mutex
	chunks    []*chunk.Chunk
	files     []processor.FileSummary
	completed int
	failOn    string
	complete  error
	stats     *processor.Statistics
}

func newRecorder() *recorder {
	return &recorder{stats: processor.NewStatistics()}
}

func (r *recorder) ProcessChunk(c *chunk.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && c.FilePath == r.failOn {
		return errors.New("sink rejected chunk")
	}
	r.chunks = append(r.chunks, c)
	r.stats.Record(c)
	return nil
}

func (r *recorder) OnFileComplete(s processor.FileSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, s)
	r.stats.RecordFile(s)
	return nil
}

func (r *recorder) OnComplete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	return r.complete
}

func (r *recorder) Statistics() *processor.Statistics {
	return r.stats
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.files {
		out = append(out, f.Path)
	}
	return out
}

const repoSource = `package com.example

class Repo {
    fun load(): String {
        return "x"
    }
}
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/main/Repo.kt", repoSource)
	writeFile(t, root, "src/main/Empty.kt", "")
	writeFile(t, root, "build.gradle.kts", "plugins {\n    kotlin(\"jvm\")\n}\n")
	writeFile(t, root, "src/main/README.md", "# docs\n")
	writeFile(t, root, "build/generated/Gen.kt", repoSource)
	writeFile(t, root, ".idea/Hidden.kt", repoSource)
	writeFile(t, root, ".cache/Other.kt", repoSource)
	writeFile(t, root, "src/main/Huge.kt", strings.Repeat("// filler line\n", 200))
	return root
}

func newTestScanner(maxSize int64) *Scanner {
	opts := DefaultOptions()
	opts.MaxFileSize = maxSize
	return New(parser.New(), chunk.NewChunker(chunk.DefaultConfig(), nil), opts, nil)
}

func TestScan(t *testing.T) {
	root := setupTree(t)
	rec := newRecorder()

	res, err := newTestScanner(1024).Scan(context.Background(), root, rec)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"build.gradle.kts", "src/main/Empty.kt", "src/main/Repo.kt"}
	if diff := cmp.Diff(want, rec.paths()); diff != "" {
		t.Errorf("reported files mismatch (-want +got):\n%s", diff)
	}
	if rec.completed != 1 {
		t.Errorf("OnComplete called %d times", rec.completed)
	}
	if res.ScannedFiles != 3 || res.SkippedFiles != 1 || res.ErrorFiles != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.TotalChunks != len(rec.chunks) {
		t.Errorf("result counts %d chunks, processor saw %d", res.TotalChunks, len(rec.chunks))
	}
	for _, c := range rec.chunks {
		if strings.HasPrefix(c.FilePath, "build/") || strings.HasPrefix(c.FilePath, ".") {
			t.Errorf("chunk from excluded path %s", c.FilePath)
		}
	}
}

func TestScanReportsEachFileOnce(t *testing.T) {
	root := setupTree(t)
	rec := newRecorder()
	if _, err := newTestScanner(1<<20).Scan(context.Background(), root, rec); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]int)
	for _, p := range rec.paths() {
		seen[p]++
	}
	for p, n := range seen {
		if n != 1 {
			t.Errorf("%s reported %d times", p, n)
		}
	}
	if seen["src/main/Huge.kt"] != 1 {
		t.Error("file under the limit should be reported")
	}
}

func TestScanChunkLineRanges(t *testing.T) {
	root := setupTree(t)
	rec := newRecorder()
	if _, err := newTestScanner(1<<20).Scan(context.Background(), root, rec); err != nil {
		t.Fatal(err)
	}

	lines := make(map[string]int)
	for _, f := range rec.files {
		lines[f.Path] = f.Lines
	}
	for _, c := range rec.chunks {
		total := lines[c.FilePath]
		if c.StartLine < 1 || c.StartLine > c.EndLine || c.EndLine > total {
			t.Errorf("chunk %s outside 1..%d", c, total)
		}
	}
	if lines["src/main/Empty.kt"] != 0 {
		t.Errorf("empty file should have 0 lines")
	}
}

func TestScanFileErrorsAreContained(t *testing.T) {
	root := setupTree(t)
	rec := newRecorder()
	rec.failOn = "src/main/Repo.kt"

	res, err := newTestScanner(1024).Scan(context.Background(), root, rec)
	if err != nil {
		t.Fatalf("per-file failure should not fail the scan: %v", err)
	}
	if res.ErrorFiles != 1 || len(res.Errors) != 1 {
		t.Errorf("expected 1 error file, got %+v", res)
	}

	var failed *processor.FileSummary
	for i := range rec.files {
		if rec.files[i].Path == "src/main/Repo.kt" {
			failed = &rec.files[i]
		}
	}
	if failed == nil || failed.Err == nil {
		t.Fatal("failed file should be reported with an error")
	}
	if rec.stats.FailedFiles != 1 {
		t.Errorf("expected 1 failed file in statistics, got %d", rec.stats.FailedFiles)
	}
	if !strings.Contains(failed.Err.Error(), "sink rejected chunk") {
		t.Errorf("summary should carry the ProcessChunk error, got %v", failed.Err)
	}
	if diff := cmp.Diff([]string{"build.gradle.kts", "src/main/Empty.kt", "src/main/Repo.kt"}, rec.paths()); diff != "" {
		t.Errorf("scan should continue past the failed file (-want +got):\n%s", diff)
	}
}

func TestScanReturnsCompleteError(t *testing.T) {
	root := setupTree(t)
	rec := newRecorder()
	rec.complete = errors.New("flush failed")

	_, err := newTestScanner(1024).Scan(context.Background(), root, rec)
	if !errors.Is(err, rec.complete) {
		t.Errorf("expected OnComplete error, got %v", err)
	}
}

func TestScanCancelled(t *testing.T) {
	root := setupTree(t)
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(1024).Scan(ctx, root, rec)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if rec.completed != 1 {
		t.Error("OnComplete should run even when cancelled")
	}
}

func TestScanMissingRoot(t *testing.T) {
	rec := newRecorder()
	_, err := newTestScanner(1024).Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), rec)
	if err == nil {
		t.Error("expected error for missing root")
	}
	if rec.completed != 1 {
		t.Error("OnComplete should run even when the walk fails")
	}
}

func TestScanFile(t *testing.T) {
	root := setupTree(t)
	s := newTestScanner(1024)
	rec := newRecorder()

	res, err := s.ScanFile(context.Background(), root, "src/main/Repo.kt", rec)
	if err != nil {
		t.Fatalf("ScanFile failed: %v", err)
	}
	if res.ScannedFiles != 1 || res.TotalChunks != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if rec.completed != 0 {
		t.Error("ScanFile must not call OnComplete")
	}

	_, err = s.ScanFile(context.Background(), root, filepath.Join(root, "src/main/Huge.kt"), rec)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestShouldScan(t *testing.T) {
	s := newTestScanner(1024)
	tests := map[string]bool{
		"A.kt":                true,
		"src/B.KT":            true,
		"settings.gradle.kts": true,
		"src/C.java":          false,
		"build/D.kt":          false,
		"a/.git/E.kt":         false,
		"module/out/F.kt":     false,
		"module/output/G.kt":  true,
		"node_modules/x/H.kt": false,
		"src/.generated/I.kt": false,
	}
	for path, want := range tests {
		if got := s.ShouldScan(path); got != want {
			t.Errorf("ShouldScan(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcher(t *testing.T) {
	root := setupTree(t)
	s := newTestScanner(1 << 20)
	rec := newRecorder()

	type flushed struct{ changed, removed []string }
	flushes := make(chan flushed, 10)
	var removedMu sync.Mutex
	var removed []string

	w := NewWatcher(s, root, rec,
		WithDebounce(50*time.Millisecond),
		WithRemoveHook(func(rel string) error {
			removedMu.Lock()
			defer removedMu.Unlock()
			removed = append(removed, rel)
			return nil
		}),
		WithFlushHook(func(changed, removed []string) {
			flushes <- flushed{changed, removed}
		}))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	writeFile(t, root, "src/main/New.kt", repoSource)
	writeFile(t, root, "build/Ignored.kt", repoSource)

	waitFor := func(what string, match func(flushed) bool) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case f := <-flushes:
				if match(f) {
					return
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", what)
			}
		}
	}

	waitFor("change flush", func(f flushed) bool {
		return cmp.Equal([]string{"src/main/New.kt"}, f.changed)
	})

	if err := os.Remove(filepath.Join(root, "src/main/New.kt")); err != nil {
		t.Fatal(err)
	}
	waitFor("removal flush", func(f flushed) bool {
		return cmp.Equal([]string{"src/main/New.kt"}, f.removed)
	})

	removedMu.Lock()
	defer removedMu.Unlock()
	if len(removed) != 1 {
		t.Errorf("remove hook called %d times", len(removed))
	}
	for _, p := range rec.paths() {
		if p == "build/Ignored.kt" {
			t.Error("excluded directory was re-chunked")
		}
	}
}

func TestScanDirRecordsPathsAgainstBase(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "moduleA/src/Main.kt", "package a\n\nfun runA() {\n}\n")
	writeFile(t, root, "moduleB/src/Main.kt", "package b\n\nfun runB() {\n}\n")
	s := newTestScanner(1 << 20)

	rec := newRecorder()
	for _, module := range []string{"moduleA", "moduleB"} {
		if _, err := s.ScanDir(context.Background(), root, filepath.Join(root, module), rec); err != nil {
			t.Fatalf("ScanDir %s failed: %v", module, err)
		}
	}
	if diff := cmp.Diff([]string{"moduleA/src/Main.kt", "moduleB/src/Main.kt"}, rec.paths()); diff != "" {
		t.Errorf("reported files mismatch (-want +got):\n%s", diff)
	}
	for _, c := range rec.chunks {
		if !strings.HasPrefix(c.FilePath, "module") {
			t.Errorf("chunk path %s not relative to base", c.FilePath)
		}
	}

	outside := newRecorder()
	_, err := s.ScanDir(context.Background(), filepath.Join(root, "moduleA"), filepath.Join(root, "moduleB"), outside)
	if !errors.Is(err, ErrOutsideBase) {
		t.Errorf("expected ErrOutsideBase, got %v", err)
	}
	if outside.completed != 1 || len(outside.files) != 0 {
		t.Errorf("outside scan should only complete, got %d files, %d completions", len(outside.files), outside.completed)
	}
}

func TestRelPath(t *testing.T) {
	base := filepath.FromSlash("/repo")
	tests := []struct {
		path    string
		want    string
		outside bool
	}{
		{"/repo", ".", false},
		{"/repo/a/B.kt", "a/B.kt", false},
		{"/repo/..cache/C.kt", "..cache/C.kt", false},
		{"/other/D.kt", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := RelPath(base, filepath.FromSlash(tt.path))
		if tt.outside {
			if !errors.Is(err, ErrOutsideBase) {
				t.Errorf("RelPath(%q): expected ErrOutsideBase, got %q, %v", tt.path, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("RelPath(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
		}
	}
}

func TestWatcherWithBase(t *testing.T) {
	root := t.TempDir()
	module := filepath.Join(root, "moduleA")
	writeFile(t, root, "moduleA/src/Main.kt", repoSource)
	rec := newRecorder()

	flushes := make(chan []string, 10)
	w := NewWatcher(newTestScanner(1<<20), module, rec,
		WithBase(root),
		WithDebounce(50*time.Millisecond),
		WithFlushHook(func(changed, removed []string) {
			flushes <- changed
		}))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	writeFile(t, root, "moduleA/src/Main.kt", repoSource+"\n")
	select {
	case changed := <-flushes:
		if diff := cmp.Diff([]string{"moduleA/src/Main.kt"}, changed); diff != "" {
			t.Errorf("changed paths mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
	if diff := cmp.Diff([]string{"moduleA/src/Main.kt"}, rec.paths()); diff != "" {
		t.Errorf("reported files mismatch (-want +got):\n%s", diff)
	}
}

// blockingProcessor holds OnFileComplete until released
type blockingProcessor struct {
	*recorder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingProcessor) OnFileComplete(s processor.FileSummary) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.recorder.OnFileComplete(s)
}

func TestWatcherStopWaitsForFlush(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/Main.kt", repoSource)
	proc := &blockingProcessor{
		recorder: newRecorder(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}

	w := NewWatcher(newTestScanner(1<<20), root, proc, WithDebounce(20*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	writeFile(t, root, "src/Main.kt", repoSource+"\n")
	select {
	case <-proc.entered:
	case <-time.After(5 * time.Second):
		close(proc.release)
		t.Fatal("timed out waiting for flush to start")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a flush was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(proc.release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the flush finished")
	}
	if len(proc.paths()) != 1 {
		t.Errorf("expected the flushed file to be reported once, got %v", proc.paths())
	}
}
