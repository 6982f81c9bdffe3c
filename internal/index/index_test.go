package index

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
	"github.com/mindweaver/ragchunk/internal/processor"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func testChunk(file, class, method, body string, start int) *chunk.Chunk {
	content := fmt.Sprintf("fun %s() {\n    %s\n}", method, body)
	return &chunk.Chunk{
		ID:            chunk.GenerateID(file, start, start+2, content),
		FilePath:      file,
		ClassName:     class,
		MethodName:    method,
		ElementName:   method,
		Type:          chunk.ChunkFunction,
		ElementType:   parser.ElementFunction,
		StartLine:     start,
		EndLine:       start + 2,
		Content:       content,
		Signature:     fmt.Sprintf("fun %s()", method),
		TokenEstimate: chunk.EstimateTokens(content),
		Context:       chunk.Context{Package: "com.example", Imports: []string{"kotlin.io.println"}, TotalImports: 1},
		ContentHash:   chunk.GenerateContentHash(content),
	}
}

func indexFile(t *testing.T, ix *Index, file string, chunks ...*chunk.Chunk) {
	t.Helper()
	for _, c := range chunks {
		if err := ix.ProcessChunk(c); err != nil {
			t.Fatalf("ProcessChunk failed: %v", err)
		}
	}
	if err := ix.OnFileComplete(processor.FileSummary{Path: file, Lines: 20, Chunks: len(chunks)}); err != nil {
		t.Fatalf("OnFileComplete failed: %v", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ix := newTestIndex(t)
	want := testChunk("src/Repo.kt", "Repo", "loadUsers", "return database(users)", 3)
	want.IsPrivate = true
	sub := testChunk("src/Repo.kt", "Repo", "saveUsers", "database(write)", 10)
	sub.Type = chunk.ChunkSubChunk
	sub.ParentID = want.ID
	sub.Part, sub.Parts = 1, 2
	sub.Context.Imports = nil
	sub.Context.TotalImports = 0

	indexFile(t, ix, "src/Repo.kt", want, sub)

	got, err := ix.Get(want.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}

	byFile, err := ix.Store().GetByFile("src/Repo.kt")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]*chunk.Chunk{want, sub}, byFile); diff != "" {
		t.Errorf("GetByFile mismatch (-want +got):\n%s", diff)
	}
}

func TestGetNotFound(t *testing.T) {
	ix := newTestIndex(t)
	_, err := ix.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	ix := newTestIndex(t)
	indexFile(t, ix, "src/Repo.kt",
		testChunk("src/Repo.kt", "Repo", "loadUsers", "return database(users)", 3),
		testChunk("src/Repo.kt", "Repo", "renderPage", "template(layout)", 8))
	indexFile(t, ix, "lib/Cache.kt",
		testChunk("lib/Cache.kt", "Cache", "evict", "database(entries)", 1))

	results, err := ix.Search("database", SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk == nil || r.Chunk.ID != r.ID {
			t.Errorf("result %s not enriched with its chunk", r.ID)
		}
		if r.Snippet == "" {
			t.Errorf("result %s has no snippet", r.ID)
		}
		if r.Type != chunk.ChunkFunction {
			t.Errorf("result %s has type %q", r.ID, r.Type)
		}
	}

	results, err = ix.Search("database", SearchOptions{PathPrefix: "lib/"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].FilePath != "lib/Cache.kt" {
		t.Errorf("path filter returned %+v", results)
	}

	results, err = ix.Search("database", SearchOptions{Types: []chunk.ChunkType{chunk.ChunkClass}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("type filter should exclude functions, got %d results", len(results))
	}

	results, err = ix.Search("database", SearchOptions{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("limit not applied, got %d results", len(results))
	}
}

func TestReindexReplacesFile(t *testing.T) {
	ix := newTestIndex(t)
	old := testChunk("src/Repo.kt", "Repo", "legacyImport", "spreadsheet(rows)", 3)
	kept := testChunk("src/Repo.kt", "Repo", "loadUsers", "return database(users)", 8)
	indexFile(t, ix, "src/Repo.kt", old, kept)
	indexFile(t, ix, "src/Repo.kt", kept)

	if _, err := ix.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale chunk still stored: %v", err)
	}
	results, err := ix.Search("spreadsheet", SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("stale chunk still searchable: %+v", results)
	}
	results, err = ix.Search("database", SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("kept chunk should stay searchable, got %d results", len(results))
	}

	count, err := ix.Store().Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored chunk, got %d", count)
	}
}

func TestFailedFileKeepsPreviousChunks(t *testing.T) {
	ix := newTestIndex(t)
	c := testChunk("src/Repo.kt", "Repo", "loadUsers", "return database(users)", 3)
	indexFile(t, ix, "src/Repo.kt", c)

	partial := testChunk("src/Repo.kt", "Repo", "brokenHalf", "incomplete(rows)", 10)
	if err := ix.ProcessChunk(partial); err != nil {
		t.Fatal(err)
	}
	summary := processor.FileSummary{Path: "src/Repo.kt", Lines: 20, Err: errors.New("read failed")}
	if err := ix.OnFileComplete(summary); err != nil {
		t.Fatalf("OnFileComplete failed: %v", err)
	}

	if _, err := ix.Get(c.ID); err != nil {
		t.Errorf("previous chunk should be kept: %v", err)
	}
	if _, err := ix.Get(partial.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("chunks of a failed file should be discarded: %v", err)
	}

	status, err := ix.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.FailedFiles != 1 || status.TotalFiles != 1 || status.TotalChunks != 1 {
		t.Errorf("unexpected status: %+v", status.StoreStats)
	}
}

func TestRemove(t *testing.T) {
	ix := newTestIndex(t)
	indexFile(t, ix, "src/A.kt", testChunk("src/A.kt", "A", "alpha", "database(alpha)", 1))
	indexFile(t, ix, "src/B.kt", testChunk("src/B.kt", "B", "beta", "database(beta)", 1))

	if err := ix.Remove("src/A.kt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	files, err := ix.Store().Files()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"src/B.kt"}, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	docs, err := ix.search.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if docs != 1 {
		t.Errorf("expected 1 search document, got %d", docs)
	}
}

func TestStatusAndClear(t *testing.T) {
	ix := newTestIndex(t)
	a := testChunk("src/A.kt", "A", "alpha", "database(alpha)", 1)
	b := testChunk("src/A.kt", "A", "beta", "database(beta)", 5)
	b.Type = chunk.ChunkProperty
	indexFile(t, ix, "src/A.kt", a, b)

	status, err := ix.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Documents != 2 || status.TotalChunks != 2 || status.TotalFiles != 1 {
		t.Errorf("unexpected status: docs=%d %+v", status.Documents, status.StoreStats)
	}
	if status.TotalTokens != a.TokenEstimate+b.TokenEstimate {
		t.Errorf("expected %d tokens, got %d", a.TokenEstimate+b.TokenEstimate, status.TotalTokens)
	}
	wantTypes := map[chunk.ChunkType]int{chunk.ChunkFunction: 1, chunk.ChunkProperty: 1}
	if diff := cmp.Diff(wantTypes, status.TypeCounts); diff != "" {
		t.Errorf("type counts mismatch (-want +got):\n%s", diff)
	}
	if status.LastIndexed == "" {
		t.Error("expected last indexed time")
	}

	if err := ix.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	status, err = ix.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Documents != 0 || status.TotalChunks != 0 || status.TotalFiles != 0 {
		t.Errorf("index not cleared: docs=%d %+v", status.Documents, status.StoreStats)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	ix, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := testChunk("src/A.kt", "A", "alpha", "database(alpha)", 1)
	indexFile(t, ix, "src/A.kt", c)
	if err := ix.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ix, err = Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer ix.Close()

	results, err := ix.Search("alpha", SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != c.ID {
		t.Errorf("expected persisted hit, got %+v", results)
	}
}
