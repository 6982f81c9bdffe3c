package processor

import (
	"bytes"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/parser"
)

// recorder is a processor that remembers what it received
type recorder struct {
	chunks    []*chunk.Chunk
	files     []FileSummary
	completed int32
	err       error
	stats     *Statistics
}

func newRecorder() *recorder {
	return &recorder{stats: NewStatistics()}
}

func (r *recorder) ProcessChunk(c *chunk.Chunk) error {
	r.chunks = append(r.chunks, c)
	r.stats.Record(c)
	return r.err
}

func (r *recorder) OnFileComplete(s FileSummary) error {
	r.files = append(r.files, s)
	r.stats.RecordFile(s)
	return r.err
}

func (r *recorder) OnComplete() error {
	atomic.AddInt32(&r.completed, 1)
	return r.err
}

func (r *recorder) Statistics() *Statistics {
	return r.stats
}

func testChunk(typ chunk.ChunkType, tokens int, content string) *chunk.Chunk {
	return &chunk.Chunk{
		ID:            chunk.GenerateID("A.kt", 1, 1, content),
		FilePath:      "src/main/A.kt",
		Type:          typ,
		StartLine:     1,
		EndLine:       1,
		Content:       content,
		TokenEstimate: tokens,
		ContentHash:   chunk.GenerateContentHash(content),
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	s.Record(testChunk(chunk.ChunkFunction, 10, "a"))
	s.Record(testChunk(chunk.ChunkFunction, 4, "b"))
	sub := testChunk(chunk.ChunkSubChunk, 30, "c")
	sub.Truncated = true
	s.Record(sub)
	s.RecordFile(FileSummary{Path: "A.kt", Lines: 40, Chunks: 3})
	s.RecordFile(FileSummary{Path: "B.kt", Err: errors.New("boom")})

	if s.TotalChunks != 3 || s.TotalTokens != 44 {
		t.Errorf("unexpected totals: %d chunks, %d tokens", s.TotalChunks, s.TotalTokens)
	}
	if s.MinTokens != 4 || s.MaxTokens != 30 {
		t.Errorf("unexpected min/max: %d/%d", s.MinTokens, s.MaxTokens)
	}
	if s.SubChunks != 1 || s.TruncatedChunks != 1 {
		t.Errorf("unexpected sub/truncated: %d/%d", s.SubChunks, s.TruncatedChunks)
	}
	if s.TotalFiles != 2 || s.FailedFiles != 1 || s.TotalLines != 40 {
		t.Errorf("unexpected file counters: %+v", s)
	}
	if avg := s.AverageTokens(); avg < 14.66 || avg > 14.67 {
		t.Errorf("unexpected average: %f", avg)
	}

	want := []TypeCount{{chunk.ChunkFunction, 2}, {chunk.ChunkSubChunk, 1}}
	if diff := cmp.Diff(want, s.SortedTypes()); diff != "" {
		t.Errorf("histogram mismatch (-want +got):\n%s", diff)
	}

	other := NewStatistics()
	other.Record(testChunk(chunk.ChunkClass, 2, "d"))
	s.Merge(other)
	if s.TotalChunks != 4 || s.MinTokens != 2 || s.ByType[chunk.ChunkClass] != 1 {
		t.Errorf("merge failed: %+v", s)
	}
	s.Merge(NewStatistics())
	if s.MinTokens != 2 {
		t.Errorf("merging empty statistics changed min tokens to %d", s.MinTokens)
	}
}

func TestAnalytics(t *testing.T) {
	a := NewAnalytics()
	if err := a.ProcessChunk(testChunk(chunk.ChunkClass, 5, "x")); err != nil {
		t.Fatal(err)
	}
	if err := a.OnFileComplete(FileSummary{Path: "A.kt", Lines: 3, Chunks: 1}); err != nil {
		t.Fatal(err)
	}
	if err := a.OnComplete(); err != nil {
		t.Fatal(err)
	}
	if a.Statistics().TotalChunks != 1 || a.Statistics().TotalFiles != 1 {
		t.Errorf("unexpected statistics: %+v", a.Statistics())
	}
}

func TestFilter(t *testing.T) {
	private := testChunk(chunk.ChunkFunction, 20, "private fun a()")
	private.IsPrivate = true
	sub := testChunk(chunk.ChunkSubChunk, 20, "part")
	sub.ElementType = parser.ElementFunction
	test := testChunk(chunk.ChunkFunction, 20, "fun t()")
	test.FilePath = "src/test/ATest.kt"

	tests := []struct {
		name string
		opts FilterOptions
		in   *chunk.Chunk
		want bool
	}{
		{"no predicates", FilterOptions{}, testChunk(chunk.ChunkClass, 1, "c"), true},
		{"type match", FilterOptions{Types: []chunk.ChunkType{chunk.ChunkFunction}}, testChunk(chunk.ChunkFunction, 1, "f"), true},
		{"type mismatch", FilterOptions{Types: []chunk.ChunkType{chunk.ChunkFunction}}, testChunk(chunk.ChunkClass, 1, "c"), false},
		{"sub-chunk of function", FilterOptions{Types: []chunk.ChunkType{chunk.ChunkFunction}}, sub, true},
		{"sub-chunk type", FilterOptions{Types: []chunk.ChunkType{chunk.ChunkSubChunk}}, sub, true},
		{"below min", FilterOptions{MinTokens: 10}, testChunk(chunk.ChunkClass, 9, "c"), false},
		{"above max", FilterOptions{MaxTokens: 10}, testChunk(chunk.ChunkClass, 11, "c"), false},
		{"within bounds", FilterOptions{MinTokens: 10, MaxTokens: 30}, private, true},
		{"exclude private", FilterOptions{ExcludePrivate: true}, private, false},
		{"path glob", FilterOptions{PathPatterns: []string{"src/test/*"}}, test, true},
		{"base name glob", FilterOptions{PathPatterns: []string{"*Test.kt"}}, test, true},
		{"path mismatch", FilterOptions{PathPatterns: []string{"*Test.kt"}}, private, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewFilter(tt.opts, newRecorder()).Matches(tt.in); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterForwards(t *testing.T) {
	next := newRecorder()
	f := NewFilter(FilterOptions{MinTokens: 5}, next)

	_ = f.ProcessChunk(testChunk(chunk.ChunkClass, 1, "small"))
	_ = f.ProcessChunk(testChunk(chunk.ChunkClass, 9, "large"))
	_ = f.OnFileComplete(FileSummary{Path: "A.kt"})
	_ = f.OnComplete()

	if len(next.chunks) != 1 || f.Filtered() != 1 {
		t.Errorf("expected 1 forwarded and 1 filtered, got %d and %d", len(next.chunks), f.Filtered())
	}
	if len(next.files) != 1 || next.completed != 1 {
		t.Error("file and completion hooks were not forwarded")
	}
	if f.Statistics().TotalChunks != 1 {
		t.Errorf("filter statistics should count forwarded chunks only")
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (FilterOptions{PathPatterns: []string{"["}}).Validate(); err == nil {
		t.Error("expected error for bad glob")
	}
	if err := (FilterOptions{MinTokens: 10, MaxTokens: 5}).Validate(); err == nil {
		t.Error("expected error for inverted bounds")
	}
	if err := (FilterOptions{Types: []chunk.ChunkType{"METHOD"}}).Validate(); err == nil {
		t.Error("expected error for unknown type")
	}
	if !(FilterOptions{}).IsZero() {
		t.Error("empty options should be zero")
	}
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := newRecorder(), newRecorder(), newRecorder()
	b.err = boom
	m := NewMulti(a, b, c)

	if err := m.ProcessChunk(testChunk(chunk.ChunkClass, 1, "x")); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if len(a.chunks) != 1 || len(c.chunks) != 1 {
		t.Error("every target should receive the chunk despite an error")
	}

	if err := m.OnFileComplete(FileSummary{Path: "A.kt"}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if len(c.files) != 1 {
		t.Error("every target should receive the file summary")
	}

	if err := m.OnComplete(); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	for i, r := range []*recorder{a, b, c} {
		if atomic.LoadInt32(&r.completed) != 1 {
			t.Errorf("target %d completed %d times", i, r.completed)
		}
	}
	if m.Statistics().TotalChunks != 1 || len(m.Targets()) != 3 {
		t.Errorf("unexpected multi state")
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	ch := testChunk(chunk.ChunkFunction, 3, "fun a()")
	ch.MethodName = "a"
	ch.ClassName = "A"
	_ = c.ProcessChunk(ch)
	_ = c.OnFileComplete(FileSummary{Path: "A.kt", Lines: 10, Chunks: 1})
	_ = c.OnFileComplete(FileSummary{Path: "B.kt", Err: errors.New("unreadable")})
	_ = c.OnComplete()

	out := buf.String()
	for _, want := range []string{"A.a [1-1]", "A.kt: 1 chunks (10 lines)", "B.kt: unreadable", "Files:  2 (1 failed)", "Chunks: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDedup(t *testing.T) {
	next := newRecorder()
	d := NewDedup(next)

	original := testChunk(chunk.ChunkFunction, 10, "fun loadUser(id: String): User = repository.find(id)")
	same := testChunk(chunk.ChunkFunction, 10, original.Content)
	renamedSpacing := testChunk(chunk.ChunkFunction, 10, "fun loadUser(id:String):User=repository.find(id)")
	different := testChunk(chunk.ChunkFunction, 10, "class Cache { val entries = mutableMapOf<Int, Item>() }")

	for _, c := range []*chunk.Chunk{original, same, renamedSpacing, different} {
		if err := d.ProcessChunk(c); err != nil {
			t.Fatal(err)
		}
	}

	if len(next.chunks) != 2 {
		t.Fatalf("expected 2 forwarded chunks, got %d", len(next.chunks))
	}
	if d.Suppressed() != 2 {
		t.Errorf("expected 2 suppressed, got %d", d.Suppressed())
	}
	if next.chunks[1] != different {
		t.Error("distinct chunk should be forwarded")
	}
}

func TestDedupHistoryBound(t *testing.T) {
	d := NewDedup(newRecorder(), WithHistory(2), WithThreshold(0.999))
	for _, s := range []string{
		"val alphaOne = alphaTwo + alphaThree * alphaFour",
		"fun betaOne(betaTwo: BetaThree): BetaFour",
		"class GammaOne(val gammaTwo: GammaThree) : GammaFour",
		"object DeltaOne { const val deltaTwo = DeltaThree.deltaFour }",
	} {
		_ = d.ProcessChunk(testChunk(chunk.ChunkProperty, 1, s))
	}
	if len(d.history) != 2 {
		t.Errorf("expected history of 2, got %d", len(d.history))
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 1}
	if got := cosineSimilarity(a, a); got < 0.999 {
		t.Errorf("identical vectors similarity = %f", got)
	}
	if got := cosineSimilarity(a, []float32{0, 1, 0}); got != 0 {
		t.Errorf("orthogonal vectors similarity = %f", got)
	}
	if got := cosineSimilarity(a, []float32{1}); got != 0 {
		t.Errorf("mismatched dimensions similarity = %f", got)
	}
	if got := cosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero vector similarity = %f", got)
	}
}
