package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mindweaver/ragchunk/internal/chunk"
	"github.com/mindweaver/ragchunk/internal/processor"
)

const reportTopChunks = 10

// largeChunk is a compact record of one of the biggest chunks seen
type largeChunk struct {
	name   string
	file   string
	start  int
	end    int
	tokens int
}

// ReportExporter writes a Markdown statistics report on completion
type ReportExporter struct {
	path        string
	projectName string
	stats       *processor.Statistics
	largest     []largeChunk
	failed      []string
	done        bool
}

// NewReportExporter creates a report exporter writing to path
func NewReportExporter(path, projectName string) *ReportExporter {
	return &ReportExporter{
		path:        path,
		projectName: projectName,
		stats:       processor.NewStatistics(),
	}
}

// ProcessChunk records c
func (e *ReportExporter) ProcessChunk(c *chunk.Chunk) error {
	e.stats.Record(c)
	e.trackLargest(c)
	return nil
}

func (e *ReportExporter) trackLargest(c *chunk.Chunk) {
	if len(e.largest) == reportTopChunks && c.TokenEstimate <= e.largest[len(e.largest)-1].tokens {
		return
	}
	e.largest = append(e.largest, largeChunk{
		name:   c.DisplayName(),
		file:   c.FilePath,
		start:  c.StartLine,
		end:    c.EndLine,
		tokens: c.TokenEstimate,
	})
	sort.SliceStable(e.largest, func(i, j int) bool {
		return e.largest[i].tokens > e.largest[j].tokens
	})
	if len(e.largest) > reportTopChunks {
		e.largest = e.largest[:reportTopChunks]
	}
}

// OnFileComplete records the file
func (e *ReportExporter) OnFileComplete(summary processor.FileSummary) error {
	e.stats.RecordFile(summary)
	if summary.Failed() {
		e.failed = append(e.failed, fmt.Sprintf("%s: %v", summary.Path, summary.Err))
	}
	return nil
}

// OnComplete renders and writes the report
func (e *ReportExporter) OnComplete() error {
	if e.done {
		return nil
	}
	e.done = true
	return writeFileAtomic(e.path, []byte(e.Render()))
}

// Render returns the Markdown report for the data collected so far
func (e *ReportExporter) Render() string {
	var b strings.Builder
	s := e.stats
	caser := cases.Title(language.English)

	title := "Chunking Report"
	if e.projectName != "" {
		title = fmt.Sprintf("Chunking Report: %s", e.projectName)
	}
	b.WriteString(fmt.Sprintf("# %s\n\n", title))
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	b.WriteString(fmt.Sprintf("| Files | %d |\n", s.TotalFiles))
	b.WriteString(fmt.Sprintf("| Failed Files | %d |\n", s.FailedFiles))
	b.WriteString(fmt.Sprintf("| Lines | %d |\n", s.TotalLines))
	b.WriteString(fmt.Sprintf("| Chunks | %d |\n", s.TotalChunks))
	b.WriteString(fmt.Sprintf("| Sub-chunks | %d |\n", s.SubChunks))
	b.WriteString(fmt.Sprintf("| Truncated | %d |\n", s.TruncatedChunks))
	b.WriteString(fmt.Sprintf("| Tokens | %d |\n", s.TotalTokens))
	b.WriteString(fmt.Sprintf("| Average Tokens | %.1f |\n", s.AverageTokens()))
	b.WriteString(fmt.Sprintf("| Min / Max Tokens | %d / %d |\n\n", s.MinTokens, s.MaxTokens))

	if len(s.ByType) > 0 {
		b.WriteString("## By Type\n\n")
		b.WriteString("| Type | Count |\n")
		b.WriteString("|------|-------|\n")
		for _, tc := range s.SortedTypes() {
			name := caser.String(strings.ReplaceAll(strings.ToLower(string(tc.Type)), "_", " "))
			b.WriteString(fmt.Sprintf("| %s | %d |\n", name, tc.Count))
		}
		b.WriteString("\n")
	}

	if len(e.largest) > 0 {
		b.WriteString("## Largest Chunks\n\n")
		for i, lc := range e.largest {
			b.WriteString(fmt.Sprintf("%d. `%s` %s:%d-%d (~%d tokens)\n", i+1, lc.name, lc.file, lc.start, lc.end, lc.tokens))
		}
		b.WriteString("\n")
	}

	if len(e.failed) > 0 {
		b.WriteString("## Failed Files\n\n")
		for _, f := range e.failed {
			b.WriteString(fmt.Sprintf("- %s\n", f))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Statistics returns the collected counters
func (e *ReportExporter) Statistics() *processor.Statistics {
	return e.stats
}
