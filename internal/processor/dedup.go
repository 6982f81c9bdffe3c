package processor

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/viterin/vek/vek32"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

const (
	// DefaultDedupThreshold is the cosine similarity at which two chunks are
	// considered duplicates
	DefaultDedupThreshold = 0.97
	// DefaultDedupHistory bounds how many recent chunks are compared against
	DefaultDedupHistory = 2000

	dedupDims = 256
)

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Dedup drops chunks whose identifier profile is nearly identical to a
// recently forwarded chunk. Comparison uses hashed bag-of-identifier vectors.
type Dedup struct {
	next       Processor
	threshold  float32
	maxHistory int
	history    [][]float32
	hashes     map[string]bool
	stats      *Statistics
	suppressed int
}

// DedupOption configures a Dedup processor
type DedupOption func(*Dedup)

// WithThreshold sets the similarity threshold
func WithThreshold(threshold float32) DedupOption {
	return func(d *Dedup) {
		d.threshold = threshold
	}
}

// WithHistory sets how many recent vectors are kept
func WithHistory(n int) DedupOption {
	return func(d *Dedup) {
		if n > 0 {
			d.maxHistory = n
		}
	}
}

// NewDedup creates a de-duplicating processor in front of next
func NewDedup(next Processor, opts ...DedupOption) *Dedup {
	d := &Dedup{
		next:       next,
		threshold:  DefaultDedupThreshold,
		maxHistory: DefaultDedupHistory,
		hashes:     make(map[string]bool),
		stats:      NewStatistics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessChunk forwards c unless it duplicates a recent chunk
func (d *Dedup) ProcessChunk(c *chunk.Chunk) error {
	if d.hashes[c.ContentHash] {
		d.suppressed++
		return nil
	}

	vec := identifierVector(c.Content)
	if vec != nil {
		for _, prev := range d.history {
			if cosineSimilarity(vec, prev) >= d.threshold {
				d.suppressed++
				return nil
			}
		}
		d.history = append(d.history, vec)
		if len(d.history) > d.maxHistory {
			d.history = d.history[1:]
		}
	}

	d.hashes[c.ContentHash] = true
	d.stats.Record(c)
	return d.next.ProcessChunk(c)
}

// OnFileComplete forwards the summary
func (d *Dedup) OnFileComplete(summary FileSummary) error {
	d.stats.RecordFile(summary)
	return d.next.OnFileComplete(summary)
}

// OnComplete finalizes the downstream processor
func (d *Dedup) OnComplete() error {
	return d.next.OnComplete()
}

// Statistics returns counters over forwarded chunks
func (d *Dedup) Statistics() *Statistics {
	return d.stats
}

// Suppressed returns the number of dropped duplicates
func (d *Dedup) Suppressed() int {
	return d.suppressed
}

// identifierVector hashes the identifiers of content into a fixed-size count
// vector. Returns nil when content has no identifiers.
func identifierVector(content string) []float32 {
	idents := identPattern.FindAllString(content, -1)
	if len(idents) == 0 {
		return nil
	}
	vec := make([]float32, dedupDims)
	h := fnv.New32a()
	for _, id := range idents {
		h.Reset()
		h.Write([]byte(strings.ToLower(id)))
		vec[h.Sum32()%dedupDims]++
	}
	return vec
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	dot := vek32.Dot(a, b)
	normA := float32(math.Sqrt(float64(vek32.Dot(a, a))))
	normB := float32(math.Sqrt(float64(vek32.Dot(b, b))))

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dot / (normA * normB)
	if similarity > 1.0 {
		similarity = 1.0
	}
	return similarity
}
