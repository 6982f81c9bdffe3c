package processor

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// FilterOptions are the predicates a chunk must satisfy to be forwarded.
// Zero values disable the corresponding predicate.
type FilterOptions struct {
	// Types keeps chunks of these types. A sub-chunk matches the type of the
	// element it was cut from.
	Types          []chunk.ChunkType `yaml:"types,omitempty" json:"types,omitempty"`
	MinTokens      int               `yaml:"min_tokens,omitempty" json:"min_tokens,omitempty"`
	MaxTokens      int               `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	ExcludePrivate bool              `yaml:"exclude_private,omitempty" json:"exclude_private,omitempty"`
	// PathPatterns are slash-separated globs matched against the chunk's
	// file path or its base name
	PathPatterns []string `yaml:"path_patterns,omitempty" json:"path_patterns,omitempty"`
}

// IsZero reports whether no predicate is configured
func (o FilterOptions) IsZero() bool {
	return len(o.Types) == 0 && o.MinTokens == 0 && o.MaxTokens == 0 && !o.ExcludePrivate && len(o.PathPatterns) == 0
}

// Validate checks glob syntax and token bounds
func (o FilterOptions) Validate() error {
	for _, p := range o.PathPatterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
	}
	if o.MaxTokens > 0 && o.MinTokens > o.MaxTokens {
		return fmt.Errorf("min tokens %d exceeds max tokens %d", o.MinTokens, o.MaxTokens)
	}
	for _, t := range o.Types {
		if !chunk.IsValidChunkType(t) {
			return fmt.Errorf("invalid chunk type: %s", t)
		}
	}
	return nil
}

// Filter forwards chunks that satisfy every configured predicate
type Filter struct {
	opts     FilterOptions
	types    map[chunk.ChunkType]bool
	next     Processor
	stats    *Statistics
	filtered int
}

// NewFilter creates a filter in front of next
func NewFilter(opts FilterOptions, next Processor) *Filter {
	f := &Filter{
		opts:  opts,
		next:  next,
		stats: NewStatistics(),
	}
	if len(opts.Types) > 0 {
		f.types = make(map[chunk.ChunkType]bool, len(opts.Types))
		for _, t := range opts.Types {
			f.types[t] = true
		}
	}
	return f
}

// Matches reports whether c passes every predicate
func (f *Filter) Matches(c *chunk.Chunk) bool {
	if f.types != nil && !f.types[c.Type] {
		if c.Type != chunk.ChunkSubChunk || c.ElementType == "" || !f.types[chunk.TypeForElement(c.ElementType)] {
			return false
		}
	}
	if f.opts.MinTokens > 0 && c.TokenEstimate < f.opts.MinTokens {
		return false
	}
	if f.opts.MaxTokens > 0 && c.TokenEstimate > f.opts.MaxTokens {
		return false
	}
	if f.opts.ExcludePrivate && c.IsPrivate {
		return false
	}
	if len(f.opts.PathPatterns) > 0 && !matchPath(f.opts.PathPatterns, c.FilePath) {
		return false
	}
	return true
}

func matchPath(patterns []string, file string) bool {
	slashed := filepath.ToSlash(file)
	base := path.Base(slashed)
	for _, p := range patterns {
		if ok, _ := path.Match(p, slashed); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// ProcessChunk forwards c when it matches
func (f *Filter) ProcessChunk(c *chunk.Chunk) error {
	if !f.Matches(c) {
		f.filtered++
		return nil
	}
	f.stats.Record(c)
	return f.next.ProcessChunk(c)
}

// OnFileComplete forwards the summary
func (f *Filter) OnFileComplete(summary FileSummary) error {
	f.stats.RecordFile(summary)
	return f.next.OnFileComplete(summary)
}

// OnComplete finalizes the downstream processor
func (f *Filter) OnComplete() error {
	return f.next.OnComplete()
}

// Statistics returns counters over forwarded chunks
func (f *Filter) Statistics() *Statistics {
	return f.stats
}

// Filtered returns the number of dropped chunks
func (f *Filter) Filtered() int {
	return f.filtered
}
