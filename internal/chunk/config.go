package chunk

import "fmt"

// Config bounds the size of produced chunks
type Config struct {
	// LargeElementLines is the line count above which an element is split
	LargeElementLines int `yaml:"large_element_lines" json:"large_element_lines"`
	// SubChunkLines is the window size used when splitting
	SubChunkLines int `yaml:"sub_chunk_lines" json:"sub_chunk_lines"`
	// OverlapLines is shared between consecutive windows
	OverlapLines int `yaml:"overlap_lines" json:"overlap_lines"`
	// MaxSubChunks caps the windows produced for one element
	MaxSubChunks      int `yaml:"max_sub_chunks" json:"max_sub_chunks"`
	MaxContentChars   int `yaml:"max_content_chars" json:"max_content_chars"`
	MaxContextImports int `yaml:"max_context_imports" json:"max_context_imports"`
	MaxChunksPerFile  int `yaml:"max_chunks_per_file" json:"max_chunks_per_file"`
}

// DefaultConfig returns the default chunking limits
func DefaultConfig() Config {
	return Config{
		LargeElementLines: 150,
		SubChunkLines:     100,
		OverlapLines:      10,
		MaxSubChunks:      10,
		MaxContentChars:   8000,
		MaxContextImports: 10,
		MaxChunksPerFile:  500,
	}
}

// Validate checks that the limits are usable
func (c Config) Validate() error {
	if c.LargeElementLines <= 0 {
		return fmt.Errorf("large_element_lines must be positive, got %d", c.LargeElementLines)
	}
	if c.SubChunkLines <= 0 {
		return fmt.Errorf("sub_chunk_lines must be positive, got %d", c.SubChunkLines)
	}
	if c.OverlapLines < 0 || c.OverlapLines >= c.SubChunkLines {
		return fmt.Errorf("overlap_lines must be in [0, %d), got %d", c.SubChunkLines, c.OverlapLines)
	}
	if c.MaxSubChunks <= 0 {
		return fmt.Errorf("max_sub_chunks must be positive, got %d", c.MaxSubChunks)
	}
	if c.MaxContentChars <= 0 {
		return fmt.Errorf("max_content_chars must be positive, got %d", c.MaxContentChars)
	}
	if c.MaxContextImports < 0 {
		return fmt.Errorf("max_context_imports must not be negative, got %d", c.MaxContextImports)
	}
	if c.MaxChunksPerFile <= 0 {
		return fmt.Errorf("max_chunks_per_file must be positive, got %d", c.MaxChunksPerFile)
	}
	return nil
}

// LineRange is an inclusive 1-indexed range of lines
type LineRange struct {
	Start int
	End   int
}

// SubChunkRanges splits [start, end] into overlapping windows. The last
// permitted window always extends to end, so the windows cover the whole range.
func (c Config) SubChunkRanges(start, end int) []LineRange {
	if end < start {
		return nil
	}
	step := c.SubChunkLines - c.OverlapLines
	if step <= 0 {
		step = 1
	}

	var ranges []LineRange
	for s := start; ; s += step {
		e := s + c.SubChunkLines - 1
		if e >= end || len(ranges) == c.MaxSubChunks-1 {
			ranges = append(ranges, LineRange{Start: s, End: end})
			break
		}
		ranges = append(ranges, LineRange{Start: s, End: e})
	}
	return ranges
}
