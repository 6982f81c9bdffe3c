package processor

import (
	"sort"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// Statistics holds streaming counters over processed chunks and files
type Statistics struct {
	TotalChunks     int                     `json:"total_chunks" yaml:"total_chunks"`
	TotalFiles      int                     `json:"total_files" yaml:"total_files"`
	FailedFiles     int                     `json:"failed_files" yaml:"failed_files"`
	TotalTokens     int                     `json:"total_tokens" yaml:"total_tokens"`
	TotalLines      int                     `json:"total_lines" yaml:"total_lines"`
	ByType          map[chunk.ChunkType]int `json:"by_type" yaml:"by_type"`
	MinTokens       int                     `json:"min_tokens" yaml:"min_tokens"`
	MaxTokens       int                     `json:"max_tokens" yaml:"max_tokens"`
	TruncatedChunks int                     `json:"truncated_chunks" yaml:"truncated_chunks"`
	SubChunks       int                     `json:"sub_chunks" yaml:"sub_chunks"`
}

// NewStatistics creates empty statistics
func NewStatistics() *Statistics {
	return &Statistics{ByType: make(map[chunk.ChunkType]int)}
}

// Record adds a chunk to the counters
func (s *Statistics) Record(c *chunk.Chunk) {
	if s.ByType == nil {
		s.ByType = make(map[chunk.ChunkType]int)
	}
	if s.TotalChunks == 0 || c.TokenEstimate < s.MinTokens {
		s.MinTokens = c.TokenEstimate
	}
	if c.TokenEstimate > s.MaxTokens {
		s.MaxTokens = c.TokenEstimate
	}
	s.TotalChunks++
	s.TotalTokens += c.TokenEstimate
	s.ByType[c.Type]++
	if c.Truncated {
		s.TruncatedChunks++
	}
	if c.Type == chunk.ChunkSubChunk {
		s.SubChunks++
	}
}

// RecordFile adds a completed file to the counters
func (s *Statistics) RecordFile(summary FileSummary) {
	s.TotalFiles++
	s.TotalLines += summary.Lines
	if summary.Failed() {
		s.FailedFiles++
	}
}

// AverageTokens returns the mean token estimate per chunk
func (s *Statistics) AverageTokens() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.TotalTokens) / float64(s.TotalChunks)
}

// Merge adds other's counters into s
func (s *Statistics) Merge(other *Statistics) {
	if other == nil || (other.TotalChunks == 0 && other.TotalFiles == 0) {
		return
	}
	if other.TotalChunks > 0 {
		if s.TotalChunks == 0 || other.MinTokens < s.MinTokens {
			s.MinTokens = other.MinTokens
		}
		if other.MaxTokens > s.MaxTokens {
			s.MaxTokens = other.MaxTokens
		}
	}
	if s.ByType == nil {
		s.ByType = make(map[chunk.ChunkType]int)
	}
	for t, n := range other.ByType {
		s.ByType[t] += n
	}
	s.TotalChunks += other.TotalChunks
	s.TotalFiles += other.TotalFiles
	s.FailedFiles += other.FailedFiles
	s.TotalTokens += other.TotalTokens
	s.TotalLines += other.TotalLines
	s.TruncatedChunks += other.TruncatedChunks
	s.SubChunks += other.SubChunks
}

// TypeCount is one histogram bucket
type TypeCount struct {
	Type  chunk.ChunkType `json:"type"`
	Count int             `json:"count"`
}

// SortedTypes returns the type histogram ordered by descending count, then
// by type name
func (s *Statistics) SortedTypes() []TypeCount {
	out := make([]TypeCount, 0, len(s.ByType))
	for t, n := range s.ByType {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
