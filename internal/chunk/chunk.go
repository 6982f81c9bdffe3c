package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mindweaver/ragchunk/internal/parser"
)

// ChunkType represents the type of code chunk
type ChunkType string

const (
	// ChunkClass represents a class, object or companion object
	ChunkClass ChunkType = "CLASS"
	// ChunkInterface represents an interface definition
	ChunkInterface ChunkType = "INTERFACE"
	// ChunkEnum represents an enum class
	ChunkEnum ChunkType = "ENUM"
	// ChunkFunction represents a function or method
	ChunkFunction ChunkType = "FUNCTION"
	// ChunkProperty represents a val/var declaration
	ChunkProperty ChunkType = "PROPERTY"
	// ChunkSubChunk is one window of an element too large for a single chunk
	ChunkSubChunk ChunkType = "SUB_CHUNK"
	// ChunkFile covers a file in which no declarations were recognised
	ChunkFile ChunkType = "FILE"
)

// ValidChunkTypes contains all valid chunk types
var ValidChunkTypes = []ChunkType{
	ChunkClass,
	ChunkInterface,
	ChunkEnum,
	ChunkFunction,
	ChunkProperty,
	ChunkSubChunk,
	ChunkFile,
}

// IsValidChunkType checks if a chunk type is valid
func IsValidChunkType(t ChunkType) bool {
	for _, valid := range ValidChunkTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// ParseChunkType converts user input such as "function" or "sub_chunk" to a
// ChunkType
func ParseChunkType(s string) (ChunkType, error) {
	t := ChunkType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !IsValidChunkType(t) {
		return "", fmt.Errorf("invalid chunk type: %s", s)
	}
	return t, nil
}

// TypeForElement maps a parsed element type to its chunk type
func TypeForElement(t parser.ElementType) ChunkType {
	switch t {
	case parser.ElementClass:
		return ChunkClass
	case parser.ElementInterface:
		return ChunkInterface
	case parser.ElementEnum:
		return ChunkEnum
	case parser.ElementFunction:
		return ChunkFunction
	case parser.ElementProperty:
		return ChunkProperty
	}
	return ChunkFile
}

// Context carries file-level information shared by every chunk of a file
type Context struct {
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
	// Imports is truncated to the configured maximum
	Imports      []string `json:"imports,omitempty" yaml:"imports,omitempty"`
	TotalImports int      `json:"total_imports" yaml:"total_imports"`
}

// Chunk is a bounded slice of source text with metadata. Chunks are not
// modified after the chunker emits them.
type Chunk struct {
	// ID is derived from file path, line range and content
	ID       string `json:"id" yaml:"id"`
	FilePath string `json:"file_path" yaml:"file_path"`
	// ClassName is the enclosing or declared class
	ClassName string `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	// MethodName is set for functions
	MethodName  string    `json:"method_name,omitempty" yaml:"method_name,omitempty"`
	ElementName string    `json:"element_name,omitempty" yaml:"element_name,omitempty"`
	Type        ChunkType `json:"type" yaml:"type"`
	// ElementType is the parsed element type, kept for sub-chunks
	ElementType   parser.ElementType `json:"element_type,omitempty" yaml:"element_type,omitempty"`
	StartLine     int                `json:"start_line" yaml:"start_line"`
	EndLine       int                `json:"end_line" yaml:"end_line"`
	Content       string             `json:"content" yaml:"content"`
	Signature     string             `json:"signature,omitempty" yaml:"signature,omitempty"`
	TokenEstimate int                `json:"token_estimate" yaml:"token_estimate"`
	Context       Context            `json:"context" yaml:"context"`
	// ParentID identifies the whole element a sub-chunk was cut from
	ParentID    string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Part        int    `json:"part,omitempty" yaml:"part,omitempty"`
	Parts       int    `json:"parts,omitempty" yaml:"parts,omitempty"`
	IsPrivate   bool   `json:"is_private" yaml:"is_private"`
	Truncated   bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	ContentHash string `json:"content_hash" yaml:"content_hash"`
}

// GenerateID generates a unique ID for a chunk based on file path, line range
// and content
func GenerateID(file string, startLine, endLine int, content string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", file, startLine, endLine, content)))
	return hex.EncodeToString(hash[:16]) // Use first 16 bytes (32 hex chars)
}

// GenerateContentHash generates a hash of the content for change detection
func GenerateContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:8]) // Use first 8 bytes (16 hex chars)
}

// LineCount returns the number of lines in the chunk
func (c *Chunk) LineCount() int {
	return c.EndLine - c.StartLine + 1
}

// DisplayName returns the most specific name available for the chunk
func (c *Chunk) DisplayName() string {
	switch {
	case c.MethodName != "" && c.ClassName != "":
		return c.ClassName + "." + c.MethodName
	case c.MethodName != "":
		return c.MethodName
	case c.ElementName != "" && c.ClassName != "" && c.ClassName != c.ElementName:
		return c.ClassName + "." + c.ElementName
	case c.ElementName != "":
		return c.ElementName
	}
	return c.ClassName
}

// String returns a human-readable representation of the chunk
func (c *Chunk) String() string {
	s := fmt.Sprintf("%s:%s %s [%d-%d]", c.FilePath, c.DisplayName(), c.Type, c.StartLine, c.EndLine)
	if c.Parts > 0 {
		s += fmt.Sprintf(" part %d/%d", c.Part, c.Parts)
	}
	return s
}
