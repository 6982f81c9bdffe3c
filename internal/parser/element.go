package parser

import "fmt"

// ElementType represents the kind of a parsed declaration
type ElementType string

const (
	// ElementClass covers class, data class, object and companion object
	ElementClass ElementType = "CLASS"
	// ElementInterface covers interface and fun interface
	ElementInterface ElementType = "INTERFACE"
	// ElementEnum represents an enum class
	ElementEnum ElementType = "ENUM"
	// ElementFunction represents a fun declaration
	ElementFunction ElementType = "FUNCTION"
	// ElementProperty represents a val/var declaration
	ElementProperty ElementType = "PROPERTY"
)

// CodeElement is a declaration found by the parser. Lines are 1-indexed and
// inclusive.
type CodeElement struct {
	Type            ElementType `json:"type" yaml:"type"`
	Name            string      `json:"name" yaml:"name"`
	StartLine       int         `json:"start_line" yaml:"start_line"`
	EndLine         int         `json:"end_line" yaml:"end_line"`
	DeclarationLine int         `json:"declaration_line" yaml:"declaration_line"`
	Signature       string      `json:"signature" yaml:"signature"`
	Modifiers       []string    `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	IsPrivate       bool        `json:"is_private" yaml:"is_private"`
	DocComment      string      `json:"doc_comment,omitempty" yaml:"doc_comment,omitempty"`
	Annotations     []string    `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	// Parent is the enclosing class for member declarations
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	// Receiver is the extension receiver type, e.g. String in String.shout()
	Receiver string `json:"receiver,omitempty" yaml:"receiver,omitempty"`
}

// LineCount returns the number of lines the element spans
func (e *CodeElement) LineCount() int {
	return e.EndLine - e.StartLine + 1
}

// IsContainer reports whether members may be declared inside the element
func (e *CodeElement) IsContainer() bool {
	switch e.Type {
	case ElementClass, ElementInterface, ElementEnum:
		return true
	}
	return false
}

// QualifiedName returns Parent.Name for members and Name otherwise
func (e *CodeElement) QualifiedName() string {
	if e.Parent == "" {
		return e.Name
	}
	return e.Parent + "." + e.Name
}

// String returns a human-readable representation of the element
func (e *CodeElement) String() string {
	return fmt.Sprintf("%s %s [%d-%d]", e.Type, e.QualifiedName(), e.StartLine, e.EndLine)
}

// FileAnalysis is the result of parsing one source file
type FileAnalysis struct {
	FilePath    string        `json:"file_path" yaml:"file_path"`
	PackageName string        `json:"package,omitempty" yaml:"package,omitempty"`
	Imports     []string      `json:"imports,omitempty" yaml:"imports,omitempty"`
	Elements    []CodeElement `json:"elements" yaml:"elements"`
	TotalLines  int           `json:"total_lines" yaml:"total_lines"`
}

// CountByType returns how many elements of each type were found
func (a *FileAnalysis) CountByType() map[ElementType]int {
	counts := make(map[ElementType]int)
	for i := range a.Elements {
		counts[a.Elements[i].Type]++
	}
	return counts
}
