package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	// modifier keywords that may precede class-like declarations
	classModifiers = `((?:(?:public|private|protected|internal|open|abstract|sealed|final|data|enum|annotation|inner|value|companion|expect|actual|external|fun)\s+)*)`
	// modifier keywords that may precede fun/val/var declarations
	memberModifiers = `((?:(?:public|private|protected|internal|open|abstract|final|override|suspend|inline|tailrec|operator|infix|external|const|lateinit|expect|actual)\s+)*)`
	// optional type parameters, one level of nesting as in "<T : Comparable<T>>",
	// then an optional extension receiver, e.g. "String." or "List<T>."
	receiverGroup = `(?:<(?:[^<>]|<[^<>]*>)*>\s*)?(?:([\w.<>?,*\s]+?)\.)?`
)

var (
	packagePattern    = regexp.MustCompile(`^package\s+([\w.` + "`" + `]+)`)
	importPattern     = regexp.MustCompile(`^import\s+([\w.*` + "`" + `]+(?:\s+as\s+\w+)?)`)
	annotationPattern = regexp.MustCompile(`^@[\w.:]+(?:\(.*\))?\s*$`)
	inlineAnnotation  = regexp.MustCompile(`^@[\w.:]+(?:\([^)]*\))?\s+`)

	classPattern    = regexp.MustCompile(`^` + classModifiers + `(class|interface|object)\b\s*(\w*)`)
	functionPattern = regexp.MustCompile(`^` + memberModifiers + `fun\s+` + receiverGroup + "(`[^`]+`|\\w+)\\s*\\(")
	propertyPattern = regexp.MustCompile(`^` + memberModifiers + `(?:val|var)\s+` + receiverGroup + `(\w+)\b`)
)

// Parser is a line-oriented heuristic parser for Kotlin sources. It tracks
// brace depth instead of building a syntax tree, so unusual constructs are
// skipped rather than reported.
type Parser struct {
	members bool
}

// Option configures a Parser
type Option func(*Parser)

// WithMembers controls whether declarations nested one level inside a class,
// interface or enum body are reported
func WithMembers(enabled bool) Option {
	return func(p *Parser) {
		p.members = enabled
	}
}

// New creates a new Parser
func New(opts ...Option) *Parser {
	p := &Parser{members: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and parses a file, returning the analysis and the file lines
func (p *Parser) ParseFile(path string) (*FileAnalysis, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	lines := SplitLines(string(content))
	return p.Parse(path, lines), lines, nil
}

// SplitLines splits file content into lines. A trailing newline does not
// produce an extra empty line and an empty file has no lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// pendingDecl collects KDoc and annotations seen before a declaration
type pendingDecl struct {
	docStart    int
	doc         []string
	annStart    int
	annotations []string
}

func newPending() pendingDecl {
	return pendingDecl{docStart: -1, annStart: -1}
}

func (p *pendingDecl) start(declIdx int) int {
	if p.docStart >= 0 {
		return p.docStart + 1
	}
	if p.annStart >= 0 {
		return p.annStart + 1
	}
	return declIdx + 1
}

func (p *pendingDecl) addAnnotation(idx int, text string) {
	if p.annStart < 0 {
		p.annStart = idx
	}
	p.annotations = append(p.annotations, text)
}

// containerScope is the top-level class whose body is being scanned
type containerScope struct {
	name string
	end  int // 1-indexed
}

// Parse analyzes the given lines. It never fails; constructs it cannot
// recognize are skipped.
func (p *Parser) Parse(path string, lines []string) *FileAnalysis {
	analysis := &FileAnalysis{
		FilePath:   path,
		TotalLines: len(lines),
		Elements:   []CodeElement{},
	}

	depth := 0
	inComment := false
	collectingDoc := false
	skipUntil := -1
	pending := newPending()
	var container *containerScope

	for i, raw := range lines {
		trimmed := strings.TrimSpace(raw)

		if container != nil && i+1 > container.end {
			container = nil
		}
		matchable := i > skipUntil && (depth == 0 || (depth == 1 && container != nil && p.members))

		if inComment {
			if collectingDoc {
				pending.doc = append(pending.doc, trimmed)
			}
			if strings.Contains(trimmed, "*/") {
				inComment = false
				collectingDoc = false
			}
			continue
		}

		if strings.HasPrefix(trimmed, "/*") {
			isDoc := strings.HasPrefix(trimmed, "/**") && !strings.HasPrefix(trimmed, "/**/")
			if isDoc && matchable {
				pending = newPending()
				pending.docStart = i
				pending.doc = []string{trimmed}
			}
			if !strings.Contains(trimmed[2:], "*/") {
				inComment = true
				collectingDoc = isDoc && matchable
			}
			continue
		}

		if !matchable {
			pending = newPending()
		} else if trimmed != "" && !strings.HasPrefix(trimmed, "//") {
			switch {
			case depth == 0 && packagePattern.MatchString(trimmed):
				analysis.PackageName = strings.Trim(packagePattern.FindStringSubmatch(trimmed)[1], "`")
				pending = newPending()
			case depth == 0 && importPattern.MatchString(trimmed):
				analysis.Imports = append(analysis.Imports, importPattern.FindStringSubmatch(trimmed)[1])
				pending = newPending()
			case annotationPattern.MatchString(trimmed):
				pending.addAnnotation(i, trimmed)
			default:
				el, ok := matchDeclaration(trimmed)
				if ok {
					end, bodyStart := scanElement(lines, i)
					el.DeclarationLine = i + 1
					el.StartLine = pending.start(i)
					el.EndLine = end
					el.Signature = buildSignature(lines, i, end)
					el.DocComment = cleanDoc(pending.doc)
					if anns := append(pending.annotations, el.Annotations...); len(anns) > 0 {
						el.Annotations = anns
					}
					if depth == 1 && container != nil {
						el.Parent = container.name
					}
					analysis.Elements = append(analysis.Elements, el)

					if depth == 0 && el.IsContainer() && end > i+1 {
						container = &containerScope{name: el.Name, end: end}
					}
					skipUntil = bodyStart
				}
				pending = newPending()
			}
		}

		depth += braceDelta(raw)
		if depth < 0 {
			depth = 0
		}
	}

	return analysis
}

// matchDeclaration recognizes a declaration on a single trimmed line
func matchDeclaration(line string) (CodeElement, bool) {
	var annotations []string
	for {
		loc := inlineAnnotation.FindStringIndex(line)
		if loc == nil {
			break
		}
		annotations = append(annotations, strings.TrimSpace(line[:loc[1]]))
		line = line[loc[1]:]
	}

	var el CodeElement
	switch {
	case classPattern.MatchString(line):
		m := classPattern.FindStringSubmatch(line)
		mods := strings.Fields(m[1])
		el = CodeElement{Type: ElementClass, Name: m[3], Modifiers: mods}
		switch {
		case m[2] == "interface":
			el.Type = ElementInterface
		case hasModifier(mods, "enum"):
			el.Type = ElementEnum
		}
		if el.Name == "" {
			if m[2] != "object" || !hasModifier(mods, "companion") {
				return CodeElement{}, false
			}
			el.Name = "Companion"
		}
	case functionPattern.MatchString(line):
		m := functionPattern.FindStringSubmatch(line)
		el = CodeElement{
			Type:      ElementFunction,
			Name:      m[3],
			Modifiers: strings.Fields(m[1]),
			Receiver:  strings.TrimSpace(m[2]),
		}
	case propertyPattern.MatchString(line):
		m := propertyPattern.FindStringSubmatch(line)
		el = CodeElement{
			Type:      ElementProperty,
			Name:      m[3],
			Modifiers: strings.Fields(m[1]),
			Receiver:  strings.TrimSpace(m[2]),
		}
	default:
		return CodeElement{}, false
	}

	if len(el.Modifiers) == 0 {
		el.Modifiers = nil
	}
	el.IsPrivate = hasModifier(el.Modifiers, "private")
	if len(annotations) > 0 {
		el.Annotations = annotations
	}
	return el, true
}

func hasModifier(mods []string, want string) bool {
	for _, m := range mods {
		if m == want {
			return true
		}
	}
	return false
}

// scanElement finds where the declaration starting at startIdx ends. It
// returns the 1-indexed end line and the 0-indexed line holding the opening
// brace of the body (or the last line when there is no body).
func scanElement(lines []string, startIdx int) (int, int) {
	depth, parens := 0, 0
	opened := false
	bodyStart := -1

	for i := startIdx; i < len(lines); i++ {
		code := stripLiterals(lines[i])
		for j := 0; j < len(code); j++ {
			switch code[j] {
			case '(':
				parens++
			case ')':
				if parens > 0 {
					parens--
				}
			case '{':
				if !opened {
					opened = true
					bodyStart = i
				}
				depth++
			case '}':
				depth--
			}
		}

		if opened && depth <= 0 {
			return i + 1, bodyStart
		}
		if !opened && parens == 0 && declarationComplete(lines, i, code) {
			return i + 1, i
		}
	}

	if bodyStart < 0 {
		bodyStart = len(lines) - 1
	}
	return len(lines), bodyStart
}

var (
	continuationSuffixes = []string{"=", ",", ":", "(", "->", "+", "-", "*", "/", "&&", "||", "?:", ".", "<"}
	continuationPrefixes = []string{"{", ".", "?.", "?:", "=", ":", "->", "&&", "||", "+", "where ", "by ", "get(", "set(", "get()", "private set", "internal set", "protected set"}
)

// declarationComplete reports whether a body-less declaration ends on line i
func declarationComplete(lines []string, i int, code string) bool {
	t := strings.TrimSpace(code)
	for _, suffix := range continuationSuffixes {
		if strings.HasSuffix(t, suffix) {
			return false
		}
	}

	for k := i + 1; k < len(lines); k++ {
		next := strings.TrimSpace(stripLiterals(lines[k]))
		if next == "" {
			continue
		}
		for _, prefix := range continuationPrefixes {
			if strings.HasPrefix(next, prefix) {
				return false
			}
		}
		break
	}
	return true
}

// buildSignature joins the declaration text up to the first '{' or '=' found
// outside parentheses and string literals
func buildSignature(lines []string, startIdx, endLine int) string {
	var parts []string
	parens := 0

	for i := startIdx; i < endLine && i < len(lines); i++ {
		line := lines[i]
		inStr := false
		cut := -1
	scan:
		for j := 0; j < len(line); j++ {
			c := line[j]
			switch {
			case inStr:
				if c == '\\' {
					j++
				} else if c == '"' {
					inStr = false
				}
			case c == '"':
				inStr = true
			case c == '/' && j+1 < len(line) && line[j+1] == '/':
				cut = j
				break scan
			case c == '(':
				parens++
			case c == ')':
				if parens > 0 {
					parens--
				}
			case (c == '{' || c == '=') && parens == 0:
				cut = j
				break scan
			}
		}

		if cut >= 0 {
			if part := strings.TrimSpace(line[:cut]); part != "" {
				parts = append(parts, part)
			}
			if line[cut] != '/' {
				break
			}
			continue
		}
		if part := strings.TrimSpace(line); part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, " ")
}

// stripLiterals removes string and char literal contents and comments so
// braces inside them are not counted
func stripLiterals(line string) string {
	var b strings.Builder
	inStr, inChar := false, false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inStr:
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
				b.WriteByte(c)
			}
		case inChar:
			if c == '\\' {
				i++
			} else if c == '\'' {
				inChar = false
				b.WriteByte(c)
			}
		case c == '"':
			inStr = true
			b.WriteByte(c)
		case c == '\'':
			inChar = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return b.String()
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			end := strings.Index(line[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func braceDelta(line string) int {
	code := stripLiterals(line)
	return strings.Count(code, "{") - strings.Count(code, "}")
}

// cleanDoc strips comment markers from collected KDoc lines
func cleanDoc(doc []string) string {
	if len(doc) == 0 {
		return ""
	}
	var out []string
	for _, line := range doc {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "/**")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
