// Package jsscan finds module specifiers and export declarations in
// JavaScript source without building a full syntax tree. It expects plain
// JavaScript (types and JSX already stripped) and skips strings, template
// literals, comments and regular expression literals.
package jsscan

import (
	"sort"
	"strings"
)

// ImportKind distinguishes the syntactic form a specifier appeared in.
type ImportKind int

const (
	// ImportStatement is `import ... from "x"` or `import "x"`.
	ImportStatement ImportKind = iota
	// ExportFrom is `export ... from "x"`.
	ExportFrom
	// DynamicImport is `import("x")`.
	DynamicImport
	// RequireCall is `require("x")`.
	RequireCall
)

// Import is one module specifier occurrence. Start and End delimit the
// specifier text between its quotes.
type Import struct {
	Specifier string
	Kind      ImportKind
	Start     int
	End       int
}

// ExportName is one entry of an export list: `local as exported`.
type ExportName struct {
	Local    string
	Exported string
}

// Export is an export declaration relevant to CommonJS wrapping: star
// re-exports and brace lists (local or re-exported).
type Export struct {
	// Star is set for `export * from "x"` and `export * as ns from "x"`.
	Star bool
	// Namespace is the name in `export * as ns from "x"`.
	Namespace string
	Names     []ExportName
	// From is the re-export source; empty for local export lists.
	From string
}

// Result holds everything found in one source.
type Result struct {
	Imports []Import
	Exports []Export
}

// Specifiers returns the distinct specifiers in first-seen order.
func (r *Result) Specifiers() []string {
	seen := make(map[string]bool, len(r.Imports))
	var out []string
	for _, imp := range r.Imports {
		if !seen[imp.Specifier] {
			seen[imp.Specifier] = true
			out = append(out, imp.Specifier)
		}
	}
	return out
}

// Scan walks code once and collects imports and exports.
func Scan(code string) *Result {
	s := &scanner{src: code}
	s.run()
	return &s.res
}

// Rewrite replaces each import specifier for which mapping returns ok with
// the returned replacement. Quotes are preserved.
func Rewrite(code string, imports []Import, mapping func(spec string) (string, bool)) string {
	sorted := make([]Import, len(imports))
	copy(sorted, imports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	b.Grow(len(code))
	last := 0
	for _, imp := range sorted {
		replacement, ok := mapping(imp.Specifier)
		if !ok || imp.Start < last {
			continue
		}
		b.WriteString(code[last:imp.Start])
		b.WriteString(escapeString(replacement))
		last = imp.End
	}
	b.WriteString(code[last:])
	return b.String()
}

func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `\'`, "\n", `\n`)
	return r.Replace(s)
}

type scanner struct {
	src string
	pos int
	res Result
	// prev is the last significant token kind, used to tell a regex
	// literal from a division operator.
	prevIdent  string
	prevPunct  byte
	afterValue bool
}

func (s *scanner) run() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case c == '\'' || c == '"':
			s.skipString(c)
			s.afterValue = true
		case c == '`':
			s.skipTemplate()
			s.afterValue = true
		case c == '/':
			if s.afterValue {
				s.pos++
				s.afterValue = false
			} else {
				s.skipRegex()
				s.afterValue = true
			}
		case isIdentStart(c):
			s.ident()
		case isSpace(c):
			s.pos++
		default:
			s.pos++
			s.prevPunct = c
			s.prevIdent = ""
			s.afterValue = c == ')' || c == ']' || c == '}'
		}
	}
}

func (s *scanner) ident() {
	start := s.pos
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.pos++
	}
	word := s.src[start:s.pos]
	memberAccess := s.prevPunct == '.' && s.prevIdent == ""

	if !memberAccess {
		switch word {
		case "import":
			s.importDecl()
		case "export":
			s.exportDecl()
		case "require":
			s.requireCall()
		}
	}

	s.prevIdent = word
	s.prevPunct = 0
	s.afterValue = !isKeywordBeforeExpression(word)
}

func (s *scanner) importDecl() {
	p := s.skipSpaceAndComments(s.pos)
	if p >= len(s.src) {
		return
	}
	switch s.src[p] {
	case '(':
		if spec, start, end, ok := s.stringAt(s.skipSpaceAndComments(p + 1)); ok {
			q := s.skipSpaceAndComments(end + 1)
			if q < len(s.src) && (s.src[q] == ')' || s.src[q] == ',') {
				s.res.Imports = append(s.res.Imports, Import{Specifier: spec, Kind: DynamicImport, Start: start, End: end})
			}
		}
		return
	case '.':
		// import.meta
		return
	case '\'', '"':
		if spec, start, end, ok := s.stringAt(p); ok {
			s.res.Imports = append(s.res.Imports, Import{Specifier: spec, Kind: ImportStatement, Start: start, End: end})
			s.pos = end + 1
		}
		return
	case '{', '*':
	default:
		if !isIdentStart(s.src[p]) {
			return
		}
	}
	if spec, start, end, ok := s.findFrom(p); ok {
		s.res.Imports = append(s.res.Imports, Import{Specifier: spec, Kind: ImportStatement, Start: start, End: end})
		s.pos = end + 1
	}
}

func (s *scanner) exportDecl() {
	p := s.skipSpaceAndComments(s.pos)
	if p >= len(s.src) {
		return
	}
	switch s.src[p] {
	case '*':
		exp := Export{Star: true}
		q := s.skipSpaceAndComments(p + 1)
		if hasWordAt(s.src, q, "as") {
			q = s.skipSpaceAndComments(q + 2)
			nameEnd := q
			for nameEnd < len(s.src) && isIdentPart(s.src[nameEnd]) {
				nameEnd++
			}
			exp.Namespace = s.src[q:nameEnd]
			q = nameEnd
		}
		spec, start, end, ok := s.findFrom(q)
		if !ok {
			return
		}
		exp.From = spec
		s.res.Exports = append(s.res.Exports, exp)
		s.res.Imports = append(s.res.Imports, Import{Specifier: spec, Kind: ExportFrom, Start: start, End: end})
		s.pos = end + 1
	case '{':
		close := strings.IndexByte(s.src[p:], '}')
		if close < 0 {
			return
		}
		names := parseExportList(s.src[p+1 : p+close])
		exp := Export{Names: names}
		q := s.skipSpaceAndComments(p + close + 1)
		s.pos = p + close + 1
		if hasWordAt(s.src, q, "from") {
			spec, start, end, ok := s.stringAt(s.skipSpaceAndComments(q + 4))
			if ok {
				exp.From = spec
				s.res.Imports = append(s.res.Imports, Import{Specifier: spec, Kind: ExportFrom, Start: start, End: end})
				s.pos = end + 1
			}
		}
		s.res.Exports = append(s.res.Exports, exp)
	}
}

func (s *scanner) requireCall() {
	p := s.skipSpaceAndComments(s.pos)
	if p >= len(s.src) || s.src[p] != '(' {
		return
	}
	spec, start, end, ok := s.stringAt(s.skipSpaceAndComments(p + 1))
	if !ok {
		return
	}
	q := s.skipSpaceAndComments(end + 1)
	if q < len(s.src) && s.src[q] == ')' {
		s.res.Imports = append(s.res.Imports, Import{Specifier: spec, Kind: RequireCall, Start: start, End: end})
		s.pos = q + 1
		s.afterValue = true
	}
}

// findFrom scans forward from p to the `from "x"` clause that ends an
// import/export statement, stopping at a semicolon.
func (s *scanner) findFrom(p int) (string, int, int, bool) {
	depth := 0
	for p < len(s.src) {
		c := s.src[p]
		switch {
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth < 0 {
				return "", 0, 0, false
			}
		case c == ';' && depth == 0:
			return "", 0, 0, false
		case c == '/' && s.peekAt(p+1) == '/', c == '/' && s.peekAt(p+1) == '*':
			p = s.skipSpaceAndComments(p)
			continue
		case depth == 0 && hasWordAt(s.src, p, "from") && (p == 0 || !isIdentPart(s.src[p-1])):
			q := s.skipSpaceAndComments(p + 4)
			if spec, start, end, ok := s.stringAt(q); ok {
				return spec, start, end, true
			}
		}
		p++
	}
	return "", 0, 0, false
}

// stringAt reads a quoted string literal starting at p. It returns the
// unquoted contents and the offsets of the first and last+1 content bytes.
func (s *scanner) stringAt(p int) (string, int, int, bool) {
	if p >= len(s.src) || (s.src[p] != '\'' && s.src[p] != '"') {
		return "", 0, 0, false
	}
	quote := s.src[p]
	i := p + 1
	for i < len(s.src) && s.src[i] != quote {
		if s.src[i] == '\\' || s.src[i] == '\n' {
			return "", 0, 0, false
		}
		i++
	}
	if i >= len(s.src) {
		return "", 0, 0, false
	}
	return s.src[p+1 : i], p + 1, i, true
}

func (s *scanner) skipSpaceAndComments(p int) int {
	for p < len(s.src) {
		switch {
		case isSpace(s.src[p]):
			p++
		case s.src[p] == '/' && s.peekAt(p+1) == '/':
			for p < len(s.src) && s.src[p] != '\n' {
				p++
			}
		case s.src[p] == '/' && s.peekAt(p+1) == '*':
			end := strings.Index(s.src[p+2:], "*/")
			if end < 0 {
				return len(s.src)
			}
			p += end + 4
		default:
			return p
		}
	}
	return p
}

func (s *scanner) skipLineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

func (s *scanner) skipBlockComment() {
	end := strings.Index(s.src[s.pos+2:], "*/")
	if end < 0 {
		s.pos = len(s.src)
		return
	}
	s.pos += end + 4
}

func (s *scanner) skipString(quote byte) {
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '\\' {
			s.pos += 2
			continue
		}
		s.pos++
		if c == quote || c == '\n' {
			return
		}
	}
}

// skipTemplate skips a template literal, scanning nested ${ } expressions
// so imports inside them are still found.
func (s *scanner) skipTemplate() {
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
		case c == '`':
			s.pos++
			return
		case c == '$' && s.peek(1) == '{':
			s.pos += 2
			s.skipBalancedExpression()
		default:
			s.pos++
		}
	}
}

// skipBalancedExpression consumes tokens until the brace that closes the
// current template substitution.
func (s *scanner) skipBalancedExpression() {
	depth := 1
	for s.pos < len(s.src) && depth > 0 {
		c := s.src[s.pos]
		switch {
		case c == '{':
			depth++
			s.pos++
		case c == '}':
			depth--
			s.pos++
		case c == '\'' || c == '"':
			s.skipString(c)
		case c == '`':
			s.skipTemplate()
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case isIdentStart(c):
			s.ident()
		default:
			s.pos++
		}
	}
}

func (s *scanner) skipRegex() {
	s.pos++
	inClass := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == '\n':
			return
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			s.pos++
			for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
				s.pos++
			}
			return
		}
		s.pos++
	}
}

func (s *scanner) peek(n int) byte {
	return s.peekAt(s.pos + n)
}

func (s *scanner) peekAt(p int) byte {
	if p < len(s.src) {
		return s.src[p]
	}
	return 0
}

func parseExportList(list string) []ExportName {
	var names []ExportName
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(stripComments(part))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "type" && len(fields) > 1 {
			continue
		}
		name := ExportName{Local: unquote(fields[0]), Exported: unquote(fields[0])}
		if len(fields) >= 3 && fields[1] == "as" {
			name.Exported = unquote(fields[2])
		}
		names = append(names, name)
	}
	return names
}

func stripComments(s string) string {
	for {
		start := strings.Index(s, "/*")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "*/")
		if end < 0 {
			return s[:start]
		}
		s = s[:start] + " " + s[start+end+2:]
	}
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func hasWordAt(code string, i int, word string) bool {
	if i < 0 || i+len(word) > len(code) || code[i:i+len(word)] != word {
		return false
	}
	end := i + len(word)
	return end >= len(code) || !isIdentPart(code[end])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// isKeywordBeforeExpression reports whether a slash following word starts
// a regex literal rather than a division.
func isKeywordBeforeExpression(word string) bool {
	switch word {
	case "return", "typeof", "instanceof", "in", "of", "new", "delete", "void",
		"throw", "case", "do", "else", "yield", "await":
		return true
	}
	return false
}
