package jsscan

import "strings"

// ReplaceCalls replaces every call expression `callee(...)` in code with
// replacement. Parentheses are matched with strings, template literals and
// comments inside the argument list taken into account. Unbalanced calls
// are left untouched.
func ReplaceCalls(code, callee, replacement string) string {
	var b strings.Builder
	last := 0
	searchFrom := 0
	for {
		idx := strings.Index(code[searchFrom:], callee)
		if idx < 0 {
			break
		}
		start := searchFrom + idx
		searchFrom = start + len(callee)
		if start > 0 && (isIdentPart(code[start-1]) || code[start-1] == '.') {
			continue
		}
		p := searchFrom
		for p < len(code) && isSpace(code[p]) {
			p++
		}
		if p >= len(code) || code[p] != '(' {
			continue
		}
		end, ok := matchParen(code, p)
		if !ok {
			continue
		}
		b.WriteString(code[last:start])
		b.WriteString(replacement)
		last = end + 1
		searchFrom = last
	}
	if last == 0 {
		return code
	}
	b.WriteString(code[last:])
	return b.String()
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(code string, open int) (int, bool) {
	s := &scanner{src: code, pos: open + 1}
	depth := 1
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '(':
			depth++
			s.pos++
		case c == ')':
			depth--
			if depth == 0 {
				return s.pos, true
			}
			s.pos++
		case c == '\'' || c == '"':
			s.skipString(c)
		case c == '`':
			s.skipTemplate()
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		default:
			s.pos++
		}
	}
	return 0, false
}
