package transform

import (
	"sort"
	"strings"
)

// normalizeFlow rewrites Flow-only type syntax into forms the TypeScript
// parser accepts: maybe types, exact objects, variance sigils, type casts,
// generic bounds, object type spreads, unnamed indexers, existential types
// and %checks. Everything outside type positions is left byte for byte.
func normalizeFlow(code string) string {
	toks := tokenizeFlow(code)
	a := &flowAnalyzer{toks: toks, frames: []*flowFrame{{}}}
	a.run()
	return applyEdits(code, a.edits)
}

type flowTokKind int

const (
	flowIdent flowTokKind = iota
	flowPunct
	flowString
	flowNumber
	flowTemplate
	flowRegex
	flowJSX
)

type flowTok struct {
	kind       flowTokKind
	text       string
	start, end int
	// nl is set when a line break precedes the token.
	nl bool
}

type edit struct {
	start, end int
	text       string
}

func applyEdits(code string, edits []edit) string {
	if len(edits) == 0 {
		return code
	}
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end < edits[j].end
	})
	var b strings.Builder
	b.Grow(len(code))
	last := 0
	for _, e := range edits {
		if e.start < last {
			continue
		}
		b.WriteString(code[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(code[last:])
	return b.String()
}

// tokenizer

var (
	flowPunct3 = []string{"...", "===", "!==", "**=", "??=", "&&=", "||="}
	flowPunct2 = []string{"=>", "?.", "??", "{|", "&&", "||", "|}", "==", "!=", "<=", "++", "--",
		"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "**", "<<"}
)

type flowLexer struct {
	src  string
	pos  int
	toks []flowTok
	nl   bool
}

func tokenizeFlow(src string) []flowTok {
	l := &flowLexer{src: src}
	for l.pos < len(l.src) {
		l.step()
	}
	return l.toks
}

func (l *flowLexer) emit(kind flowTokKind, start int) flowTok {
	t := flowTok{kind: kind, text: l.src[start:l.pos], start: start, end: l.pos, nl: l.nl}
	l.toks = append(l.toks, t)
	l.nl = false
	return t
}

func (l *flowLexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

// skipTrivia consumes whitespace and comments, recording line breaks.
func (l *flowLexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.nl = true
			l.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case c == '/' && l.peek(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.peek(1) == '*':
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				l.pos = len(l.src)
				return
			}
			if strings.Contains(l.src[l.pos:l.pos+2+end], "\n") {
				l.nl = true
			}
			l.pos += end + 4
		default:
			return
		}
	}
}

// step reads one token, or one whole JSX element.
func (l *flowLexer) step() {
	l.skipTrivia()
	if l.pos >= len(l.src) {
		return
	}
	start := l.pos
	c := l.src[l.pos]
	switch {
	case isFlowIdentStart(c):
		for l.pos < len(l.src) && isFlowIdentPart(l.src[l.pos]) {
			l.pos++
		}
		l.emit(flowIdent, start)
	case c >= '0' && c <= '9' || c == '.' && l.peek(1) >= '0' && l.peek(1) <= '9':
		for l.pos < len(l.src) && (isFlowIdentPart(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		l.emit(flowNumber, start)
	case c == '\'' || c == '"':
		l.skipString(c)
		l.emit(flowString, start)
	case c == '`':
		l.skipTemplate()
		l.emit(flowTemplate, start)
	case c == '/' && !l.afterValue():
		l.skipRegex()
		l.emit(flowRegex, start)
	case c == '<' && l.jsxAllowed() && l.looksLikeJSX():
		l.emit(flowJSX, start)
		l.jsxElement()
		mark := l.pos
		l.emit(flowJSX, mark)
	default:
		l.punct()
		l.emit(flowPunct, start)
	}
}

func (l *flowLexer) punct() {
	rest := l.src[l.pos:]
	for _, p := range flowPunct3 {
		if strings.HasPrefix(rest, p) {
			l.pos += 3
			return
		}
	}
	for _, p := range flowPunct2 {
		if strings.HasPrefix(rest, p) {
			// a?.5:1 is a conditional, not optional chaining.
			if p == "?." && len(rest) > 2 && rest[2] >= '0' && rest[2] <= '9' {
				continue
			}
			l.pos += 2
			return
		}
	}
	l.pos++
}

func (l *flowLexer) prev() (flowTok, bool) {
	if len(l.toks) == 0 {
		return flowTok{}, false
	}
	return l.toks[len(l.toks)-1], true
}

func (l *flowLexer) afterValue() bool {
	t, ok := l.prev()
	if !ok {
		return false
	}
	switch t.kind {
	case flowIdent:
		return !isFlowExpressionKeyword(t.text)
	case flowPunct:
		return t.text == ")" || t.text == "]" || t.text == "}" || t.text == "|}"
	default:
		return true
	}
}

func (l *flowLexer) jsxAllowed() bool {
	t, ok := l.prev()
	if !ok {
		return true
	}
	switch t.kind {
	case flowIdent:
		return isFlowExpressionKeyword(t.text)
	case flowPunct:
		switch t.text {
		case "(", ",", "=", ":", "?", "&&", "||", "??", "=>", "{", "[", "!", ";", "}":
			return true
		}
	case flowJSX:
		return true
	}
	return false
}

// looksLikeJSX rejects generic parameter lists such as <T>(x) or <T: X>,
// which share the opening with a JSX element.
func (l *flowLexer) looksLikeJSX() bool {
	p := l.pos + 1
	if p < len(l.src) && l.src[p] == '>' {
		return true
	}
	if p >= len(l.src) || !isFlowIdentStart(l.src[p]) {
		return false
	}
	for p < len(l.src) && (isFlowIdentPart(l.src[p]) || l.src[p] == '.') {
		p++
	}
	for p < len(l.src) && isFlowSpace(l.src[p]) {
		p++
	}
	if p >= len(l.src) {
		return false
	}
	switch c := l.src[p]; {
	case c == '/' || c == '{' || isFlowIdentStart(c):
		return true
	case c == '>':
		q := p + 1
		for q < len(l.src) && isFlowSpace(l.src[q]) {
			q++
		}
		return q >= len(l.src) || l.src[q] != '('
	}
	return false
}

// jsxElement consumes an element starting at '<'. Expression containers are
// tokenized so type casts inside them are still found.
func (l *flowLexer) jsxElement() {
	l.pos++ // <
	if l.pos < len(l.src) && l.src[l.pos] == '>' {
		l.pos++
		l.jsxChildren()
		return
	}
	for l.pos < len(l.src) && (isFlowIdentPart(l.src[l.pos]) || strings.IndexByte(".:-", l.src[l.pos]) >= 0) {
		l.pos++
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '/' && l.peek(1) == '>':
			l.pos += 2
			return
		case c == '>':
			l.pos++
			l.jsxChildren()
			return
		case c == '{':
			l.jsxContainer()
		case c == '"' || c == '\'':
			l.skipString(c)
		default:
			l.pos++
		}
	}
}

func (l *flowLexer) jsxChildren() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '{':
			l.jsxContainer()
		case c == '<' && l.peek(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '>' {
				l.pos++
			}
			l.pos++
			return
		case c == '<':
			l.jsxElement()
		default:
			l.pos++
		}
	}
}

func (l *flowLexer) jsxContainer() {
	start := l.pos
	l.pos++
	l.emit(flowPunct, start)
	depth := 1
	for l.pos < len(l.src) {
		n := len(l.toks)
		l.step()
		if len(l.toks) == n {
			continue
		}
		switch l.toks[len(l.toks)-1].text {
		case "{", "{|":
			depth++
		case "}", "|}":
			depth--
		}
		if depth == 0 {
			return
		}
	}
}

func (l *flowLexer) skipString(quote byte) {
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
		case c == quote:
			l.pos++
			return
		case c == '\n':
			return
		default:
			l.pos++
		}
	}
}

func (l *flowLexer) skipTemplate() {
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
		case c == '`':
			l.pos++
			return
		case c == '$' && l.peek(1) == '{':
			l.pos += 2
			l.skipSubstitution()
		default:
			l.pos++
		}
	}
}

func (l *flowLexer) skipSubstitution() {
	depth := 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '{':
			depth++
			l.pos++
		case '}':
			depth--
			l.pos++
			if depth == 0 {
				return
			}
		case '\'', '"':
			l.skipString(c)
		case '`':
			l.skipTemplate()
		default:
			l.pos++
		}
	}
}

func (l *flowLexer) skipRegex() {
	l.pos++
	inClass := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
			continue
		case c == '\n':
			return
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			l.pos++
			for l.pos < len(l.src) && isFlowIdentPart(l.src[l.pos]) {
				l.pos++
			}
			return
		}
		l.pos++
	}
}

func isFlowIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isFlowIdentPart(c byte) bool {
	return isFlowIdentStart(c) || c >= '0' && c <= '9'
}

func isFlowSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isFlowExpressionKeyword(word string) bool {
	switch word {
	case "return", "typeof", "case", "do", "else", "in", "of", "new", "delete", "void",
		"throw", "instanceof", "yield", "await", "default", "extends":
		return true
	}
	return false
}

// analysis

type flowFrame struct {
	open string
	typ  bool
	// class marks a class body.
	class bool
	// params marks a type parameter list, where bounds use ':'.
	params  bool
	indexer bool
	// named is set once an indexer frame has seen its ':'.
	named bool
	// arrow marks the type parameters of a generic arrow function.
	arrow   bool
	openTok int
	ternary int
	cases   int
	// colons are annotation colons directly inside a parenthesis.
	colons []int
	// spread is the start offset of a pending object type spread, or -1.
	spread int
}

type regionKind int

const (
	regionParam regionKind = iota
	regionReturn
	regionVar
	regionClassProp
	regionAlias
)

type flowRegion struct {
	active bool
	kind   regionKind
	depth  int
	count  int
}

type flowAnalyzer struct {
	toks   []flowTok
	frames []*flowFrame
	edits  []edit
	region flowRegion

	pendingClass bool
	pendingBody  bool
	aliasDepth   int
	aliasPending bool
	closedParams bool
}

func (a *flowAnalyzer) top() *flowFrame { return a.frames[len(a.frames)-1] }

func (a *flowAnalyzer) text(i int) string {
	if i < 0 || i >= len(a.toks) {
		return ""
	}
	return a.toks[i].text
}

func (a *flowAnalyzer) isIdent(i int) bool {
	return i >= 0 && i < len(a.toks) && a.toks[i].kind == flowIdent
}

func (a *flowAnalyzer) replace(i int, text string) {
	t := a.toks[i]
	a.edits = append(a.edits, edit{start: t.start, end: t.end, text: text})
}

func (a *flowAnalyzer) inType() bool {
	return a.top().typ || a.region.active && a.region.depth == len(a.frames)
}

func (a *flowAnalyzer) push(f *flowFrame, i int) {
	f.openTok = i
	f.spread = -1
	a.frames = append(a.frames, f)
}

// pop closes the innermost frame opened with open, and any unclosed frames
// above it.
func (a *flowAnalyzer) pop(open string) *flowFrame {
	for j := len(a.frames) - 1; j > 0; j-- {
		if a.frames[j].open == open {
			f := a.frames[j]
			a.frames = a.frames[:j]
			if a.region.active && a.region.depth > len(a.frames) {
				a.region.active = false
			}
			return f
		}
	}
	return nil
}

// startRegion opens a type region after the current token; count reaches
// zero once that token has been processed.
func (a *flowAnalyzer) startRegion(kind regionKind) {
	a.region = flowRegion{active: true, kind: kind, depth: len(a.frames), count: -1}
}

func typeComplete(t flowTok) bool {
	switch t.kind {
	case flowIdent, flowString, flowNumber:
		return true
	case flowPunct:
		switch t.text {
		case ">", "]", "}", "|}", ")", "*":
			return true
		}
	}
	return false
}

// endsRegion reports whether token i, at the region's own depth, is the
// first token after the annotated type.
func (a *flowAnalyzer) endsRegion(i int) bool {
	t := a.toks[i]
	r := a.region
	if t.kind == flowPunct {
		switch t.text {
		case ")", "]", "}", "|}", ";":
			return true
		case ",", "=":
			return r.kind != regionAlias || t.text == ","
		case "=>":
			return r.kind == regionReturn
		case "{", "{|":
			return r.kind == regionReturn && r.count > 0
		}
	}
	if r.kind == regionParam || r.kind == regionReturn {
		return false
	}
	if t.nl && i > 0 && typeComplete(a.toks[i-1]) {
		switch t.text {
		case "|", "&", ".", "[", "<", "=>", "?":
			return false
		}
		return true
	}
	return false
}

func (a *flowAnalyzer) atStatementStart(i int) bool {
	if i == 0 || a.toks[i].nl {
		return true
	}
	switch a.text(i - 1) {
	case ";", "}", "{", "export":
		return true
	}
	return false
}

func (a *flowAnalyzer) run() {
	for i := range a.toks {
		if a.region.active && a.region.depth == len(a.frames) && a.endsRegion(i) {
			a.region.active = false
		}
		closedParams := a.closedParams
		a.closedParams = false
		a.token(i, closedParams)
		if a.region.active {
			a.region.count++
		}
	}
}

var maybePrev = map[string]bool{
	":": true, "=>": true, "<": true, ",": true, "|": true, "&": true, "(": true, "=": true, "[": true,
}

func (a *flowAnalyzer) token(i int, closedParams bool) {
	t := a.toks[i]
	top := a.top()
	inType := a.inType()

	if t.kind == flowIdent {
		a.ident(i)
		return
	}
	if t.kind != flowPunct {
		return
	}

	switch t.text {
	case "?":
		switch {
		case maybePrev[a.text(i-1)] && a.toks[i-1].kind == flowPunct:
			a.replace(i, "")
		case a.text(i+1) == ":" || a.text(i+1) == ")" || a.text(i+1) == "," || a.text(i+1) == "=":
			// optional marker
		case !inType:
			top.ternary++
		}

	case "{|", "{":
		if t.text == "{|" {
			a.replace(i, "{")
		}
		typ := inType || a.pendingBody
		a.push(&flowFrame{open: "{", typ: typ, class: a.pendingClass && !typ}, i)
		a.pendingClass, a.pendingBody = false, false

	case "(":
		a.push(&flowFrame{open: "(", typ: inType}, i)

	case "[":
		indexer := inType && top.open == "{" && (t.nl || oneOf(a.text(i-1), "{", "{|", ",", ";", "+", "-"))
		a.push(&flowFrame{open: "[", typ: inType, indexer: indexer}, i)

	case "<":
		switch {
		case inType:
			params := !a.isIdent(i-1) || isDeclKeyword(a.text(i-2))
			a.push(&flowFrame{open: "<", typ: true, params: params}, i)
		case a.isIdent(i-1) && isDeclKeyword(a.text(i-2)), a.text(i-1) == "function":
			a.push(&flowFrame{open: "<", typ: true, params: true}, i)
		case a.genericArrow(i):
			a.push(&flowFrame{open: "<", typ: true, params: true, arrow: true}, i)
		}

	case ">":
		if top.open == "<" {
			f := a.pop("<")
			// <T>(x) => x only parses as a generic arrow in TSX as <T,>.
			if f.arrow && a.text(i-1) != "," {
				a.edits = append(a.edits, edit{start: t.start, end: t.start, text: ","})
			}
		}

	case ")":
		f := a.pop("(")
		if f == nil || f.typ {
			return
		}
		next := a.text(i + 1)
		cast := len(f.colons) == 1 && f.ternary == 0 &&
			(next != "=>" && next != "{" && next != ":" || next == ":" && a.top().ternary > 0)
		if cast {
			a.replace(f.colons[0], " as ")
			return
		}
		a.closedParams = true

	case "]":
		f := a.pop("[")
		if f != nil && f.indexer && !f.named && a.text(i+1) == ":" {
			open := a.toks[f.openTok]
			a.edits = append(a.edits, edit{start: open.end, end: open.end, text: "k: "})
		}

	case "}", "|}":
		if t.text == "|}" {
			a.replace(i, "}")
		}
		if f := a.pop("{"); f != nil && f.spread >= 0 {
			a.edits = append(a.edits, edit{start: f.spread, end: t.start})
		}

	case ",", ";":
		if top.typ && top.open == "{" && top.spread >= 0 {
			a.edits = append(a.edits, edit{start: top.spread, end: t.end})
			top.spread = -1
		}

	case "...":
		if top.typ && top.open == "{" {
			top.spread = t.start
		}

	case ":":
		a.colon(i, closedParams)

	case "=":
		if a.aliasPending && len(a.frames) == a.aliasDepth {
			a.aliasPending = false
			a.startRegion(regionAlias)
		}

	case "+", "-":
		if a.isVariance(i) {
			a.replace(i, "")
		}

	case "*":
		if inType && maybePrev[a.text(i-1)] {
			a.replace(i, "any")
		}

	case "%":
		if a.text(i+1) == "checks" {
			a.edits = append(a.edits, edit{start: t.start, end: a.toks[i+1].end})
		}
	}
}

func (a *flowAnalyzer) ident(i int) {
	t := a.toks[i]
	if a.text(i-1) == "." {
		return
	}
	switch t.text {
	case "class":
		a.pendingClass = true
	case "interface":
		if a.atStatementStart(i) && a.isIdent(i+1) {
			a.pendingBody = true
		}
	case "type":
		if a.atStatementStart(i) && a.isIdent(i+1) && (a.text(i+2) == "=" || a.text(i+2) == "<") {
			a.aliasPending = true
			a.aliasDepth = len(a.frames)
		}
	case "case":
		if !a.inType() {
			a.top().cases++
		}
	}
}

func (a *flowAnalyzer) colon(i int, closedParams bool) {
	top := a.top()
	switch {
	case top.typ:
		if top.open == "[" {
			top.named = true
		}
		if top.open == "<" && top.params && a.isIdent(i-1) && oneOf(a.text(i-2), "<", ",", "+", "-") {
			a.replace(i, " extends ")
		}
	case top.ternary > 0:
		top.ternary--
	case top.cases > 0:
		top.cases--
	case closedParams && a.text(i-1) == ")":
		a.startRegion(regionReturn)
	case top.open == "(":
		top.colons = append(top.colons, i)
		a.startRegion(regionParam)
	case top.class:
		a.startRegion(regionClassProp)
	case a.isIdent(i-1) && (a.text(i-2) == "const" || a.text(i-2) == "let" || a.text(i-2) == "var"):
		a.startRegion(regionVar)
	}
}

// genericArrow reports whether the '<' at i, in expression position, opens
// the type parameters of an arrow function.
func (a *flowAnalyzer) genericArrow(i int) bool {
	if !a.isIdent(i+1) || !oneOf(a.text(i+2), ">", ":", ",") {
		return false
	}
	if i == 0 {
		return true
	}
	prev := a.toks[i-1]
	if prev.kind == flowIdent {
		return oneOf(prev.text, "return", "default")
	}
	return prev.kind == flowPunct && oneOf(prev.text, "=", "(", ",", ":", "=>", "?", "&&", "||", "??")
}

// isVariance reports whether the '+' or '-' at i marks a covariant or
// contravariant property or type parameter.
func (a *flowAnalyzer) isVariance(i int) bool {
	top := a.top()
	t := a.toks[i]
	next := a.text(i + 1)
	prev := a.text(i - 1)
	named := a.isIdent(i + 1)
	switch {
	case top.typ && top.open == "{":
		if !named && next != "[" {
			return false
		}
		return t.nl || oneOf(prev, "{", "{|", ",", ";")
	case top.typ && top.open == "<":
		return named && (prev == "<" || prev == ",")
	case top.class:
		if !named || (a.text(i+2) != ":" && a.text(i+2) != "?") {
			return false
		}
		return t.nl || oneOf(prev, "{", ";", "}", "static")
	}
	return false
}

func oneOf(s string, set ...string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func isDeclKeyword(word string) bool {
	switch word {
	case "class", "function", "type", "interface", "opaque":
		return true
	}
	return false
}
