package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Names injected by the markup transform. The runtime import that
// binds them is prepended only when the source actually used markup.
const (
	jsxFactory  = "__weft_jsx"
	jsxsFactory = "__weft_jsxs"
	jsxFragment = "__weft_Fragment"
)

// jsxKeywords are the identifiers after which a '<' begins markup
// rather than a comparison.
var jsxKeywords = map[string]bool{
	"return": true, "case": true, "default": true, "do": true,
	"else": true, "typeof": true, "void": true, "yield": true,
	"await": true, "new": true, "in": true, "of": true,
}

// markupTransform rewrites the framework's declarative-markup syntax
// into plain factory calls. It never inlines dependency code; imports
// are rewritten separately.
type markupTransform struct {
	scanner
	out       strings.Builder
	diags     []Diagnostic
	sawMarkup bool

	// lastSig is the last significant byte copied to the output and
	// lastWord the identifier it terminated, if any. Together they
	// decide whether a '<' opens markup.
	lastSig  byte
	lastWord string
}

// transformMarkup converts markup in source to factory calls. It
// returns the transformed code, whether any markup was found, and the
// diagnostics produced. Code is unusable when any diagnostic is fatal.
func transformMarkup(source string) (string, bool, []Diagnostic) {
	t := &markupTransform{scanner: scanner{src: source}}
	t.run()
	if hasFatal(t.diags) {
		return "", t.sawMarkup, t.diags
	}
	return t.out.String(), t.sawMarkup, t.diags
}

func (t *markupTransform) run() {
	for !t.eof() {
		c := t.peek()
		switch {
		case c == '\'' || c == '"':
			start := t.pos
			if !t.skipString() {
				t.fatalAt(start, "unterminated string literal")
				return
			}
			t.copyRange(start)
		case c == '`':
			start := t.pos
			if !t.skipTemplate() {
				t.fatalAt(start, "unterminated template literal")
				return
			}
			t.copyRange(start)
		case c == '/' && t.peekAt(1) == '/':
			start := t.pos
			t.skipLineComment()
			t.out.WriteString(t.src[start:t.pos])
		case c == '/' && t.peekAt(1) == '*':
			start := t.pos
			if !t.skipBlockComment() {
				t.fatalAt(start, "unterminated comment")
				return
			}
			t.out.WriteString(t.src[start:t.pos])
		case isIdentChar(c):
			word := t.readIdent()
			t.out.WriteString(word)
			t.lastWord = word
			t.lastSig = word[len(word)-1]
		case c == '<' && t.markupStart():
			expr, ok := t.parseElement()
			if !ok {
				return
			}
			t.out.WriteString(expr)
			t.sawMarkup = true
			t.lastSig = ')'
			t.lastWord = ""
		default:
			t.out.WriteByte(c)
			if !isSpace(c) {
				t.lastSig = c
				t.lastWord = ""
			}
			t.pos++
		}
	}
}

// copyRange copies src[start:pos] to the output verbatim.
func (t *markupTransform) copyRange(start int) {
	chunk := t.src[start:t.pos]
	t.out.WriteString(chunk)
	t.lastSig = chunk[len(chunk)-1]
	t.lastWord = ""
}

// markupStart reports whether the '<' at the current position opens an
// element. It must only fire in expression position; everywhere else
// '<' is a comparison or shift.
func (t *markupTransform) markupStart() bool {
	next := t.peekAt(1)
	if !isIdentStart(next) && next != '>' {
		return false
	}
	switch {
	case t.lastSig == 0:
		return true
	case strings.IndexByte("(,=[{?:;&|!+-*/%^~<>", t.lastSig) >= 0:
		// '>' admits arrow bodies: x => <div/>
		return true
	case isIdentChar(t.lastSig):
		return jsxKeywords[t.lastWord]
	default:
		return false
	}
}

// propEntry is one attribute of an element: either a named value or a
// spread expression.
type propEntry struct {
	name   string
	value  string
	spread string
}

// parseElement parses the element starting at the current '<' and
// returns the factory-call expression for it.
func (t *markupTransform) parseElement() (string, bool) {
	start := t.pos
	t.pos++ // '<'

	if t.peek() == '>' { // fragment
		t.pos++
		children, ok := t.parseChildren(start, "")
		if !ok {
			return "", false
		}
		return t.emit(jsxFragment, nil, children), true
	}

	name := t.readTagName()
	if name == "" {
		t.fatalAt(start, "expected element name after '<'")
		return "", false
	}

	var props []propEntry
	for {
		t.skipSpace()
		if t.eof() {
			t.fatalAt(start, fmt.Sprintf("unclosed element <%s>", name))
			return "", false
		}
		switch c := t.peek(); {
		case c == '/' && t.peekAt(1) == '>':
			t.pos += 2
			return t.emit(tagExpr(name), props, nil), true
		case c == '>':
			t.pos++
			children, ok := t.parseChildren(start, name)
			if !ok {
				return "", false
			}
			return t.emit(tagExpr(name), props, children), true
		case c == '{':
			openPos := t.pos
			t.pos++
			t.skipSpace()
			if !strings.HasPrefix(t.src[t.pos:], "...") {
				t.fatalAt(openPos, "expected '...' in spread attribute")
				return "", false
			}
			t.pos += 3
			inner, ok := t.readBraceExpr(openPos)
			if !ok {
				return "", false
			}
			expr, ok := t.subExpr(inner, openPos)
			if !ok {
				return "", false
			}
			props = append(props, propEntry{spread: expr})
		case isIdentStart(c):
			prop, ok := t.parseAttribute(start)
			if !ok {
				return "", false
			}
			props = append(props, prop)
		default:
			t.fatalAt(t.pos, fmt.Sprintf("unexpected %q in element <%s>", string(c), name))
			return "", false
		}
	}
}

// parseAttribute parses one name[=value] attribute.
func (t *markupTransform) parseAttribute(elemStart int) (propEntry, bool) {
	name := t.readAttrName()
	t.skipSpace()
	if t.peek() != '=' {
		return propEntry{name: name, value: "true"}, true
	}
	t.pos++
	t.skipSpace()
	switch c := t.peek(); {
	case c == '"' || c == '\'':
		start := t.pos
		if !t.skipString() {
			t.fatalAt(start, "unterminated attribute value")
			return propEntry{}, false
		}
		return propEntry{name: name, value: t.src[start:t.pos]}, true
	case c == '{':
		openPos := t.pos
		t.pos++
		inner, ok := t.readBraceExpr(openPos)
		if !ok {
			return propEntry{}, false
		}
		expr, ok := t.subExpr(inner, openPos)
		if !ok {
			return propEntry{}, false
		}
		return propEntry{name: name, value: expr}, true
	default:
		t.fatalAt(t.pos, fmt.Sprintf("expected value for attribute %q", name))
		return propEntry{}, false
	}
}

// parseChildren parses element children until the matching closing
// tag. name is "" for fragments.
func (t *markupTransform) parseChildren(elemStart int, name string) ([]string, bool) {
	var children []string
	for {
		if t.eof() {
			t.fatalAt(elemStart, fmt.Sprintf("unclosed element %s", displayName(name)))
			return nil, false
		}
		switch c := t.peek(); {
		case c == '<' && t.peekAt(1) == '/':
			closeStart := t.pos
			t.pos += 2
			t.skipSpace()
			cname := t.readTagName()
			t.skipSpace()
			if t.peek() != '>' {
				t.fatalAt(closeStart, "malformed closing tag")
				return nil, false
			}
			t.pos++
			if cname != name {
				t.fatalAt(closeStart, fmt.Sprintf("mismatched closing tag %s, expected %s",
					displayName(cname), displayName(name)))
				return nil, false
			}
			return children, true
		case c == '<' && (isIdentStart(t.peekAt(1)) || t.peekAt(1) == '>'):
			expr, ok := t.parseElement()
			if !ok {
				return nil, false
			}
			children = append(children, expr)
		case c == '<':
			t.fatalAt(t.pos, "unexpected '<' in element body")
			return nil, false
		case c == '{':
			openPos := t.pos
			t.pos++
			inner, ok := t.readBraceExpr(openPos)
			if !ok {
				return nil, false
			}
			trimmed := strings.TrimSpace(inner)
			if trimmed == "" || isCommentOnly(trimmed) {
				continue
			}
			expr, ok := t.subExpr(inner, openPos)
			if !ok {
				return nil, false
			}
			children = append(children, expr)
		default:
			start := t.pos
			for !t.eof() && t.peek() != '<' && t.peek() != '{' {
				t.pos++
			}
			if text := collapseText(t.src[start:t.pos]); text != "" {
				children = append(children, strconv.Quote(text))
			}
		}
	}
}

// readBraceExpr returns the interior of a brace-delimited expression.
// The opening brace (and any spread prefix) has been consumed.
func (t *markupTransform) readBraceExpr(openPos int) (string, bool) {
	start := t.pos
	inner := scanner{src: t.src, pos: t.pos}
	if !inner.skipBalanced('{', '}') {
		t.fatalAt(openPos, "unterminated expression")
		return "", false
	}
	t.pos = inner.pos
	return t.src[start : inner.pos-1], true
}

// subExpr transforms markup nested inside an embedded expression,
// re-anchoring any diagnostics to the enclosing source.
func (t *markupTransform) subExpr(inner string, openPos int) (string, bool) {
	sub := &markupTransform{scanner: scanner{src: inner}}
	sub.run()
	if len(sub.diags) > 0 {
		baseLine, baseCol := t.lineCol(openPos)
		for _, d := range sub.diags {
			if d.Line == 1 {
				d.Column += baseCol
			}
			d.Line += baseLine - 1
			t.diags = append(t.diags, d)
		}
		if hasFatal(sub.diags) {
			return "", false
		}
	}
	if sub.sawMarkup {
		t.sawMarkup = true
		return sub.out.String(), true
	}
	return inner, true
}

// readTagName consumes an element name (idents, dots, dashes, colons).
func (t *markupTransform) readTagName() string {
	start := t.pos
	if !t.eof() && isIdentStart(t.src[t.pos]) {
		t.pos++
		for !t.eof() {
			c := t.src[t.pos]
			if isIdentChar(c) || c == '.' || c == '-' || c == ':' {
				t.pos++
				continue
			}
			break
		}
	}
	return t.src[start:t.pos]
}

// readAttrName consumes an attribute name (idents plus dashes/colons).
func (t *markupTransform) readAttrName() string {
	start := t.pos
	for !t.eof() {
		c := t.src[t.pos]
		if isIdentChar(c) || c == '-' || c == ':' {
			t.pos++
			continue
		}
		break
	}
	return t.src[start:t.pos]
}

// emit renders the factory call for one element. The automatic-runtime
// factory signature is jsx(type, props, key): children must travel in
// props.children, never as extra positional arguments, and the
// multi-child form goes through jsxs.
func (t *markupTransform) emit(tag string, props []propEntry, children []string) string {
	var fields []string
	for _, p := range props {
		if p.spread != "" {
			fields = append(fields, "..."+strings.TrimSpace(p.spread))
			continue
		}
		fields = append(fields, propKey(p.name)+": "+strings.TrimSpace(p.value))
	}

	factory := jsxFactory
	switch len(children) {
	case 0:
	case 1:
		fields = append(fields, "children: "+strings.TrimSpace(children[0]))
	default:
		factory = jsxsFactory
		trimmed := make([]string, len(children))
		for i, child := range children {
			trimmed[i] = strings.TrimSpace(child)
		}
		fields = append(fields, "children: ["+strings.Join(trimmed, ", ")+"]")
	}

	if len(fields) == 0 {
		return factory + "(" + tag + ", {})"
	}
	return factory + "(" + tag + ", { " + strings.Join(fields, ", ") + " })"
}

func (t *markupTransform) fatalAt(pos int, msg string) {
	line, col := t.lineCol(pos)
	t.diags = append(t.diags, Diagnostic{Message: msg, Line: line, Column: col, Fatal: true})
}

// tagExpr renders the tag argument: components stay identifiers,
// intrinsic elements become string literals.
func tagExpr(name string) string {
	if strings.Contains(name, ".") || (name[0] >= 'A' && name[0] <= 'Z') {
		return name
	}
	return strconv.Quote(name)
}

// propKey quotes attribute names that are not valid identifiers.
func propKey(name string) string {
	for i := 0; i < len(name); i++ {
		if i == 0 && !isIdentStart(name[i]) {
			return strconv.Quote(name)
		}
		if i > 0 && !isIdentChar(name[i]) {
			return strconv.Quote(name)
		}
	}
	return name
}

// collapseText applies markup whitespace rules: lines that are only
// whitespace disappear, the rest join with single spaces.
func collapseText(raw string) string {
	if !strings.Contains(raw, "\n") {
		if strings.TrimSpace(raw) == "" {
			return ""
		}
		return raw
	}
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}

// isCommentOnly reports whether an embedded expression holds nothing
// but a comment, e.g. {/* note */}.
func isCommentOnly(expr string) bool {
	return strings.HasPrefix(expr, "/*") && strings.HasSuffix(expr, "*/") &&
		!strings.Contains(expr[2:len(expr)-2], "*/")
}

// displayName formats an element name for diagnostics.
func displayName(name string) string {
	if name == "" {
		return "<>"
	}
	return "<" + name + ">"
}

func hasFatal(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Fatal {
			return true
		}
	}
	return false
}

// runtimeImport is the module line that binds the factory names. It is
// subject to the same import rewriting as widget-authored imports.
func runtimeImport(framework string) string {
	return fmt.Sprintf("import { jsx as %s, jsxs as %s, Fragment as %s } from %q;\n",
		jsxFactory, jsxsFactory, jsxFragment, framework+"/jsx-runtime")
}
