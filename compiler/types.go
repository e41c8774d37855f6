package compiler

import "strings"

// typeEraser strips the TypeScript constructs the widget toolchain
// emits: interface and type-alias declarations, type-only imports and
// re-exports, `as` casts, non-null assertions, and the annotations on
// function signatures and let/const/var declarations. Class member
// annotations and standalone generic arrow parameters are outside the
// accepted input.
type typeEraser struct {
	scanner
	out strings.Builder

	lastSig  byte
	lastWord string
	prevWord string
}

// stripTypes erases TypeScript syntax from source, returning plain
// module code. The pass is best-effort: constructs it does not
// recognize are copied through and left to the markup transform's
// diagnostics.
func stripTypes(source string) string {
	t := &typeEraser{scanner: scanner{src: source}}
	t.run()
	return t.out.String()
}

func (t *typeEraser) run() {
	for !t.eof() {
		c := t.peek()
		switch {
		case c == '\'' || c == '"':
			start := t.pos
			if !t.skipString() {
				t.copyRest(start)
				return
			}
			t.copyRange(start)
		case c == '`':
			start := t.pos
			if !t.skipTemplate() {
				t.copyRest(start)
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
				t.copyRest(start)
				return
			}
			t.out.WriteString(t.src[start:t.pos])
		case isIdentChar(c):
			t.word()
		case c == '(':
			if t.signatureAhead() {
				t.eraseSignature()
			} else {
				t.copyByte()
			}
		case c == '!' && isExprEnd(t.lastSig) && t.peekAt(1) != '=':
			// non-null assertion
			t.pos++
		default:
			t.copyByte()
		}
	}
}

func (t *typeEraser) copyByte() {
	c := t.src[t.pos]
	t.out.WriteByte(c)
	if !isSpace(c) {
		t.lastSig = c
		t.prevWord, t.lastWord = t.lastWord, ""
	}
	t.pos++
}

func (t *typeEraser) copyRange(start int) {
	chunk := t.src[start:t.pos]
	t.out.WriteString(chunk)
	t.lastSig = chunk[len(chunk)-1]
	t.prevWord, t.lastWord = t.lastWord, ""
}

func (t *typeEraser) copyRest(start int) {
	t.pos = len(t.src)
	t.out.WriteString(t.src[start:])
}

func (t *typeEraser) setWord(word string) {
	t.prevWord, t.lastWord = t.lastWord, word
	t.lastSig = word[len(word)-1]
}

// word handles one identifier, intercepting the type-level keywords.
func (t *typeEraser) word() {
	start := t.pos
	word := t.readIdent()
	switch {
	case word == "export" && t.nextWordIn("interface", "type"):
		// the erased declaration takes the modifier with it
		return
	case word == "import" && t.nextWordIn("type"):
		t.skipStatement()
		return
	case word == "interface" && t.lastSig != '.':
		if t.eraseInterface() {
			return
		}
	case word == "type" && t.lastSig != '.':
		if t.eraseTypeAlias(start) {
			return
		}
	case word == "as" && isExprEnd(t.lastSig):
		t.eraseTypeRef()
		return
	case t.lastWord == "function" && t.peek() == '<':
		// generic parameters on a declared function
		t.out.WriteString(word)
		t.setWord(word)
		open := scanner{src: t.src, pos: t.pos + 1}
		if open.skipBalanced('<', '>') {
			t.pos = open.pos
		}
		return
	case (word == "let" || word == "const" || word == "var") && t.lastSig != '.':
		t.out.WriteString(word)
		t.setWord(word)
		t.eraseVarAnnotation()
		return
	}
	t.out.WriteString(word)
	t.setWord(word)
}

// nextWordIn reports whether the next identifier matches any of names.
func (t *typeEraser) nextWordIn(names ...string) bool {
	probe := scanner{src: t.src, pos: t.pos}
	probe.skipSpace()
	word := probe.readIdent()
	for _, name := range names {
		if word == name {
			return true
		}
	}
	return false
}

// skipStatement drops source through the next top-level semicolon.
func (t *typeEraser) skipStatement() {
	for !t.eof() {
		switch c := t.peek(); c {
		case '\'', '"':
			if !t.skipString() {
				t.pos = len(t.src)
			}
		case '{':
			t.pos++
			t.skipBalanced('{', '}')
		case ';':
			t.pos++
			return
		default:
			t.pos++
		}
	}
}

// eraseInterface drops `interface Name ... { ... }`.
func (t *typeEraser) eraseInterface() bool {
	probe := scanner{src: t.src, pos: t.pos}
	probe.skipSpace()
	if probe.readIdent() == "" {
		return false
	}
	for !probe.eof() && probe.peek() != '{' {
		probe.pos++
	}
	if probe.eof() {
		return false
	}
	probe.pos++
	if !probe.skipBalanced('{', '}') {
		return false
	}
	t.pos = probe.pos
	return true
}

// eraseTypeAlias drops `type Name = ...;` and type-only re-exports.
func (t *typeEraser) eraseTypeAlias(start int) bool {
	probe := scanner{src: t.src, pos: t.pos}
	probe.skipSpace()
	if probe.peek() == '{' { // export type { X } from "y";
		t.skipStatement()
		return true
	}
	if probe.readIdent() == "" {
		return false
	}
	probe.skipSpace()
	if probe.peek() == '<' {
		probe.pos++
		if !probe.skipBalanced('<', '>') {
			return false
		}
		probe.skipSpace()
	}
	if probe.peek() != '=' {
		return false
	}
	t.pos = probe.pos
	t.skipStatement()
	return true
}

// eraseTypeRef drops the type reference after an `as` cast.
func (t *typeEraser) eraseTypeRef() {
	t.skipSpace()
	t.readIdent()
	for !t.eof() {
		switch {
		case t.peek() == '.' && isIdentStart(t.peekAt(1)):
			t.pos++
			t.readIdent()
		case t.peek() == '<':
			t.pos++
			if !t.skipBalanced('<', '>') {
				return
			}
		case t.peek() == '[' && t.peekAt(1) == ']':
			t.pos += 2
		default:
			return
		}
	}
}

// eraseVarAnnotation strips `: T` between a declared name and its
// initializer.
func (t *typeEraser) eraseVarAnnotation() {
	probe := scanner{src: t.src, pos: t.pos}
	probe.skipSpace()
	nameStart := probe.pos
	if probe.readIdent() == "" {
		return
	}
	name := t.src[nameStart:probe.pos]
	probe.skipSpace()
	if probe.peek() != ':' {
		return
	}
	t.out.WriteString(t.src[t.pos:nameStart])
	t.out.WriteString(name)
	t.setWord(name)
	probe.pos++
	t.pos = probe.pos
	t.skipAnnotation("=;,\n")
}

// skipAnnotation drops a type expression until one of the stop bytes
// appears outside any nesting.
func (t *typeEraser) skipAnnotation(stops string) {
	nest := 0
	first := true
	for !t.eof() {
		c := t.peek()
		switch {
		case c == '\'' || c == '"':
			if !t.skipString() {
				t.pos = len(t.src)
			}
		case c == '(' || c == '[':
			nest++
			t.pos++
		case c == ')' || c == ']':
			if nest == 0 {
				return
			}
			nest--
			t.pos++
		case c == '{':
			// an object type is only part of the annotation when it
			// leads it; any later brace is the following body
			if !first && nest == 0 {
				return
			}
			t.pos++
			t.skipBalanced('{', '}')
		case c == '<':
			t.pos++
			t.skipBalanced('<', '>')
		case c == '=' && t.peekAt(1) == '>' && nest == 0:
			return
		case nest == 0 && strings.IndexByte(stops, c) >= 0:
			return
		default:
			if !isSpace(c) {
				first = false
			}
			t.pos++
		}
	}
}

// signatureAhead reports whether the '(' at the current position opens
// a function signature rather than a call or grouping.
func (t *typeEraser) signatureAhead() bool {
	if t.lastWord == "function" || t.prevWord == "function" {
		return true
	}
	probe := scanner{src: t.src, pos: t.pos + 1}
	if !probe.skipBalanced('(', ')') {
		return false
	}
	probe.skipSpace()
	if strings.HasPrefix(probe.src[probe.pos:], "=>") {
		return true
	}
	if probe.peek() != ':' {
		return false
	}
	// `(args): Ret =>` — scan the return type for the arrow
	probe.pos++
	sub := typeEraser{scanner: probe}
	sub.skipAnnotation(";,)]}")
	return strings.HasPrefix(sub.src[sub.pos:], "=>")
}

// eraseSignature copies a parameter list, dropping optional markers,
// parameter annotations, and the return annotation.
func (t *typeEraser) eraseSignature() {
	t.out.WriteByte('(')
	t.lastSig = '('
	t.pos++
	nest := 0
	for !t.eof() {
		c := t.peek()
		switch {
		case c == '\'' || c == '"':
			start := t.pos
			if !t.skipString() {
				t.copyRest(start)
				return
			}
			t.out.WriteString(t.src[start:t.pos])
		case c == '`':
			start := t.pos
			if !t.skipTemplate() {
				t.copyRest(start)
				return
			}
			t.out.WriteString(t.src[start:t.pos])
		case c == '(' || c == '[' || c == '{':
			nest++
			t.out.WriteByte(c)
			t.pos++
		case c == ']' || c == '}':
			nest--
			t.out.WriteByte(c)
			t.pos++
		case c == ')':
			if nest > 0 {
				nest--
				t.out.WriteByte(c)
				t.pos++
				continue
			}
			t.out.WriteByte(')')
			t.lastSig = ')'
			t.prevWord, t.lastWord = "", ""
			t.pos++
			t.eraseReturnAnnotation()
			return
		case c == '?' && nest == 0 && t.optionalMarkerAhead():
			t.pos++
		case c == ':' && nest == 0:
			t.pos++
			t.skipAnnotation("=,)")
		default:
			t.copyByte()
		}
	}
}

// optionalMarkerAhead distinguishes `x?: T` / `x?,` from a ternary in a
// default value.
func (t *typeEraser) optionalMarkerAhead() bool {
	probe := scanner{src: t.src, pos: t.pos + 1}
	probe.skipSpace()
	c := probe.peek()
	return c == ':' || c == ',' || c == ')'
}

// eraseReturnAnnotation strips `: T` between a closed parameter list
// and the following `=>` or body.
func (t *typeEraser) eraseReturnAnnotation() {
	probe := scanner{src: t.src, pos: t.pos}
	probe.skipSpace()
	if probe.peek() != ':' {
		return
	}
	t.out.WriteString(t.src[t.pos:probe.pos])
	probe.pos++
	t.pos = probe.pos
	t.skipAnnotation(";,)]}")
	t.out.WriteByte(' ')
}

// isExprEnd reports whether c can terminate an expression, making a
// following `as` or `!` a type-level operator.
func isExprEnd(c byte) bool {
	return isIdentChar(c) || c == ')' || c == ']' || c == '"' || c == '\'' || c == '`'
}
