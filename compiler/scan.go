package compiler

import "strings"

// scanner provides low-level, string-and-comment-aware traversal of
// widget source. Both the markup transform and the TypeScript erasure
// pass are built on it.
type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	if s.pos+offset >= len(s.src) {
		return 0
	}
	return s.src[s.pos+offset]
}

// lineCol converts a byte offset into a 1-based line/column pair.
func (s *scanner) lineCol(pos int) (int, int) {
	if pos > len(s.src) {
		pos = len(s.src)
	}
	line := 1 + strings.Count(s.src[:pos], "\n")
	col := pos - strings.LastIndexByte(s.src[:pos], '\n')
	return line, col
}

// skipString advances past a quoted string starting at the current
// quote character. Returns false when the string never terminates.
func (s *scanner) skipString() bool {
	quote := s.src[s.pos]
	s.pos++
	for !s.eof() {
		c := s.src[s.pos]
		if c == '\\' {
			s.pos += 2
			continue
		}
		if c == quote {
			s.pos++
			return true
		}
		if c == '\n' && quote != '`' {
			return false
		}
		s.pos++
	}
	return false
}

// skipTemplate advances past a template literal, including nested
// ${...} expressions. Returns false when unterminated.
func (s *scanner) skipTemplate() bool {
	s.pos++ // opening backtick
	for !s.eof() {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
		case '`':
			s.pos++
			return true
		case '$':
			if s.peekAt(1) == '{' {
				s.pos += 2
				if !s.skipBalanced('{', '}') {
					return false
				}
			} else {
				s.pos++
			}
		default:
			s.pos++
		}
	}
	return false
}

// skipLineComment advances past a // comment.
func (s *scanner) skipLineComment() {
	for !s.eof() && s.src[s.pos] != '\n' {
		s.pos++
	}
}

// skipBlockComment advances past a /* */ comment. Returns false when
// unterminated.
func (s *scanner) skipBlockComment() bool {
	s.pos += 2
	for s.pos+1 < len(s.src) {
		if s.src[s.pos] == '*' && s.src[s.pos+1] == '/' {
			s.pos += 2
			return true
		}
		s.pos++
	}
	s.pos = len(s.src)
	return false
}

// skipBalanced advances past source until the open delimiter (already
// consumed once) is balanced by its close, respecting strings,
// templates, and comments. Returns false when unterminated.
func (s *scanner) skipBalanced(open, close byte) bool {
	depth := 1
	for !s.eof() {
		c := s.src[s.pos]
		switch {
		case c == '\'' || c == '"':
			if !s.skipString() {
				return false
			}
		case c == '`':
			if !s.skipTemplate() {
				return false
			}
		case c == '/' && s.peekAt(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peekAt(1) == '*':
			if !s.skipBlockComment() {
				return false
			}
		case c == open:
			depth++
			s.pos++
		case c == close:
			depth--
			s.pos++
			if depth == 0 {
				return true
			}
		default:
			s.pos++
		}
	}
	return false
}

// skipSpace advances past whitespace.
func (s *scanner) skipSpace() {
	for !s.eof() && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

// readIdent consumes and returns an identifier at the current
// position, or "" when none is present.
func (s *scanner) readIdent() string {
	start := s.pos
	for !s.eof() && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
