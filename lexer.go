package tmplet

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokComment
	tokRegexp
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	// pos is the byte offset of the token in the lexed source
	pos int
	// property is set on identifiers that follow a member-access dot
	property bool
	// embedded holds the ${...} expressions of a template literal
	embedded []string
}

// snippetLexer splits an expression or statement into tokens. It only distinguishes what
// directive cutting and free variable discovery need; it does not validate the code.
type snippetLexer struct {
	src   string
	pos   int
	ch    rune
	width int
	// prev is the last significant token, used to tell a division from a regexp literal
	prev token
}

func newSnippetLexer(src string) *snippetLexer {
	l := &snippetLexer{src: src}
	l.readRune()
	return l
}

func (l *snippetLexer) readRune() {
	if l.pos >= len(l.src) {
		l.ch, l.width = 0, 0
		return
	}
	l.ch, l.width = utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *snippetLexer) advance() {
	l.pos += l.width
	l.readRune()
}

func (l *snippetLexer) peek(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *snippetLexer) next() token {
	for {
		tok := l.scan()
		switch tok.kind {
		case tokComment:
			continue
		case tokIdent:
			tok.property = l.prev.kind == tokPunct && l.prev.text == "."
		}
		if tok.kind != tokEOF {
			l.prev = tok
		}
		return tok
	}
}

// tokenize returns the significant tokens of src.
func tokenize(src string) []token {
	var toks []token
	l := newSnippetLexer(src)
	for tok := l.next(); tok.kind != tokEOF; tok = l.next() {
		toks = append(toks, tok)
	}
	return toks
}

func (l *snippetLexer) scan() token {
	for l.width > 0 && unicode.IsSpace(l.ch) {
		l.advance()
	}
	if l.width == 0 {
		return token{kind: tokEOF}
	}
	start := l.pos
	tok := l.lex()
	tok.pos = start
	return tok
}

func (l *snippetLexer) lex() token {
	start := l.pos
	switch c := l.ch; {
	case isIdentRune(c, true):
		for l.width > 0 && isIdentRune(l.ch, false) {
			l.advance()
		}
		return token{kind: tokIdent, text: l.src[start:l.pos]}
	case unicode.IsDigit(c) || (c == '.' && isDigit(l.peek(1))):
		for l.width > 0 && (isIdentRune(l.ch, false) || l.ch == '.') {
			l.advance()
		}
		return token{kind: tokNumber, text: l.src[start:l.pos]}
	case c == '`':
		embedded := l.skipTemplate()
		return token{kind: tokString, text: l.src[start:l.pos], embedded: embedded}
	case c == '\'' || c == '"':
		l.skipQuoted(byte(c))
		return token{kind: tokString, text: l.src[start:l.pos]}
	case c == '/' && l.peek(1) == '/':
		// a line comment also ends at a close delimiter, which ends the directive it is in
		for l.width > 0 && l.ch != '\n' && !strings.HasPrefix(l.src[l.pos:], closeDelim) {
			l.advance()
		}
		return token{kind: tokComment}
	case c == '/' && l.peek(1) == '*':
		end := strings.Index(l.src[l.pos+2:], "*/")
		if end < 0 {
			l.pos = len(l.src)
		} else {
			l.pos += end + 4
		}
		l.readRune()
		return token{kind: tokComment}
	case c == '/' && l.regexpAllowed():
		l.skipRegexp()
		return token{kind: tokRegexp, text: l.src[start:l.pos]}
	case c == '.' && l.peek(1) == '.' && l.peek(2) == '.':
		l.pos += 3
		l.readRune()
		return token{kind: tokPunct, text: "..."}
	case c == '=' && l.peek(1) == '>':
		l.pos += 2
		l.readRune()
		return token{kind: tokPunct, text: "=>"}
	}
	l.advance()
	return token{kind: tokPunct, text: l.src[start:l.pos]}
}

func (l *snippetLexer) skipQuoted(quote byte) {
	l.advance()
	for l.width > 0 {
		switch l.src[l.pos] {
		case '\\':
			l.advance()
		case quote:
			l.advance()
			return
		}
		l.advance()
	}
}

// skipTemplate skips a template literal and returns the source of its ${...} substitutions.
func (l *snippetLexer) skipTemplate() []string {
	var embedded []string
	l.advance()
	for l.width > 0 {
		switch l.src[l.pos] {
		case '\\':
			l.advance()
		case '`':
			l.advance()
			return embedded
		case '$':
			if l.peek(1) != '{' {
				break
			}
			start := l.pos + 2
			depth := 0
			for i := start; i < len(l.src); i++ {
				if l.src[i] == '{' {
					depth++
				} else if l.src[i] == '}' {
					if depth == 0 {
						embedded = append(embedded, l.src[start:i])
						l.pos = i
						l.readRune()
						break
					}
					depth--
				}
			}
		}
		l.advance()
	}
	return embedded
}

// regexpAllowed reports whether a slash at this point starts a regexp literal rather than a
// division.
func (l *snippetLexer) regexpAllowed() bool {
	switch l.prev.kind {
	case tokIdent:
		return isReserved(l.prev.text) && l.prev.text != "this"
	case tokNumber, tokString, tokRegexp:
		return false
	case tokPunct:
		return l.prev.text != ")" && l.prev.text != "]" && l.prev.text != "}"
	}
	return true
}

func (l *snippetLexer) skipRegexp() {
	l.advance()
	inClass := false
	for l.width > 0 {
		switch l.src[l.pos] {
		case '\\':
			l.advance()
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				l.advance()
				for l.width > 0 && isIdentRune(l.ch, false) {
					l.advance()
				}
				return
			}
		case '\n':
			return
		}
		l.advance()
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
