package tmplet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"

	// reservedMarkers may not follow the open delimiter; they are kept for future directive kinds.
	reservedMarkers = "!#$%^&+-*"
)

var (
	ErrUnterminatedDirective = errors.New("tmplet: unterminated directive")
	ErrReservedDirective     = errors.New("tmplet: reserved directive marker")
	ErrMalformedLoop         = errors.New("tmplet: malformed loop directive")
	ErrMissingName           = errors.New("tmplet: directive requires a name")
)

// Kind identifies what a fragment of template text is.
type Kind int

const (
	KindLiteral Kind = iota
	KindPartial
	KindPlaceholder
	KindDefine
	KindDefineEnd
	KindInterpolate
	KindIf
	KindElseIf
	KindElse
	KindEndIf
	KindLoop
	KindEndLoop
	KindEvaluate
)

var kindNames = [...]string{
	KindLiteral:     "literal",
	KindPartial:     "partial",
	KindPlaceholder: "placeholder",
	KindDefine:      "define",
	KindDefineEnd:   "define-end",
	KindInterpolate: "interpolate",
	KindIf:          "if",
	KindElseIf:      "else-if",
	KindElse:        "else",
	KindEndIf:       "end-if",
	KindLoop:        "loop",
	KindEndLoop:     "end-loop",
	KindEvaluate:    "evaluate",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Fragment is one span of scanned template text: either literal text or a single directive.
type Fragment struct {
	Kind Kind
	// Line is the 1-based line the fragment starts on
	Line int
	// Text is the literal text, or the full directive including delimiters
	Text string
	// Expr is the expression or statement snippet carried by the directive
	Expr string
	// Name is the block name or partial path
	Name string
	// Value and Index are the loop bindings of a loop directive
	Value string
	Index string
}

// matcher recognizes one directive kind by the marker directly after the open delimiter.
type matcher struct {
	marker string
	match  func(body string) (Fragment, error)
}

// matchers are tried in order; "??" must precede "?".
var matchers = []matcher{
	{"@", matchPartial},
	{">", matchPlaceholder},
	{"<", matchDefine},
	{"=", matchInterpolate},
	{"??", matchElse},
	{"?", matchIf},
	{"~", matchLoop},
}

var reLoopHeader = regexp.MustCompile(`^([\s\S]+?)\s*:\s*([\w$]+)\s*(?::\s*([\w$]+))?$`)

func matchPartial(body string) (Fragment, error) {
	name := trimName(body)
	if name == "" {
		return Fragment{}, fmt.Errorf("%w: partial include", ErrMissingName)
	}
	return Fragment{Kind: KindPartial, Name: name}, nil
}

func matchPlaceholder(body string) (Fragment, error) {
	name := trimName(body)
	if name == "" {
		return Fragment{}, fmt.Errorf("%w: block placeholder", ErrMissingName)
	}
	return Fragment{Kind: KindPlaceholder, Name: name}, nil
}

func matchDefine(body string) (Fragment, error) {
	name := trimName(body)
	if name == "" {
		return Fragment{Kind: KindDefineEnd}, nil
	}
	return Fragment{Kind: KindDefine, Name: name}, nil
}

func matchInterpolate(body string) (Fragment, error) {
	return Fragment{Kind: KindInterpolate, Expr: strings.TrimSpace(body)}, nil
}

func matchElse(body string) (Fragment, error) {
	expr := strings.TrimSpace(body)
	if expr == "" {
		return Fragment{Kind: KindElse}, nil
	}
	return Fragment{Kind: KindElseIf, Expr: expr}, nil
}

func matchIf(body string) (Fragment, error) {
	expr := strings.TrimSpace(body)
	if expr == "" {
		return Fragment{Kind: KindEndIf}, nil
	}
	return Fragment{Kind: KindIf, Expr: expr}, nil
}

func matchLoop(body string) (Fragment, error) {
	header := strings.TrimSpace(body)
	if header == "" {
		return Fragment{Kind: KindEndLoop}, nil
	}
	sm := reLoopHeader.FindStringSubmatch(header)
	if sm == nil {
		return Fragment{}, fmt.Errorf("%w: %q, want collection:value[:index]", ErrMalformedLoop, header)
	}
	f := Fragment{Kind: KindLoop, Expr: sm[1], Value: sm[2], Index: sm[3]}
	for _, name := range []string{f.Value, f.Index} {
		if name == "" {
			continue
		}
		if !isIdentifier(name) || isInternalName(name) || isReserved(name) {
			return Fragment{}, fmt.Errorf("%w: %q cannot be bound by a loop", ErrMalformedLoop, name)
		}
	}
	if f.Value == f.Index {
		return Fragment{}, fmt.Errorf("%w: value and index are both %q", ErrMalformedLoop, f.Value)
	}
	return f, nil
}

// matchDirective classifies the text between the delimiters.
func matchDirective(body string) (Fragment, error) {
	for _, m := range matchers {
		if strings.HasPrefix(body, m.marker) {
			return m.match(body[len(m.marker):])
		}
	}
	if body != "" && strings.IndexByte(reservedMarkers, body[0]) >= 0 {
		return Fragment{}, fmt.Errorf("%w %q", ErrReservedDirective, body[:1])
	}
	return Fragment{Kind: KindEvaluate, Expr: strings.TrimSpace(body)}, nil
}

// isEvaluate reports whether a directive body starting at s is the bare-code form.
func isEvaluate(s string) bool {
	for _, m := range matchers {
		if strings.HasPrefix(s, m.marker) {
			return false
		}
	}
	return s == "" || strings.IndexByte(reservedMarkers, s[0]) < 0
}

// cutDirective finds the end of the directive whose body starts at from. It returns the body
// and the offset just past the close delimiter.
//
// Block and partial directives hold names and close at the first delimiter. Other directives
// are lexed as code, so delimiters inside strings, regexp literals and comments are skipped.
// Expression directives close at the first delimiter outside any brace they open, leaving
// further braces to the text after them. Bare-code directives close at the first run of two or
// more braces, and the braces of the run beyond the last two belong to the code.
func cutDirective(src string, from int) (string, int, error) {
	body := src[from:]
	if body != "" && strings.IndexByte("@<>", body[0]) >= 0 {
		end := strings.Index(body, closeDelim)
		if end < 0 {
			return "", 0, ErrUnterminatedDirective
		}
		return body[:end], from + end + len(closeDelim), nil
	}
	balanced := !isEvaluate(body)
	lx := newSnippetLexer(body)
	depth := 0
	for {
		tok := lx.next()
		switch {
		case tok.kind == tokEOF:
			return "", 0, ErrUnterminatedDirective
		case tok.kind != tokPunct:
		case tok.text == "{":
			depth++
		case tok.text != "}":
		case balanced && depth > 0:
			depth--
		case balanced:
			if strings.HasPrefix(body[tok.pos:], closeDelim) {
				return body[:tok.pos], from + tok.pos + len(closeDelim), nil
			}
		default:
			run := tok.pos
			for run < len(body) && body[run] == '}' {
				run++
			}
			if run-tok.pos >= len(closeDelim) {
				return body[:run-len(closeDelim)], from + run, nil
			}
		}
	}
}

// Scan splits template text into literal and directive fragments in document order.
func Scan(src string) ([]Fragment, error) {
	var frags []Fragment
	pos := 0
	for pos < len(src) {
		i := strings.Index(src[pos:], openDelim)
		if i < 0 {
			break
		}
		start := pos + i
		if start > pos {
			frags = append(frags, Fragment{Kind: KindLiteral, Line: lineAt(src, pos), Text: src[pos:start]})
		}
		body, end, err := cutDirective(src, start+len(openDelim))
		if err != nil {
			return nil, fmt.Errorf("%w at line %d", err, lineAt(src, start))
		}
		f, err := matchDirective(body)
		if err != nil {
			return nil, fmt.Errorf("%w at line %d", err, lineAt(src, start))
		}
		f.Line = lineAt(src, start)
		f.Text = src[start:end]
		frags = append(frags, f)
		pos = end
	}
	if pos < len(src) {
		frags = append(frags, Fragment{Kind: KindLiteral, Line: lineAt(src, pos), Text: src[pos:]})
	}
	return frags, nil
}

func lineAt(src string, pos int) int {
	return strings.Count(src[:pos], "\n") + 1
}

// trimName strips spaces and quotes around a block name or partial path.
func trimName(n string) string {
	n = strings.TrimSpace(n)
	return strings.Trim(n, `"' `)
}
