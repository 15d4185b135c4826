package tmplet

import (
	"strings"
	"unicode"
)

const (
	outName  = "out"
	dataName = "data"
	// internalPrefix marks names the generator declares for its own use.
	internalPrefix = "$$"
)

// reservedWords are never bound from the data context. A template field with one of these
// names is silently left unbound.
var reservedWords = toSet(
	"break", "case", "catch", "class", "const", "continue", "debugger", "default", "delete",
	"do", "else", "enum", "export", "extends", "false", "finally", "for", "function", "if",
	"import", "in", "instanceof", "new", "null", "return", "super", "switch", "this", "throw",
	"true", "try", "typeof", "var", "void", "while", "with", "yield", "let", "static",
	"implements", "interface", "package", "private", "protected", "public", "await",
	"undefined", "NaN", "Infinity", "arguments", "eval",
)

// globals resolve to the evaluator's built-ins rather than the data context.
var globals = toSet(
	"Math", "JSON", "Object", "Array", "String", "Number", "Boolean", "Date", "RegExp",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "Symbol", "Map", "Set",
	"WeakMap", "WeakSet", "Promise", "Proxy", "Reflect", "parseInt", "parseFloat", "isNaN",
	"isFinite", "encodeURI", "encodeURIComponent", "decodeURI", "decodeURIComponent",
	"escape", "unescape", "globalThis",
)

func toSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func isReserved(name string) bool {
	_, ok := reservedWords[name]
	return ok
}

func isInternalName(name string) bool {
	return name == outName || name == dataName || strings.HasPrefix(name, internalPrefix)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !isIdentRune(r, i == 0) {
			return false
		}
	}
	return true
}

func isIdentRune(r rune, first bool) bool {
	switch {
	case r == '_' || r == '$' || unicode.IsLetter(r):
		return true
	case !first && unicode.IsDigit(r):
		return true
	}
	return false
}

// scope is a lexical scope open at the current point of the template.
type scope struct {
	names map[string]struct{}
	// fn marks function scopes; var declarations stop at the innermost one
	fn bool
	// gen marks scopes opened with Push
	gen bool
	// header is set while a for, function, catch or arrow head waits for its body
	header bool
	// stmt marks a body that is a single statement or expression rather than a block. It
	// ends at a semicolon or a closing bracket at nest, and at a comma when commaEnds is set.
	stmt      bool
	commaEnds bool
	// nest is the bracket depth the head or body started at
	nest int
}

func (sc *scope) add(name string) {
	sc.names[name] = struct{}{}
}

// VarSet collects the free identifiers of a sequence of snippets, in first-seen order. A name
// is free when it is used outside every scope that declares it, at the point of use.
type VarSet struct {
	names  []string
	seen   map[string]struct{}
	scopes []*scope
}

func NewVarSet() *VarSet {
	s := &VarSet{seen: map[string]struct{}{}}
	s.push(&scope{})
	return s
}

// Names returns the collected free identifiers.
func (s *VarSet) Names() []string {
	return s.names
}

// Push opens a block scope for an if branch or a loop body.
func (s *VarSet) Push() {
	s.push(&scope{gen: true})
}

// Pop closes the innermost scope opened with Push, and any scope left open inside it.
func (s *VarSet) Pop() {
	for len(s.scopes) > 1 {
		top := s.top()
		s.scopes = s.scopes[:len(s.scopes)-1]
		if top.gen {
			return
		}
	}
}

// Declare binds names in the innermost scope.
func (s *VarSet) Declare(names ...string) {
	top := s.top()
	for _, n := range names {
		top.add(n)
	}
}

func (s *VarSet) push(sc *scope) *scope {
	sc.names = map[string]struct{}{}
	s.scopes = append(s.scopes, sc)
	return sc
}

func (s *VarSet) top() *scope {
	return s.scopes[len(s.scopes)-1]
}

// declareVar binds a var-declared name in the innermost function scope, or at the top of the
// template.
func (s *VarSet) declareVar(name string) {
	for i := len(s.scopes) - 1; i > 0; i-- {
		if s.scopes[i].fn {
			s.scopes[i].add(name)
			return
		}
	}
	s.scopes[0].add(name)
}

// closeBlock ends the block a closing brace belongs to. Scopes opened with Push are only
// closed by Pop.
func (s *VarSet) closeBlock() {
	if len(s.scopes) > 1 && !s.top().gen {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func (s *VarSet) bound(name string) bool {
	for _, sc := range s.scopes {
		if _, ok := sc.names[name]; ok {
			return true
		}
	}
	return false
}

func (s *VarSet) use(name string) {
	if isReserved(name) || isInternalName(name) {
		return
	}
	if _, ok := globals[name]; ok {
		return
	}
	if _, ok := s.seen[name]; ok {
		return
	}
	if s.bound(name) {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}

// Scan adds the free identifiers of snippet. Blocks opened by the snippet stay open for later
// snippets until their closing brace. When declare is set the snippet is a statement, and
// names it declares with let, const, var, function or class are bound in their scope.
func (s *VarSet) Scan(snippet string, declare bool) {
	a := &analyzer{s: s, toks: tokenize(snippet), declare: declare, base: len(s.scopes)}
	for i := 0; i < len(a.toks); {
		i = a.step(i)
	}
	// expression bodies and dangling heads never outlive their snippet
	for len(s.scopes) > a.base {
		if top := s.top(); !top.stmt && !top.header {
			break
		}
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// declaration tracks a let, const or var statement being scanned.
type declaration struct {
	kind string
	nest int
	// binding is set where a declarator is expected
	binding bool
}

type analyzer struct {
	s       *VarSet
	toks    []token
	declare bool
	// base is the scope depth when the snippet started
	base int
	nest int
	decl declaration
}

func (a *analyzer) step(i int) int {
	t := a.toks[i]
	for _, e := range t.embedded {
		a.s.Scan(e, false)
	}
	switch {
	case t.kind == tokPunct:
		return a.punct(i)
	case t.kind == tokIdent && !t.property:
		return a.ident(i)
	}
	return i + 1
}

func (a *analyzer) punct(i int) int {
	text := a.toks[i].text
	if a.decl.binding && a.nest == a.decl.nest && (text == "{" || text == "[") {
		a.decl.binding = false
		return a.pattern(i, a.bindDecl)
	}
	switch text {
	case "(":
		if j := a.matching(i); j >= 0 && a.is(j+1, "=>") {
			sc := a.s.push(&scope{fn: true})
			a.pattern(i, sc.add)
			return a.body(j+2, sc, true)
		}
		a.nest++
	case "[":
		a.nest++
	case "{":
		a.nest++
		a.s.push(&scope{})
	case ")", "]", "}":
		a.endStatements(func(sc *scope) bool { return sc.nest >= a.nest })
		a.nest--
		if a.decl.kind != "" && a.nest < a.decl.nest {
			a.decl = declaration{}
		}
		if text == "}" {
			a.s.closeBlock()
			break
		}
		if top := a.s.top(); top.header && top.nest == a.nest && len(a.s.scopes) > a.base {
			top.header = false
			return a.body(i+1, top, false)
		}
	case ",":
		a.endStatements(func(sc *scope) bool { return sc.commaEnds && sc.nest == a.nest })
		if a.decl.kind != "" && a.nest == a.decl.nest {
			a.decl.binding = true
		}
	case ";":
		a.endStatements(func(sc *scope) bool { return sc.nest >= a.nest })
		if a.decl.kind != "" && a.nest <= a.decl.nest {
			a.decl = declaration{}
		}
	}
	return i + 1
}

func (a *analyzer) ident(i int) int {
	name := a.toks[i].text
	switch {
	case a.decl.binding && a.nest == a.decl.nest:
		a.decl.binding = false
		a.bindDecl(name)
		return i + 1
	case a.declare && (name == "let" || name == "const" || name == "var"):
		a.decl = declaration{kind: name, nest: a.nest, binding: true}
		return i + 1
	case name == "of" && a.decl.kind != "":
		return i + 1
	case name == "function":
		return a.function(i + 1)
	case name == "class":
		if a.declare && a.identAt(i+1) {
			a.s.top().add(a.toks[i+1].text)
		}
		return i + 1
	case name == "for" && a.is(i+1, "("):
		a.s.push(&scope{header: true, nest: a.nest})
		a.nest++
		return i + 2
	case name == "catch" && a.is(i+1, "("):
		sc := a.s.push(&scope{})
		return a.body(a.pattern(i+1, sc.add), sc, false)
	case a.is(i+1, "=>"):
		sc := a.s.push(&scope{fn: true})
		sc.add(name)
		return a.body(i+2, sc, true)
	}
	a.s.use(name)
	return i + 1
}

// function scans a function head starting after the keyword.
func (a *analyzer) function(i int) int {
	if a.is(i, "*") {
		i++
	}
	if a.identAt(i) {
		if a.declare {
			a.s.top().add(a.toks[i].text)
		}
		i++
	}
	if !a.is(i, "(") {
		return i
	}
	sc := a.s.push(&scope{fn: true})
	return a.body(a.pattern(i, sc.add), sc, false)
}

// body attaches the body starting at i to sc, which was pushed for a head.
func (a *analyzer) body(i int, sc *scope, commaEnds bool) int {
	switch {
	case a.is(i, "{"):
		a.nest++
		return i + 1
	case i >= len(a.toks):
		sc.header = true
	default:
		sc.stmt, sc.commaEnds, sc.nest = true, commaEnds, a.nest
	}
	return i
}

func (a *analyzer) endStatements(ends func(*scope) bool) {
	for len(a.s.scopes) > a.base {
		top := a.s.top()
		if !top.stmt || !ends(top) {
			return
		}
		a.s.scopes = a.s.scopes[:len(a.s.scopes)-1]
	}
}

func (a *analyzer) bindDecl(name string) {
	if a.decl.kind == "var" {
		a.s.declareVar(name)
		return
	}
	a.s.top().add(name)
}

// pattern binds the names of a destructuring pattern or parameter list opening at i and
// returns the index after it. Default values are scanned as expressions.
func (a *analyzer) pattern(i int, bind func(string)) int {
	open := a.toks[i].text
	closer := map[string]string{"{": "}", "[": "]", "(": ")"}[open]
	for i++; i < len(a.toks); {
		t := a.toks[i]
		switch {
		case t.kind == tokPunct && t.text == closer:
			return i + 1
		case t.kind == tokPunct && (t.text == "{" || t.text == "["):
			i = a.pattern(i, bind)
		case t.kind == tokPunct && t.text == "=":
			i = a.expr(i + 1)
		case t.kind == tokIdent && open == "{" && a.is(i+1, ":"):
			i += 2
		case t.kind == tokIdent:
			bind(t.text)
			i++
		default:
			i++
		}
	}
	return i
}

// expr scans uses up to the next comma or unmatched closing bracket.
func (a *analyzer) expr(i int) int {
	depth := 0
	for ; i < len(a.toks); i++ {
		t := a.toks[i]
		switch {
		case t.kind == tokPunct && (t.text == "(" || t.text == "[" || t.text == "{"):
			depth++
		case t.kind == tokPunct && (t.text == ")" || t.text == "]" || t.text == "}"):
			if depth == 0 {
				return i
			}
			depth--
		case t.kind == tokPunct && t.text == "," && depth == 0:
			return i
		case t.kind == tokIdent && !t.property:
			a.s.use(t.text)
		}
	}
	return i
}

// matching returns the index of the bracket closing the one at i, or -1.
func (a *analyzer) matching(i int) int {
	depth := 0
	for j := i; j < len(a.toks); j++ {
		if a.toks[j].kind != tokPunct {
			continue
		}
		switch a.toks[j].text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			if depth--; depth == 0 {
				return j
			}
		}
	}
	return -1
}

func (a *analyzer) is(i int, punct string) bool {
	return i < len(a.toks) && a.toks[i].kind == tokPunct && a.toks[i].text == punct
}

func (a *analyzer) identAt(i int) bool {
	return i < len(a.toks) && a.toks[i].kind == tokIdent
}
