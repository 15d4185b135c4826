package tmplet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnbalanced        = errors.New("tmplet: unbalanced directive")
	ErrUnresolvedPartial = errors.New("tmplet: partial include must be resolved before compiling")
)

// Op is an instruction of the compiled form of a template.
type Op int

const (
	OpLiteral Op = iota
	OpExpr
	OpIf
	OpElseIf
	OpElse
	OpEndIf
	OpLoop
	OpEndLoop
	OpCode
)

var opNames = [...]string{
	OpLiteral: "literal",
	OpExpr:    "expr",
	OpIf:      "if",
	OpElseIf:  "else-if",
	OpElse:    "else",
	OpEndIf:   "end-if",
	OpLoop:    "loop",
	OpEndLoop: "end-loop",
	OpCode:    "code",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// Instr is one instruction. Arg holds the literal text, expression, loop collection or
// statement; Value and Index are set on OpLoop only.
type Instr struct {
	Op    Op
	Arg   string
	Value string
	Index string
	Line  int
}

// Code is the output of the generator.
type Code struct {
	Instrs []Instr
	// Vars are the identifiers bound from the data context, in first-seen order
	Vars []string
	// Source is the complete function expression handed to the evaluator
	Source string
}

// openScope is an if or loop that has not been closed yet.
type openScope struct {
	op      Op
	line    int
	sawElse bool
}

type generator struct {
	instrs []Instr
	body   strings.Builder
	vars   *VarSet
	scopes []openScope
	loops  int
}

// Generate lowers block-resolved, normalized fragments into instructions and assembles them
// into a function body. Snippets are scanned for free variables as they are lowered, with the
// scopes that are open at that point: if branches, loop bodies, and blocks opened by code.
func Generate(frags []Fragment) (*Code, error) {
	g := &generator{vars: NewVarSet()}
	for _, f := range frags {
		if err := g.lower(f); err != nil {
			return nil, &CompileError{Source: g.assemble(), Err: err}
		}
	}
	if n := len(g.scopes); n > 0 {
		top := g.scopes[n-1]
		err := fmt.Errorf("%w: %s opened at line %d is never closed", ErrUnbalanced, top.op, top.line)
		return nil, &CompileError{Source: g.assemble(), Err: err}
	}
	return &Code{Instrs: g.instrs, Vars: g.vars.Names(), Source: g.assemble()}, nil
}

func (g *generator) lower(f Fragment) error {
	switch f.Kind {
	case KindLiteral:
		g.emit(Instr{Op: OpLiteral, Arg: f.Text, Line: f.Line})
	case KindInterpolate:
		g.vars.Scan(f.Expr, false)
		g.emit(Instr{Op: OpExpr, Arg: f.Expr, Line: f.Line})
	case KindIf:
		g.vars.Scan(f.Expr, false)
		g.vars.Push()
		g.scopes = append(g.scopes, openScope{op: OpIf, line: f.Line})
		g.emit(Instr{Op: OpIf, Arg: f.Expr, Line: f.Line})
	case KindElseIf, KindElse:
		top, err := g.top(OpIf, f)
		if err != nil {
			return err
		}
		if top.sawElse {
			return fmt.Errorf("%w: %s after {{?? }} at line %d", ErrUnbalanced, f.Kind, f.Line)
		}
		g.vars.Pop()
		if f.Kind == KindElse {
			top.sawElse = true
			g.vars.Push()
			g.emit(Instr{Op: OpElse, Line: f.Line})
			break
		}
		g.vars.Scan(f.Expr, false)
		g.vars.Push()
		g.emit(Instr{Op: OpElseIf, Arg: f.Expr, Line: f.Line})
	case KindEndIf:
		if _, err := g.top(OpIf, f); err != nil {
			return err
		}
		g.scopes = g.scopes[:len(g.scopes)-1]
		g.vars.Pop()
		g.emit(Instr{Op: OpEndIf, Line: f.Line})
	case KindLoop:
		g.vars.Scan(f.Expr, false)
		g.vars.Push()
		g.vars.Declare(f.Value)
		if f.Index != "" {
			g.vars.Declare(f.Index)
		}
		g.scopes = append(g.scopes, openScope{op: OpLoop, line: f.Line})
		g.emit(Instr{Op: OpLoop, Arg: f.Expr, Value: f.Value, Index: f.Index, Line: f.Line})
	case KindEndLoop:
		if _, err := g.top(OpLoop, f); err != nil {
			return err
		}
		g.scopes = g.scopes[:len(g.scopes)-1]
		g.vars.Pop()
		g.emit(Instr{Op: OpEndLoop, Line: f.Line})
	case KindEvaluate:
		g.vars.Scan(f.Expr, true)
		g.emit(Instr{Op: OpCode, Arg: f.Expr, Line: f.Line})
	case KindPartial:
		return fmt.Errorf("%w: %q at line %d", ErrUnresolvedPartial, f.Name, f.Line)
	default:
		return fmt.Errorf("tmplet: unexpected %s directive at line %d", f.Kind, f.Line)
	}
	return nil
}

// top returns the innermost open scope, which must be of kind op.
func (g *generator) top(op Op, f Fragment) (*openScope, error) {
	if len(g.scopes) == 0 {
		return nil, fmt.Errorf("%w: %s at line %d has no open %s", ErrUnbalanced, f.Kind, f.Line, op)
	}
	top := &g.scopes[len(g.scopes)-1]
	if top.op != op {
		return nil, fmt.Errorf("%w: %s at line %d inside %s opened at line %d", ErrUnbalanced, f.Kind, f.Line, top.op, top.line)
	}
	return top, nil
}

func (g *generator) emit(in Instr) {
	g.instrs = append(g.instrs, in)
	b := &g.body
	switch in.Op {
	case OpLiteral:
		b.WriteString("out+=" + quoteLiteral(in.Arg) + ";\n")
	case OpExpr:
		b.WriteString("out+=$$str((" + in.Arg + "));\n")
	case OpIf:
		b.WriteString("if(" + in.Arg + "){\n")
	case OpElseIf:
		b.WriteString("}else if(" + in.Arg + "){\n")
	case OpElse:
		b.WriteString("}else{\n")
	case OpEndIf:
		b.WriteString("}\n")
	case OpLoop:
		g.loops++
		arr := fmt.Sprintf("%sa%d", internalPrefix, g.loops)
		key := fmt.Sprintf("%sk%d", internalPrefix, g.loops)
		fmt.Fprintf(b, "{const %s=(%s);if(%s){", arr, in.Arg, arr)
		if in.Index != "" {
			fmt.Fprintf(b, "let %s=-1;", in.Index)
		}
		fmt.Fprintf(b, "for(let %s=0;%s<%s.length;%s++){let %s=%s[%s];", key, key, arr, key, in.Value, arr, key)
		if in.Index != "" {
			fmt.Fprintf(b, "%s++;", in.Index)
		}
		b.WriteString("\n")
	case OpEndLoop:
		b.WriteString("}}}\n")
	case OpCode:
		b.WriteString(in.Arg + "\n")
	}
}

// assemble wraps the body in a function of the data context. Free variables are var-declared
// in the function scope and the body runs in an inner block, so let and const declarations made
// by template code shadow them and var declarations share them.
func (g *generator) assemble() string {
	var b strings.Builder
	b.WriteString("(function(data){\n")
	b.WriteString("const $$str=v=>v==null?'':v;\n")
	for _, name := range g.vars.Names() {
		fmt.Fprintf(&b, "var %s=data.%s;\n", name, name)
	}
	b.WriteString("{\nlet out='';\n")
	b.WriteString(g.body.String())
	b.WriteString("return out;\n}\n})")
	return b.String()
}
