package tmplet

import (
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/dop251/goja"
)

// CompileError reports a template whose generated code is invalid. Source is the generated
// function so the offending directive can be found.
type CompileError struct {
	Source string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v\n--- generated source ---\n%s", e.Err, e.Source)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// RenderFunc renders a compiled template against a data context.
type RenderFunc func(ctx map[string]any) (string, error)

// Template is a compiled template. It is immutable and safe for concurrent use.
type Template struct {
	code    *Code
	program *goja.Program
	imports map[string]any
}

// compile runs the whole pipeline. imports is captured and merged below every render context.
func compile(text string, imports map[string]any) (*Template, error) {
	frags, err := Scan(stripHTMLComments(text))
	if err != nil {
		return nil, err
	}
	frags, err = ResolveBlocks(frags)
	if err != nil {
		return nil, err
	}
	code, err := Generate(Normalize(frags))
	if err != nil {
		return nil, err
	}
	program, err := goja.Compile("tmplet", code.Source, false)
	if err != nil {
		return nil, &CompileError{Source: code.Source, Err: err}
	}
	return &Template{code: code, program: program, imports: maps.Clone(imports)}, nil
}

// Source returns the generated function source.
func (t *Template) Source() string {
	return t.code.Source
}

// Vars returns the identifiers bound from the data context.
func (t *Template) Vars() []string {
	return t.code.Vars
}

// Instructions returns the instruction sequence the template was compiled to.
func (t *Template) Instructions() []Instr {
	return t.code.Instrs
}

// Func returns Render as a plain function value.
func (t *Template) Func() RenderFunc {
	return t.Render
}

// Render evaluates the template against ctx. Each call runs in a fresh runtime, so state
// created by template code never leaks between renders. Exceptions thrown by template code are
// returned as is.
func (t *Template) Render(ctx map[string]any) (string, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	fnValue, err := vm.RunProgram(t.program)
	if err != nil {
		return "", err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return "", errors.New("tmplet: generated program is not a function")
	}
	res, err := fn(goja.Undefined(), vm.ToValue(t.context(ctx)))
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// Execute renders the template into w.
func (t *Template) Execute(w io.Writer, ctx map[string]any) error {
	out, err := t.Render(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// context merges imports and ctx; ctx wins on conflicts.
func (t *Template) context(ctx map[string]any) map[string]any {
	merged := make(map[string]any, len(t.imports)+len(ctx))
	maps.Copy(merged, t.imports)
	maps.Copy(merged, ctx)
	return merged
}
