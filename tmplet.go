// Package tmplet compiles text templates with embedded directives into reusable render
// functions.
//
// Directives:
//
//	{{ code }}                  run a statement
//	{{= expr }}                 insert a value; undefined and null insert nothing
//	{{? expr }} {{?? expr }} {{?? }} {{? }}
//	                            if / else if / else / end
//	{{~ list:value:index }} {{~ }}
//	                            loop; the index is optional and starts at 0
//	{{< name }} ... {{< }}      define a block
//	{{> name }}                 insert a block, empty when undefined
//	{{@ path }}                 include another file (views only)
//
// Expressions and statements are JavaScript, evaluated with full capability by an embedded
// interpreter. Identifiers used by a template are bound from the render context, so a template
// writes {{= title }} rather than {{= data.title }}.
package tmplet

var std = NewEngine(".")

// Init merges opts into the process-wide options used by Compile, Render and View.
// Later calls override earlier ones field by field.
func Init(opts Options) {
	std.SetOptions(opts)
}

// Default returns the engine behind the package-level functions.
func Default() *Engine {
	return std
}

// Compile compiles template text.
func Compile(text string) (*Template, error) {
	return Default().Compile(text)
}

// MustCompile is like Compile but panics if the template cannot be compiled.
func MustCompile(text string) *Template {
	t, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Render compiles text and renders it against ctx.
func Render(text string, ctx map[string]any) (string, error) {
	return Default().Render(text, ctx)
}

// View loads the named file under the configured root, expands its partials, compiles it once
// and renders it against ctx.
func View(name string, ctx map[string]any) (string, error) {
	return Default().View(name, ctx)
}
