package tmplet

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func renderText(t *testing.T, src string, ctx map[string]any) string {
	t.Helper()
	tpl, err := Compile(src)
	require.NoError(t, err)
	out, err := tpl.Render(ctx)
	require.NoError(t, err)
	return out
}

func TestRender_Interpolation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ctx  map[string]any
		want string
	}{
		{"plain", "Hello, {{= name }}!", map[string]any{"name": "World"}, "Hello, World!"},
		{"nested map", "{{= user.name }}", map[string]any{"user": map[string]any{"name": "Ann"}}, "Ann"},
		{"expression", "{{= a * 2 + 1 }}", map[string]any{"a": 3}, "7"},
		{"undefined is empty", "[{{= missing }}]", nil, "[]"},
		{"null is empty", "[{{= x }}]", map[string]any{"x": nil}, "[]"},
		{"zero is kept", "[{{= x }}]", map[string]any{"x": 0}, "[0]"},
		{"false is kept", "[{{= x }}]", map[string]any{"x": false}, "[false]"},
		{"globals", "{{= Math.max(a, b) }}", map[string]any{"a": 2, "b": 5}, "5"},
		{"template literal", "{{= `${first}-${last}` }}", map[string]any{"first": "a", "last": "b"}, "a-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderText(t, tt.src, tt.ctx))
		})
	}
}

func TestRender_LiteralRoundTrip(t *testing.T) {
	for _, src := range []string{
		"",
		"Hello, World!",
		`It's C:\dir`,
		`"double" and 'single' and \n not a newline`,
		"a}b{c } }",
	} {
		assert.Equal(t, src, renderText(t, src, nil), "%q", src)
	}
}

func TestRender_Conditional(t *testing.T) {
	tpl, err := Compile(`{{? n > 10 }}A{{?? n > 5 }}B{{?? }}C{{? }}`)
	require.NoError(t, err)
	for n, want := range map[int]string{1: "C", 7: "B", 11: "A"} {
		out, err := tpl.Render(map[string]any{"n": n})
		require.NoError(t, err)
		assert.Equal(t, want, out, "n=%d", n)
	}
}

func TestRender_Iteration(t *testing.T) {
	src := `{{~ arr:v:i }}{{= i }}:{{= v }};{{~ }}`
	assert.Equal(t, "0:x;1:y;", renderText(t, src, map[string]any{"arr": []any{"x", "y"}}))
	assert.Equal(t, "", renderText(t, src, map[string]any{"arr": []any{}}))
	assert.Equal(t, "", renderText(t, src, nil))

	nested := `{{~ rows:row }}[{{~ row:cell:j }}{{= j }}{{= cell }}{{~ }}]{{~ }}`
	rows := []any{[]any{"a", "b"}, []any{"c"}}
	assert.Equal(t, "[0a1b][0c]", renderText(t, nested, map[string]any{"rows": rows}))
}

func TestRender_Blocks(t *testing.T) {
	before := renderText(t, `{{< t }}A{{< }}[{{> t }}]`, nil)
	after := renderText(t, `[{{> t }}]{{< t }}A{{< }}`, nil)
	assert.Equal(t, "[A]", before)
	assert.Equal(t, before, after)
	assert.Equal(t, "[]", renderText(t, `[{{> nope }}]`, nil))
}

func TestRender_Evaluate(t *testing.T) {
	src := `{{ let sum = 0; for (let i = 0; i < nums.length; i++) { sum += nums[i]; } }}{{= sum }}`
	assert.Equal(t, "6", renderText(t, src, map[string]any{"nums": []any{1, 2, 3}}))

	src = `{{ if (ok) { }}yes{{ } else { }}no{{ }}}`
	assert.Equal(t, "yes", renderText(t, src, map[string]any{"ok": true}))
	assert.Equal(t, "no", renderText(t, src, map[string]any{"ok": false}))
}

func TestRender_DirectiveBoundaries(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ctx  map[string]any
		want string
	}{
		{"brace after expression", `{"n":{{= n }}}`, map[string]any{"n": 1}, `{"n":1}`},
		{"object literal in expression", `{{= JSON.stringify({n: n}) }}`, map[string]any{"n": 2}, `{"n":2}`},
		{"quote in regexp", `{{= s.replace(/'/g, '&#39;') }}`, map[string]any{"s": "it's"}, "it&#39;s"},
		{"quote in comment", `{{ /* it's */ x++ }}{{= x }}`, map[string]any{"x": 1}, "2"},
		{"comment markers in strings", `{{= '<!--' }}x{{= '-->' }}`, nil, "<!--x-->"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderText(t, tt.src, tt.ctx))
		})
	}
}

func TestRender_StatementBindings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ctx  map[string]any
		want string
	}{
		{"several declarators", `{{ var a = 1, b = 2; }}{{= a + b }}`, nil, "3"},
		{"var redeclares a data field", `{{= x }}{{ var x = 5; }}{{= x }}`, map[string]any{"x": "d"}, "d5"},
		{"var in a for head", `{{ for (var i = 0, n = xs.length; i < n; i++) { }}{{= xs[i] }}{{ } }}`, map[string]any{"xs": []any{"a", "b"}}, "ab"},
		{"let ends with its block", `{{ if (flag) { let tmp = 1; } }}{{= tmp }}`, map[string]any{"flag": true, "tmp": "T"}, "T"},
		{"let inside a branch", `{{? ok }}{{ let t = 1; }}{{= t }}{{? }}{{= t }}`, map[string]any{"ok": true, "t": "T"}, "1T"},
		{"destructuring", `{{ const { a, b: c } = obj; }}{{= a + c }}`, map[string]any{"obj": map[string]any{"a": 1, "b": 2}}, "3"},
		{"function body across directives", `{{ items.forEach(function (item) { }}<b>{{= item }}</b>{{ }); }}`, map[string]any{"items": []any{"x", "y"}}, "<b>x</b><b>y</b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderText(t, tt.src, tt.ctx))
		})
	}
}

func TestRender_HTMLCommentDropsDirective(t *testing.T) {
	tpl, err := Compile("a<!-- {{= secret() }} -->b")
	require.NoError(t, err)
	assert.Empty(t, tpl.Vars())
	out, err := tpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestRender_Whitespace(t *testing.T) {
	src := "<ul>\n  {{~ xs:x }}\n    <li>{{= x }}</li>\n  {{~ }}\n</ul>\n"
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>", renderText(t, src, map[string]any{"xs": []any{"a", "b"}}))
}

func TestRender_StructFieldsUseJSONNames(t *testing.T) {
	type person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	out := renderText(t, "{{= p.name }} ({{= p.age }})", map[string]any{"p": person{Name: "Ann", Age: 30}})
	assert.Equal(t, "Ann (30)", out)
}

func TestRender_FreshRuntimePerCall(t *testing.T) {
	tpl, err := Compile(`{{ globalThis.hits = (globalThis.hits || 0) + 1; }}{{= globalThis.hits }}`)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		out, err := tpl.Render(nil)
		require.NoError(t, err)
		assert.Equal(t, "1", out)
	}
}

func TestCompile_Idempotent(t *testing.T) {
	src := `{{< row }}<b>{{= v }}</b>{{< }}{{~ list:v }}{{> row }}{{~ }}`
	a, err := Compile(src)
	require.NoError(t, err)
	b, err := Compile(src)
	require.NoError(t, err)
	assert.Equal(t, a.Source(), b.Source())
	assert.Equal(t, a.Vars(), b.Vars())
	assert.Equal(t, a.Instructions(), b.Instructions())
}

func TestCompile_Errors(t *testing.T) {
	t.Run("host syntax error carries source", func(t *testing.T) {
		_, err := Compile(`{{= a + }}`)
		var ce *CompileError
		require.True(t, errors.As(err, &ce))
		assert.Contains(t, ce.Source, "out+=$$str((a + ));")
		assert.Contains(t, err.Error(), "--- generated source ---")
	})
	t.Run("unbalanced", func(t *testing.T) {
		_, err := Compile(`{{? a }}open`)
		assert.ErrorIs(t, err, ErrUnbalanced)
	})
	t.Run("reserved marker", func(t *testing.T) {
		_, err := Compile(`{{# x }}`)
		assert.ErrorIs(t, err, ErrReservedDirective)
	})
	t.Run("block cycle", func(t *testing.T) {
		_, err := Compile(`{{< a }}{{> a }}{{< }}{{> a }}`)
		assert.ErrorIs(t, err, ErrBlockCycle)
	})
	t.Run("unresolved partial", func(t *testing.T) {
		_, err := Compile(`{{@ nav }}`)
		assert.ErrorIs(t, err, ErrUnresolvedPartial)
	})
}

func TestRender_EvaluationErrorPropagates(t *testing.T) {
	tpl, err := Compile(`{{= nope() }}`)
	require.NoError(t, err)
	_, err = tpl.Render(nil)
	var ex *goja.Exception
	assert.True(t, errors.As(err, &ex), "got %v", err)
}

func TestTemplate_ExecuteAndFunc(t *testing.T) {
	tpl := MustCompile(`<p>{{= msg }}</p>`)
	var b strings.Builder
	require.NoError(t, tpl.Execute(&b, map[string]any{"msg": "hi"}))
	assert.Equal(t, "<p>hi</p>", b.String())

	fn := tpl.Func()
	out, err := fn(map[string]any{"msg": "yo"})
	require.NoError(t, err)
	assert.Equal(t, "<p>yo</p>", out)

	assert.Panics(t, func() { MustCompile(`{{~ }}`) })
}

func TestTemplate_ConcurrentRender(t *testing.T) {
	tpl := MustCompile(`{{~ xs:x:i }}{{= prefix }}{{= i }}={{= x }} {{~ }}`)
	var g errgroup.Group
	for n := 0; n < 16; n++ {
		n := n
		g.Go(func() error {
			prefix := fmt.Sprintf("g%d:", n)
			out, err := tpl.Render(map[string]any{"prefix": prefix, "xs": []any{n, n * 2}})
			if err != nil {
				return err
			}
			want := fmt.Sprintf("%s0=%d %s1=%d ", prefix, n, prefix, n*2)
			if out != want {
				return fmt.Errorf("got %q, want %q", out, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestEngine_ImportsAreOverriddenByContext(t *testing.T) {
	e := NewEngineFS(nil)
	e.SetOptions(Options{Imports: map[string]any{"site": "imported", "upper": strings.ToUpper}})

	out, err := e.Render(`{{= site }}|{{= upper(name) }}`, map[string]any{"name": "bo"})
	require.NoError(t, err)
	assert.Equal(t, "imported|BO", out)

	out, err = e.Render(`{{= site }}`, map[string]any{"site": "ctx"})
	require.NoError(t, err)
	assert.Equal(t, "ctx", out)
}

func TestEngine_OptionsAffectLaterCompilesOnly(t *testing.T) {
	e := NewEngineFS(nil)
	e.SetOptions(Options{Imports: map[string]any{"v": "old"}})
	tpl, err := e.Compile(`{{= v }}`)
	require.NoError(t, err)

	e.SetOptions(Options{Imports: map[string]any{"v": "new"}})
	out, err := tpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "old", out)

	out, err = e.Render(`{{= v }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}

func TestInit(t *testing.T) {
	Init(Options{Imports: map[string]any{"initGreeting": "hi"}})
	out, err := Render(`{{= initGreeting }}, {{= who }}`, map[string]any{"who": "there"})
	require.NoError(t, err)
	assert.Equal(t, "hi, there", out)
	assert.Equal(t, "hi", Default().Options().Imports["initGreeting"])
}
