package tmplet

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLRender(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := NewEngineFS(fstest.MapFS{
		"index.html": file(`<h1>{{= title }}</h1>{{~ items:it }}<i>{{= it }}</i>{{~ }}`),
	})
	r := gin.New()
	r.HTMLRender = NewHTMLRender(e)
	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index", gin.H{"title": "Hi", "items": []any{1, 2}})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "<h1>Hi</h1><i>1</i><i>2</i>", w.Body.String())
}

func TestRender_KeepsContentType(t *testing.T) {
	e := NewEngineFS(fstest.MapFS{"x.html": file(`x`)})
	w := httptest.NewRecorder()
	w.Header().Set("Content-Type", "text/plain")
	rr := NewHTMLRender(e).Instance("x", nil)
	require.NoError(t, rr.Render(w))
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "x", w.Body.String())
}

func TestContextOf(t *testing.T) {
	ctx, err := contextOf(nil)
	require.NoError(t, err)
	assert.Empty(t, ctx)

	ctx, err = contextOf(gin.H{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, ctx["a"])

	ctx, err = contextOf(map[string]any{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ctx["b"])

	_, err = contextOf([]string{"no"})
	assert.Error(t, err)
}
