package tmplet

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

var _ render.HTMLRender = (*HtmlRender)(nil)

// HtmlRender gin HtmlRender compatible
type HtmlRender struct {
	e *Engine
}

// NewHTMLRender create a new HtmlRender
func NewHTMLRender(e *Engine) *HtmlRender {
	return &HtmlRender{e: e}
}

// Instance returns a new render.Render
func (h *HtmlRender) Instance(name string, data any) render.Render {
	return &HTMLInstance{e: h.e, name: name, data: data}
}

// HTMLInstance renders a view with data and writes it to the response
type HTMLInstance struct {
	e    *Engine
	name string
	data any
}

// Render renders the view with data and writes to w
func (r *HTMLInstance) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	ctx, err := contextOf(r.data)
	if err != nil {
		return err
	}
	return r.e.Execute(w, r.name, ctx)
}

// WriteContentType write an HTML content type to the response header if not set
func (r *HTMLInstance) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{"text/html; charset=utf-8"}
	}
}

// contextOf converts view data passed through gin into a render context.
func contextOf(data any) (map[string]any, error) {
	switch d := data.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return d, nil
	case gin.H:
		return d, nil
	default:
		return nil, fmt.Errorf("tmplet: view data must be a map, got %T", data)
	}
}
