package tmplet

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var ErrPartialCycle = errors.New("tmplet: cyclic partial include")

// ValidFileExtensions are tried in order for names given without an extension.
var ValidFileExtensions = []string{".html", ".tmpl", ".tmplet"}

var rePartial = regexp.MustCompile(`\{\{@\s*([^}]*?)\s*\}\}`) // {{@ path }}

// Loader reads templates from a filesystem and expands partial includes.
type Loader struct {
	fs     fs.FS
	prefix string
}

// NewLoader creates a loader reading from fsys. Names are resolved under prefix, which lets an
// embed.FS be used with its top directory.
func NewLoader(fsys fs.FS, prefix string) *Loader {
	return &Loader{fs: fsys, prefix: prefix}
}

// Load returns the content of the named template.
func (l *Loader) Load(name string) (string, error) {
	p, err := l.find(name)
	if err != nil {
		return "", err
	}
	raw, err := fs.ReadFile(l.fs, p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ResolvePartials replaces every partial include in text with the content of the referenced
// file, expanding includes inside included files too. A file that includes itself, directly or
// through other partials, fails with ErrPartialCycle.
func (l *Loader) ResolvePartials(text string) (string, error) {
	return l.resolve(text, &IncludeContext{})
}

// LoadFile loads a view and expands its partials.
func (l *Loader) LoadFile(name string) (*TemplateFile, error) {
	p, err := l.find(name)
	if err != nil {
		return nil, err
	}
	raw, err := fs.ReadFile(l.fs, p)
	if err != nil {
		return nil, err
	}
	ctx := &IncludeContext{Stack: []string{p}}
	resolved, err := l.resolve(string(raw), ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", normalizeName(name), err)
	}
	return &TemplateFile{
		Name:     normalizeName(name),
		Path:     p,
		Raw:      string(raw),
		Resolved: resolved,
		Includes: ctx.Includes,
		LoadedAt: time.Now().UnixMilli(),
	}, nil
}

func (l *Loader) resolve(text string, ctx *IncludeContext) (string, error) {
	var firstErr error
	out := rePartial.ReplaceAllStringFunc(text, func(m string) string {
		if firstErr != nil {
			return m
		}
		name := rePartial.FindStringSubmatch(m)[1]
		p, err := l.find(name)
		if err != nil {
			firstErr = err
			return m
		}
		if err = ctx.push(p); err != nil {
			firstErr = err
			return m
		}
		defer ctx.pop()
		raw, err := fs.ReadFile(l.fs, p)
		if err != nil {
			firstErr = err
			return m
		}
		resolved, err := l.resolve(string(raw), ctx)
		if err != nil {
			firstErr = err
			return m
		}
		return resolved
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// find maps a template name to an existing file path.
func (l *Loader) find(name string) (string, error) {
	clean := cleanPath(name)
	candidates := make([]string, 0, len(ValidFileExtensions)+1)
	if path.Ext(clean) != "" {
		candidates = append(candidates, clean)
	}
	for _, ext := range ValidFileExtensions {
		candidates = append(candidates, clean+ext)
	}
	for _, c := range candidates {
		p := path.Join(l.prefix, c)
		if info, err := fs.Stat(l.fs, p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("tmplet: template %q: %w", name, fs.ErrNotExist)
}

// cleanPath turns a template name into an unrooted slash path.
func cleanPath(name string) string {
	p := path.Clean(filepath.ToSlash(trimName(name)))
	return strings.TrimPrefix(p, "/")
}

// normalizeName: remove quotes/spaces and extensions, normalize slashes
func normalizeName(n string) string {
	n = cleanPath(n)
	return strings.TrimSuffix(n, path.Ext(n))
}
