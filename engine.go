package tmplet

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oxtoacart/bpool"
	"golang.org/x/sync/singleflight"
)

// Engine compiles templates and serves views from a filesystem.
type Engine struct {
	dirPrefix       string
	fs              fs.FS
	opts            Options
	loader          *Loader
	cache           Cache
	group           singleflight.Group
	files           map[string]*TemplateFile
	debugTemplates  map[string]string
	loaded          bool
	lastCompileTime int64
	logger          *slog.Logger
	bufpool         *bpool.BufferPool
	mu              sync.RWMutex
}

// NewEngine creates a new engine pointing to a directory with files.
func NewEngine(dir string) *Engine {
	e := NewEngineFS(os.DirFS(dir))
	e.opts.Root = dir
	return e
}

// NewEngineFS creates a new engine pointing to a filesystem.
// When using embed.FS, pass the embedded folder as prefix.
func NewEngineFS(fsys fs.FS, prefix ...string) *Engine {
	var dirPrefix string
	if len(prefix) > 0 {
		dirPrefix = prefix[0]
	}
	return &Engine{
		dirPrefix:      dirPrefix,
		fs:             fsys,
		opts:           DefaultOptions(),
		loader:         NewLoader(fsys, dirPrefix),
		cache:          NewMapCache(),
		files:          map[string]*TemplateFile{},
		debugTemplates: map[string]string{},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		bufpool:        bpool.NewBufferPool(64),
	}
}

// SetOptions merges opts into the engine options. A new Root points the engine at that
// directory. Compiled views are dropped so later views see the new options.
func (e *Engine) SetOptions(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	merged := e.opts.merge(opts)
	if merged.Root != e.opts.Root {
		e.fs = os.DirFS(merged.Root)
		e.dirPrefix = ""
		e.loader = NewLoader(e.fs, "")
		e.loaded = false
	}
	e.opts = merged
	e.cache.Clear()
	e.logger.Debug("Options updated", "root", merged.Root, "imports", len(merged.Imports))
}

// Options returns a copy of the current options.
func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Options{Root: e.opts.Root, Imports: maps.Clone(e.opts.Imports)}
}

// SetLogger sets the logger used for load and cache events.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// SetCache replaces the view cache. The new cache starts empty.
func (e *Engine) SetCache(c Cache) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = c
}

// Loader returns the loader the engine reads views with.
func (e *Engine) Loader() *Loader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loader
}

// Compile compiles template text with the engine's imports.
func (e *Engine) Compile(text string) (*Template, error) {
	e.mu.RLock()
	imports := e.opts.Imports
	e.mu.RUnlock()
	return compile(text, imports)
}

// Render compiles text and renders it against ctx.
func (e *Engine) Render(text string, ctx map[string]any) (string, error) {
	t, err := e.Compile(text)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

// View renders the named file, compiling it on first use.
func (e *Engine) View(name string, ctx map[string]any) (string, error) {
	t, err := e.Lookup(name)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

// Execute renders the named view into w. Output is buffered, so nothing is written when
// rendering fails.
func (e *Engine) Execute(w io.Writer, name string, ctx map[string]any) error {
	t, err := e.Lookup(name)
	if err != nil {
		return err
	}
	buf := e.bufpool.Get()
	defer e.bufpool.Put(buf)
	if err = t.Execute(buf, ctx); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// Lookup returns the compiled view for name, compiling and caching it when needed.
// Concurrent lookups of the same uncached view share one compilation.
func (e *Engine) Lookup(name string) (*Template, error) {
	key := normalizeName(name)
	e.mu.RLock()
	cache, logger := e.cache, e.logger
	e.mu.RUnlock()
	if t, ok := cache.Get(key); ok {
		logger.Debug("View cache hit", "view", key)
		return t, nil
	}
	v, err, _ := e.group.Do(key, func() (any, error) {
		if t, ok := cache.Get(key); ok {
			return t, nil
		}
		t, err := e.compileFile(name)
		if err != nil {
			return nil, err
		}
		cache.Set(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Template), nil
}

func (e *Engine) compileFile(name string) (*Template, error) {
	e.mu.RLock()
	loader, logger := e.loader, e.logger
	e.mu.RUnlock()
	f, err := loader.LoadFile(name)
	if err != nil {
		logger.Error("failed to load view", "view", name, "error", err)
		return nil, err
	}
	t, err := e.Compile(f.Resolved)
	if err != nil {
		logger.Error("failed to compile view", "view", f.Name, "error", err)
		return nil, fmt.Errorf("[%s] %w", f.Name, err)
	}
	e.mu.Lock()
	e.files[f.Name] = f
	e.debugTemplates[f.Name] = t.Source()
	e.mu.Unlock()
	logger.Debug("Compiled view", "view", f.Name, "includes", len(f.Includes), "vars", len(t.Vars()))
	return t, nil
}

// Load compiles every view under the root. It only recompiles if the files have been modified
// since the last load.
func (e *Engine) Load() error {
	e.mu.RLock()
	fsys, prefix, logger := e.fs, e.dirPrefix, e.logger
	loaded, last := e.loaded, e.lastCompileTime
	e.mu.RUnlock()

	startedAt := time.Now().UnixMilli()
	var names []string
	needCompile := !loaded
	root := prefix
	if root == "" {
		root = "."
	}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if !slices.Contains(ValidFileExtensions, ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().UnixMilli() > last {
			needCompile = true
		}
		names = append(names, nameFromPath(prefix, p))
		return nil
	})
	if err != nil {
		logger.Error("failed to walk views", "error", err)
		return err
	}

	if !needCompile {
		logger.Debug("Views unchanged, skipping load")
		return nil
	}

	// TODO: recompile only the changed files and the views that include them
	e.mu.Lock()
	cache := e.cache
	e.files = map[string]*TemplateFile{}
	e.debugTemplates = map[string]string{}
	e.mu.Unlock()
	cache.Clear()

	logger.Info("Loading views...", "count", len(names))
	for _, name := range names {
		if _, err := e.Lookup(name); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.loaded = true
	e.lastCompileTime = startedAt
	e.mu.Unlock()
	logger.Info("Loaded views", "count", len(names))
	return nil
}

// Files returns the views loaded so far, keyed by name.
func (e *Engine) Files() map[string]*TemplateFile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.files)
}

// GetDebugTemplates returns a map of all compiled views and their generated source.
func (e *Engine) GetDebugTemplates() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.debugTemplates)
}

// nameFromPath converts a filesystem path to a view name, relative to the prefix.
func nameFromPath(prefix, p string) string {
	rel := strings.TrimPrefix(p, prefix)
	return normalizeName(rel)
}
