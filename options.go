package tmplet

import "maps"

// Options configures an engine.
type Options struct {
	// Root is the directory views and partials are loaded from.
	Root string

	// Imports are bound into every render context below the caller's own values, so a
	// context field with the same name wins.
	Imports map[string]any
}

// DefaultOptions returns Options rooted at the working directory with no imports.
func DefaultOptions() Options {
	return Options{
		Root:    ".",
		Imports: map[string]any{},
	}
}

// merge returns o with the fields set in with applied. Imports are merged key by key.
func (o Options) merge(with Options) Options {
	merged := Options{Root: o.Root, Imports: maps.Clone(o.Imports)}
	if merged.Imports == nil {
		merged.Imports = map[string]any{}
	}
	if with.Root != "" {
		merged.Root = with.Root
	}
	maps.Copy(merged.Imports, with.Imports)
	return merged
}
