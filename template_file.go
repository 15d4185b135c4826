package tmplet

// TemplateFile is a view loaded from the engine's filesystem.
type TemplateFile struct {
	// Name is the view name, relative to the root and without extension
	Name string
	// Path is the file the view was read from
	Path string
	// Raw is the file content
	Raw string
	// Resolved is Raw with every partial include expanded
	Resolved string
	// Includes lists the partial files pulled in, in first-seen order
	Includes []string
	// LoadedAt is the time when the file was loaded in unix milliseconds
	LoadedAt int64
}
