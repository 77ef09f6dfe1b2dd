package props

import (
	"maps"
	"strings"
)

// DynamicSource marks a property whose value is looked up at render time.
// It is produced for raw string values that begin with "@"; resolving the
// path against the context is left to the render layer.
type DynamicSource struct {
	path    string
	typ     string
	context map[string]any
	def     any
}

// NewDynamicSource creates a DynamicSource. The context map is copied.
func NewDynamicSource(path, typ string, context map[string]any, def any) *DynamicSource {
	return &DynamicSource{
		path:    path,
		typ:     typ,
		context: maps.Clone(context),
		def:     def,
	}
}

// Path is the lookup path without the leading "@".
func (d *DynamicSource) Path() string { return d.path }

// Type is the property type the resolved value should be read as.
func (d *DynamicSource) Type() string { return d.typ }

// Context is the render context captured when the source was built.
func (d *DynamicSource) Context() map[string]any { return maps.Clone(d.context) }

// Default is returned by resolvers when the path has no value.
func (d *DynamicSource) Default() any { return d.def }

// String returns the marker form, e.g. "@post.title".
func (d *DynamicSource) String() string { return "@" + d.path }

// IsDynamic reports whether a raw value is a dynamic source marker. Only a
// leading "@" counts; "user@example.com" is a plain string.
func IsDynamic(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, "@")
}
