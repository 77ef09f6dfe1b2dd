package props

import (
	"maps"
	"slices"
)

// DefaultKey is the breakpoint key a responsive raw value must carry.
const DefaultKey = "_default"

// ResponsiveValue is an immutable set of per-breakpoint values with a
// default.
type ResponsiveValue struct {
	values map[string]any
}

// NewResponsiveValue wraps values. Either "_default" or "default" names the
// default breakpoint. The map is copied.
func NewResponsiveValue(values map[string]any) *ResponsiveValue {
	return &ResponsiveValue{values: maps.Clone(values)}
}

// IsResponsive reports whether a raw value is a breakpoint map carrying the
// mandatory "_default" key.
func IsResponsive(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[DefaultKey]
	return ok
}

// Default returns the default breakpoint value.
func (r *ResponsiveValue) Default() any {
	v, _ := r.defaultValue()
	return v
}

func (r *ResponsiveValue) defaultValue() (any, bool) {
	if v, ok := r.values[DefaultKey]; ok {
		return v, true
	}
	v, ok := r.values["default"]
	return v, ok
}

// Get returns the value for breakpoint, falling back to the default.
func (r *ResponsiveValue) Get(breakpoint string) any {
	if v, ok := r.values[breakpoint]; ok {
		return v
	}
	return r.Default()
}

// GetOr returns the value for breakpoint. When the breakpoint is missing the
// default wins if there is one; fallback is only used when there is not.
func (r *ResponsiveValue) GetOr(breakpoint string, fallback any) any {
	if v, ok := r.values[breakpoint]; ok {
		return v
	}
	if v, ok := r.defaultValue(); ok {
		return v
	}
	return fallback
}

// Has reports whether breakpoint has its own value.
func (r *ResponsiveValue) Has(breakpoint string) bool {
	_, ok := r.values[breakpoint]
	return ok
}

// All returns every breakpoint value, default included.
func (r *ResponsiveValue) All() map[string]any {
	return maps.Clone(r.values)
}

// Breakpoints returns the breakpoint names other than the default, sorted.
func (r *ResponsiveValue) Breakpoints() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		if k == DefaultKey || k == "default" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
