// Package props resolves block properties. A Bag turns raw property values
// into typed values on first access and memoizes the result: strings that
// start with "@" become DynamicSources, breakpoint maps of responsive
// properties become ResponsiveValues, and everything else runs through a
// pluggable Transformer.
package props

import (
	"maps"
	"slices"
	"strings"
)

// Schema describes how a single property is resolved.
type Schema struct {
	Type       string
	Responsive bool
	Default    any
}

// Transformer converts a raw value into its typed form. It is called once
// per value, and once per breakpoint for responsive values.
type Transformer func(key string, value any, schema Schema) any

// Identity returns values unchanged.
func Identity(_ string, value any, _ Schema) any {
	return value
}

// Option configures a Bag.
type Option func(*Bag)

// WithTransformer sets the value transform. nil means Identity.
func WithTransformer(t Transformer) Option {
	return func(b *Bag) {
		if t != nil {
			b.transform = t
		}
	}
}

// WithContext sets the initial render context.
func WithContext(ctx map[string]any) Option {
	return func(b *Bag) {
		b.context = ctx
	}
}

// Bag holds one block's raw properties and their resolved forms. The raw
// values and schemas never change after construction; only the resolved
// cache and the render context do. A Bag is not safe for concurrent use.
type Bag struct {
	values    map[string]any
	schemas   map[string]Schema
	resolved  map[string]any
	context   map[string]any
	transform Transformer
}

// NewBag creates a Bag. Both maps are copied.
func NewBag(values map[string]any, schemas map[string]Schema, opts ...Option) *Bag {
	b := &Bag{
		values:    maps.Clone(values),
		schemas:   maps.Clone(schemas),
		resolved:  make(map[string]any),
		transform: Identity,
	}
	if b.values == nil {
		b.values = make(map[string]any)
	}
	if b.schemas == nil {
		b.schemas = make(map[string]Schema)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the resolved value for key, or nil when the key is absent.
// The first call resolves and caches; later calls return the cached value
// itself, so DynamicSource and ResponsiveValue pointers stay identical
// until SetContext is called.
func (b *Bag) Get(key string) any {
	if v, ok := b.resolved[key]; ok {
		return v
	}
	raw, ok := b.values[key]
	if !ok {
		return nil
	}
	v := b.resolve(key, raw)
	b.resolved[key] = v
	return v
}

func (b *Bag) resolve(key string, raw any) any {
	schema := b.schemas[key]

	if schema.Responsive && IsResponsive(raw) {
		breakpoints := raw.(map[string]any)
		values := make(map[string]any, len(breakpoints))
		for bp, v := range breakpoints {
			values[bp] = b.transform(key, v, schema)
		}
		return NewResponsiveValue(values)
	}

	if s, ok := raw.(string); ok && strings.HasPrefix(s, "@") {
		typ := schema.Type
		if typ == "" {
			typ = "text"
		}
		return NewDynamicSource(s[1:], typ, b.context, schema.Default)
	}

	return b.transform(key, raw, schema)
}

// Has reports whether key has a raw value.
func (b *Bag) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// All resolves every property and returns the results.
func (b *Bag) All() map[string]any {
	out := make(map[string]any, len(b.values))
	for k := range b.values {
		out[k] = b.Get(k)
	}
	return out
}

// Raw returns a copy of the raw values.
func (b *Bag) Raw() map[string]any {
	return maps.Clone(b.values)
}

// Keys returns the property keys, sorted.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Schema returns the schema for key.
func (b *Bag) Schema(key string) (Schema, bool) {
	s, ok := b.schemas[key]
	return s, ok
}

// Only returns a new Bag restricted to keys. The receiver is unchanged.
func (b *Bag) Only(keys ...string) *Bag {
	keep := make(map[string]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	return b.filter(func(k string) bool { return keep[k] })
}

// Except returns a new Bag without keys. The receiver is unchanged.
func (b *Bag) Except(keys ...string) *Bag {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	return b.filter(func(k string) bool { return !drop[k] })
}

func (b *Bag) filter(keep func(string) bool) *Bag {
	values := make(map[string]any)
	for k, v := range b.values {
		if keep(k) {
			values[k] = v
		}
	}
	schemas := make(map[string]Schema)
	for k, s := range b.schemas {
		if keep(k) {
			schemas[k] = s
		}
	}
	return &Bag{
		values:    values,
		schemas:   schemas,
		resolved:  make(map[string]any),
		context:   b.context,
		transform: b.transform,
	}
}

// SetContext replaces the render context and drops every resolved value,
// so dynamic sources are rebuilt against the new context.
func (b *Bag) SetContext(ctx map[string]any) *Bag {
	b.context = ctx
	b.resolved = make(map[string]any)
	return b
}

// Context returns the current render context.
func (b *Bag) Context() map[string]any {
	return b.context
}
