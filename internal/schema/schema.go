// Package schema maps block type strings to their schemas: accepted child
// types, property definitions and presets.
//
// Block types are a closed registry lookup rather than a type hierarchy. A
// block implementation contributes whatever capabilities it has
// (PropertiesProvider, PresetProvider, Renderable) and RegisterDefinition
// folds them into a Schema.
package schema

import (
	"context"
	"slices"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/props"
)

// PropertyDef declares one property of a block type.
type PropertyDef struct {
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type,omitempty" json:"type,omitempty"`
	Label      string `yaml:"label,omitempty" json:"label,omitempty"`
	Responsive bool   `yaml:"responsive,omitempty" json:"responsive,omitempty"`
	Default    any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Preset is a named starting configuration for a block type.
type Preset struct {
	Name       string         `yaml:"name" json:"name"`
	Label      string         `yaml:"label,omitempty" json:"label,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Schema is the metadata registered for a block type.
type Schema struct {
	Type       string        `yaml:"type" json:"type"`
	Label      string        `yaml:"label,omitempty" json:"label,omitempty"`
	Accepts    []string      `yaml:"accepts,omitempty" json:"accepts,omitempty"` // empty accepts any child type
	Properties []PropertyDef `yaml:"properties,omitempty" json:"properties,omitempty"`
	Presets    []Preset      `yaml:"presets,omitempty" json:"presets,omitempty"`

	// Renderer compiles blocks of this type; nil uses the compiler default.
	Renderer Renderable `yaml:"-" json:"-"`
}

// PropertiesProvider is implemented by block types that declare properties.
type PropertiesProvider interface {
	Properties() []PropertyDef
}

// PresetProvider is implemented by block types that ship presets.
type PresetProvider interface {
	Presets() []Preset
}

// Renderable is implemented by block types that compile themselves.
// children holds the compiled fragments of the block's children in order.
type Renderable interface {
	Render(ctx context.Context, b *block.Block, children []string) (string, error)
}

// Property returns the definition named name.
func (s *Schema) Property(name string) (PropertyDef, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDef{}, false
}

// AcceptsChild reports whether a child of type childType may be nested.
func (s *Schema) AcceptsChild(childType string) bool {
	return len(s.Accepts) == 0 || slices.Contains(s.Accepts, childType)
}

// PropertySchemas returns the resolution schemas used by props.Bag.
func (s *Schema) PropertySchemas() map[string]props.Schema {
	out := make(map[string]props.Schema, len(s.Properties))
	for _, p := range s.Properties {
		out[p.Name] = props.Schema{Type: p.Type, Responsive: p.Responsive, Default: p.Default}
	}
	return out
}

// Defaults returns the declared default of every property that has one.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, p := range s.Properties {
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// Preset returns the preset named name.
func (s *Schema) Preset(name string) (Preset, bool) {
	for _, p := range s.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
