package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry holds the schemas of one engine instance. Presets registered for
// a type before its schema are buffered and attached when the schema
// arrives, so registration order does not matter.
type Registry struct {
	schemas map[string]*Schema
	order   []string
	pending map[string][]Preset
	// contributed keeps every RegisterPreset call so a replacement schema
	// gets them too.
	contributed map[string][]Preset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:     make(map[string]*Schema),
		pending:     make(map[string][]Preset),
		contributed: make(map[string][]Preset),
	}
}

// Register adds or replaces the schema for s.Type. Presets contributed
// through RegisterPreset, whether still pending or attached to a schema
// being replaced, are attached to s unless s already has one by that name.
func (r *Registry) Register(s *Schema) {
	if _, exists := r.schemas[s.Type]; !exists {
		r.order = append(r.order, s.Type)
	}
	r.schemas[s.Type] = s

	for _, p := range r.contributed[s.Type] {
		if _, ok := s.Preset(p.Name); !ok {
			s.Presets = append(s.Presets, p)
		}
	}
	delete(r.pending, s.Type)
}

// RegisterDefinition builds a schema for blockType from the capabilities
// def implements and registers it.
func (r *Registry) RegisterDefinition(blockType string, def any) *Schema {
	s := &Schema{Type: blockType}
	if p, ok := def.(PropertiesProvider); ok {
		s.Properties = p.Properties()
	}
	if p, ok := def.(PresetProvider); ok {
		s.Presets = append(s.Presets, p.Presets()...)
	}
	if p, ok := def.(Renderable); ok {
		s.Renderer = p
	}
	r.Register(s)
	return s
}

// RegisterPreset attaches a preset to blockType, or buffers it until the
// type is registered.
func (r *Registry) RegisterPreset(blockType string, p Preset) {
	r.contributed[blockType] = append(r.contributed[blockType], p)
	if s, ok := r.schemas[blockType]; ok {
		s.Presets = append(s.Presets, p)
		return
	}
	r.pending[blockType] = append(r.pending[blockType], p)
}

// Get returns the schema for blockType, or nil.
func (r *Registry) Get(blockType string) *Schema {
	return r.schemas[blockType]
}

// Has reports whether blockType has a schema.
func (r *Registry) Has(blockType string) bool {
	_, ok := r.schemas[blockType]
	return ok
}

// All returns every schema in registration order.
func (r *Registry) All() []*Schema {
	out := make([]*Schema, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.schemas[t])
	}
	return out
}

// Pending returns the presets still waiting for blockType's schema.
func (r *Registry) Pending(blockType string) []Preset {
	return r.pending[blockType]
}

// PendingTypes returns the types that have buffered presets, sorted.
func (r *Registry) PendingTypes() []string {
	types := make([]string, 0, len(r.pending))
	for t := range r.pending {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// schemaFile is the on-disk layout of a schema definition.
type schemaFile struct {
	Schemas []*Schema `yaml:"schemas"`
}

// presetFile is the on-disk layout of a preset contribution.
type presetFile struct {
	Type    string   `yaml:"type"`
	Presets []Preset `yaml:"presets"`
}

// LoadSchemas registers every schema declared in dir/*.yaml and dir/*.yml.
// A missing directory is not an error.
func (r *Registry) LoadSchemas(dir string) error {
	return loadYAMLDir(dir, func(path string, data []byte) error {
		var f schemaFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
		for _, s := range f.Schemas {
			if s.Type == "" {
				return fmt.Errorf("schema file %s: schema without type", path)
			}
			r.Register(s)
		}
		return nil
	})
}

// LoadPresets registers every preset declared in dir/*.yaml and dir/*.yml.
// A missing directory is not an error.
func (r *Registry) LoadPresets(dir string) error {
	return loadYAMLDir(dir, func(path string, data []byte) error {
		var f presetFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("failed to parse preset file %s: %w", path, err)
		}
		if f.Type == "" {
			return fmt.Errorf("preset file %s: missing type", path)
		}
		for _, p := range f.Presets {
			r.RegisterPreset(f.Type, p)
		}
		return nil
	})
}

func loadYAMLDir(dir string, load func(path string, data []byte) error) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := load(path, data); err != nil {
			return err
		}
	}
	return nil
}
