// Package datastore provides the request-scoped store of materialized
// blocks.
//
// A Store loads template files, flattens them, and attaches a property bag
// to every block using the schema registered for the block's type. It is
// meant to live for one request or one compile cycle: create a fresh Store
// per request, or call Clear between independent uses.
package datastore

import (
	"log/slog"
	"maps"
	"sort"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/loader"
	"github.com/livetemplate/blockpage/internal/logging"
	"github.com/livetemplate/blockpage/internal/props"
	"github.com/livetemplate/blockpage/internal/schema"
)

// ChildResolver returns the children of parent. It runs at most once per
// parent; the result is memoized until the store is cleared.
type ChildResolver func(parent *block.Block) []*block.Block

// Option configures a Store.
type Option func(*Store)

// WithParser sets the template parser (and so the ID generator).
func WithParser(p *loader.Parser) Option {
	return func(s *Store) { s.parser = p }
}

// WithTransformer sets the property transform for every bag.
func WithTransformer(t props.Transformer) Option {
	return func(s *Store) { s.transform = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store holds materialized blocks keyed by ID. It is not safe for
// concurrent use.
type Store struct {
	registry  *schema.Registry
	parser    *loader.Parser
	transform props.Transformer
	logger    *slog.Logger

	blocks    map[string]*block.Block
	templates map[string]*block.Template
	children  map[string][]*block.Block
	resolvers map[string]ChildResolver
}

// New creates an empty Store. registry may be nil when no schemas are known.
func New(registry *schema.Registry, opts ...Option) *Store {
	if registry == nil {
		registry = schema.NewRegistry()
	}
	s := &Store{
		registry: registry,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parser == nil {
		s.parser = loader.NewParser(nil)
	}
	s.Clear()
	return s
}

// Load parses path and materializes its blocks. A path already loaded by
// this store is returned from memory.
func (s *Store) Load(path string) (*block.Template, error) {
	if tpl, ok := s.templates[path]; ok {
		return tpl, nil
	}
	tpl, err := s.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	s.Add(tpl)
	s.logger.Debug("template loaded", "template", path, "blocks", len(tpl.Blocks))
	return tpl, nil
}

// Add materializes every block of tpl.
func (s *Store) Add(tpl *block.Template) {
	if tpl.Source != "" {
		s.templates[tpl.Source] = tpl
	}
	for _, id := range tpl.Order {
		b := tpl.Blocks[id]
		if _, exists := s.blocks[id]; exists {
			s.logger.Warn("block id loaded twice, keeping the latest", "block", id, "template", tpl.Source)
		}
		s.materialize(b)
		s.blocks[id] = b
		delete(s.children, id)
	}
}

// materialize attaches a property bag. Schema defaults fill properties the
// block does not set.
func (s *Store) materialize(b *block.Block) {
	values := make(map[string]any)
	var schemas map[string]props.Schema
	if sc := s.registry.Get(b.Type); sc != nil {
		maps.Copy(values, sc.Defaults())
		schemas = sc.PropertySchemas()
	}
	maps.Copy(values, b.Properties)
	b.Props = props.NewBag(values, schemas, props.WithTransformer(s.transform))
}

// Get returns the block with id, or nil.
func (s *Store) Get(id string) *block.Block {
	return s.blocks[id]
}

// Has reports whether id is loaded.
func (s *Store) Has(id string) bool {
	_, ok := s.blocks[id]
	return ok
}

// IDs returns the loaded block IDs, sorted.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of loaded blocks.
func (s *Store) Len() int {
	return len(s.blocks)
}

// Template returns a loaded template by path.
func (s *Store) Template(path string) (*block.Template, bool) {
	tpl, ok := s.templates[path]
	return tpl, ok
}

// Roots returns the root blocks of region in tpl, skipping IDs that are
// not loaded.
func (s *Store) Roots(tpl *block.Template, region string) []*block.Block {
	r, ok := tpl.Region(region)
	if !ok {
		return nil
	}
	out := make([]*block.Block, 0, len(r.Blocks))
	for _, id := range r.Blocks {
		if b := s.blocks[id]; b != nil {
			out = append(out, b)
		}
	}
	return out
}

// SetResolver overrides how the children of id are resolved.
func (s *Store) SetResolver(id string, fn ChildResolver) {
	s.resolvers[id] = fn
	delete(s.children, id)
}

// Children returns the children of id, resolving them on first use. By
// default children are looked up by ID and missing ones are skipped.
func (s *Store) Children(id string) []*block.Block {
	if kids, ok := s.children[id]; ok {
		return kids
	}
	parent := s.blocks[id]
	if parent == nil {
		return nil
	}

	var kids []*block.Block
	if fn, ok := s.resolvers[id]; ok {
		kids = fn(parent)
	} else {
		kids = make([]*block.Block, 0, len(parent.Children))
		for _, childID := range parent.Children {
			if child := s.blocks[childID]; child != nil {
				kids = append(kids, child)
			}
		}
	}
	s.children[id] = kids
	return kids
}

// Evict drops a loaded template and its blocks.
func (s *Store) Evict(path string) {
	tpl, ok := s.templates[path]
	if !ok {
		return
	}
	for id := range tpl.Blocks {
		delete(s.blocks, id)
		delete(s.children, id)
		delete(s.resolvers, id)
	}
	delete(s.templates, path)
}

// Clear drops everything.
func (s *Store) Clear() {
	s.blocks = make(map[string]*block.Block)
	s.templates = make(map[string]*block.Template)
	s.children = make(map[string][]*block.Block)
	s.resolvers = make(map[string]ChildResolver)
}
