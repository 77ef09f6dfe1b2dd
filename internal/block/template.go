package block

import (
	"fmt"
	"sort"
)

// Region is a named, ordered group of root blocks.
type Region struct {
	Name   string   `json:"name" yaml:"name"`
	Blocks []string `json:"blocks" yaml:"blocks"`
	Shared bool     `json:"shared" yaml:"shared"`
}

// ToObject returns the region in its storage shape.
func (r Region) ToObject() *Object {
	o := NewObject()
	o.Set("name", r.Name)
	blocks := make([]any, len(r.Blocks))
	for i, id := range r.Blocks {
		blocks[i] = id
	}
	o.Set("blocks", blocks)
	o.Set("shared", r.Shared)
	return o
}

// RegionFromObject reads a region entry.
func RegionFromObject(o *Object) (Region, error) {
	r := Region{Name: o.String("name"), Shared: o.Bool("shared")}
	if r.Name == "" {
		return r, NewStructuralError("region must have a name")
	}
	ids, err := StringList(o, "blocks")
	if err != nil {
		return r, NewStructuralError(fmt.Sprintf("region %q: %v", r.Name, err))
	}
	r.Blocks = ids
	return r, nil
}

// RegionsFromValue reads a "regions" list.
func RegionsFromValue(v any) ([]Region, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, NewStructuralError(fmt.Sprintf("regions must be a list, got %T", v))
	}
	regions := make([]Region, 0, len(list))
	for _, item := range list {
		o, ok := item.(*Object)
		if !ok {
			return nil, NewStructuralError(fmt.Sprintf("region entry must be a mapping, got %T", item))
		}
		r, err := RegionFromObject(o)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// Template is a flat block graph decomposed into regions.
type Template struct {
	Source  string // file the template was read from, if any
	Blocks  map[string]*Block
	Order   []string // block IDs in encounter order
	Regions []Region
}

// NewTemplate creates an empty template.
func NewTemplate(source string) *Template {
	return &Template{
		Source: source,
		Blocks: make(map[string]*Block),
	}
}

// Add appends a block. The block ID must be unique.
func (t *Template) Add(b *Block) error {
	if _, exists := t.Blocks[b.ID]; exists {
		return NewStructuralError(fmt.Sprintf("duplicate block id %q", b.ID)).
			WithFile(t.Source).WithBlock(b.ID)
	}
	t.Blocks[b.ID] = b
	t.Order = append(t.Order, b.ID)
	return nil
}

// Get returns the block with id, or nil.
func (t *Template) Get(id string) *Block {
	return t.Blocks[id]
}

// Region returns the region named name.
func (t *Template) Region(name string) (Region, bool) {
	for _, r := range t.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// Ancestors returns the parent chain of id, nearest first. The walk stops
// at a missing parent or a cycle.
func (t *Template) Ancestors(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	b := t.Blocks[id]
	for b != nil && b.ParentID != "" && !seen[b.ParentID] {
		seen[b.ParentID] = true
		out = append(out, b.ParentID)
		b = t.Blocks[b.ParentID]
	}
	return out
}

// RegionOf returns the region a block belongs to. Membership of nested
// blocks is inherited through parentId.
func (t *Template) RegionOf(id string) (string, bool) {
	root := id
	if chain := t.Ancestors(id); len(chain) > 0 {
		root = chain[len(chain)-1]
	}
	for _, r := range t.Regions {
		for _, rid := range r.Blocks {
			if rid == root {
				return r.Name, true
			}
		}
	}
	return "", false
}

// Validate checks that every region root and every parent/child link
// resolves inside the graph and that parent and child links agree.
func (t *Template) Validate() error {
	for _, r := range t.Regions {
		for _, id := range r.Blocks {
			if _, ok := t.Blocks[id]; !ok {
				return NewUnknownReferenceError(fmt.Sprintf("region %q references unknown block %q", r.Name, id)).
					WithFile(t.Source).WithBlock(id)
			}
		}
	}

	ids := make([]string, 0, len(t.Blocks))
	for id := range t.Blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		b := t.Blocks[id]
		if b.ParentID != "" {
			if _, ok := t.Blocks[b.ParentID]; !ok {
				return NewUnknownReferenceError(fmt.Sprintf("block %q references unknown parent %q", id, b.ParentID)).
					WithFile(t.Source).WithBlock(id)
			}
		}
		for _, childID := range b.Children {
			child, ok := t.Blocks[childID]
			if !ok {
				return NewUnknownReferenceError(fmt.Sprintf("block %q references unknown child %q", id, childID)).
					WithFile(t.Source).WithBlock(id)
			}
			if child.ParentID != id {
				return NewStructuralError(fmt.Sprintf("block %q lists child %q whose parent is %q", id, childID, child.ParentID)).
					WithFile(t.Source).WithBlock(childID).
					WithHint("Set the child's parentId to the block that lists it")
			}
		}
	}
	return nil
}

// ToObject returns the template in the canonical flat source shape.
func (t *Template) ToObject() *Object {
	blocks := NewObject()
	for _, id := range t.Order {
		if b, ok := t.Blocks[id]; ok {
			blocks.Set(id, b.ToObject())
		}
	}
	regions := make([]any, len(t.Regions))
	for i, r := range t.Regions {
		regions[i] = r.ToObject()
	}
	o := NewObject()
	o.Set("blocks", blocks)
	o.Set("regions", regions)
	return o
}
