// Package flatten converts nested block-authoring sources into the flat
// block graph.
//
// Authors may write children inline, either as a list of descriptors or as a
// mapping keyed by local ID. Flattening walks that tree, gives every nested
// block a globally unique ID derived from its parent and local ID, and
// records parent/child links so the result can be addressed by ID alone.
// Sources whose children are already lists of IDs pass through unchanged.
package flatten

import (
	"fmt"
	"maps"
	"sync"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/idgen"
)

// MainRegion is the region synthesized when a source declares none.
const MainRegion = "main"

// Result is a flattened template plus the local-to-global ID table.
type Result struct {
	*block.Template

	// IDMappings maps "parentId.localId" to the generated global ID.
	IDMappings map[string]string
}

// Flattener flattens templates. Its ID table accumulates across calls until
// ResetMappings is called. It is safe for concurrent use.
type Flattener struct {
	gen idgen.Generator

	mu       sync.Mutex
	mappings map[string]string
}

// New creates a Flattener. A nil generator means idgen.Default.
func New(gen idgen.Generator) *Flattener {
	if gen == nil {
		gen = idgen.Default
	}
	return &Flattener{
		gen:      gen,
		mappings: make(map[string]string),
	}
}

// Mapping returns the global ID generated for a nested block.
func (f *Flattener) Mapping(parentID, localID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.mappings[idgen.Key(parentID, localID)]
	return id, ok
}

// ResetMappings clears the ID table.
func (f *Flattener) ResetMappings() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings = make(map[string]string)
}

// child is one flattened child with the ID it was authored under.
type child struct {
	local  string
	global string
}

type walker struct {
	gen    idgen.Generator
	tpl    *block.Template
	staged map[string]string
}

// Flatten flattens data. On error nothing is returned and the ID table is
// left as it was.
func (f *Flattener) Flatten(data *block.Object) (*Result, error) {
	w := &walker{
		gen:    f.gen,
		tpl:    block.NewTemplate(""),
		staged: make(map[string]string),
	}

	blocks, err := blocksOf(data)
	if err != nil {
		return nil, err
	}

	var roots []string
	for _, key := range blocks.Keys() {
		desc, err := descriptor(blocks, key, key)
		if err != nil {
			return nil, err
		}
		c, err := w.walk(key, desc, "", true)
		if err != nil {
			return nil, err
		}
		if w.tpl.Blocks[c.global].IsRoot() {
			roots = append(roots, c.global)
		}
	}

	regions, err := extractRegions(data, roots)
	if err != nil {
		return nil, err
	}
	w.tpl.Regions = regions

	f.mu.Lock()
	maps.Copy(f.mappings, w.staged)
	mappings := maps.Clone(f.mappings)
	f.mu.Unlock()

	return &Result{
		Template:   w.tpl,
		IDMappings: mappings,
	}, nil
}

// walk flattens one descriptor and everything below it.
func (w *walker) walk(key string, desc *block.Object, parentID string, root bool) (child, error) {
	localID := desc.String("id")
	if localID == "" {
		localID = key
	}
	if localID == "" || desc.String("type") == "" {
		ref := localID
		if ref == "" {
			ref = parentID
		}
		return child{}, block.NewStructuralError("Block must have both id and type").
			WithBlock(ref).
			WithHint("Every block descriptor needs an \"id\" (or a mapping key) and a \"type\"")
	}

	globalID := localID
	if root {
		// Already-flat sources carry their own links.
		parentID = desc.String("parentId")
	} else {
		globalID = w.gen(parentID, localID)
		w.staged[idgen.Key(parentID, localID)] = globalID
	}

	flat := desc.Clone()
	flat.Delete("children")
	flat.Delete("order")
	flat.Set("id", globalID)
	b, err := block.FromObject(flat)
	if err != nil {
		return child{}, err
	}
	b.ParentID = parentID
	if b.Static && b.SemanticID == "" {
		b.SemanticID = localID
	}
	if err := w.tpl.Add(b); err != nil {
		return child{}, err
	}

	children, err := w.children(b.ID, desc)
	if err != nil {
		return child{}, err
	}
	b.Children, err = ordered(desc, children)
	if err != nil {
		return child{}, err
	}

	return child{local: localID, global: globalID}, nil
}

// children flattens the nested children of desc, or returns its flat ID
// list untouched.
func (w *walker) children(parentID string, desc *block.Object) ([]child, error) {
	raw, ok := desc.Get("children")
	if !ok || raw == nil {
		return nil, nil
	}

	switch t := raw.(type) {
	case []any:
		if len(t) == 0 || !isDescriptor(t[0]) {
			ids, err := block.StringList(desc, "children")
			if err != nil {
				return nil, block.NewStructuralError(err.Error()).WithBlock(parentID)
			}
			out := make([]child, len(ids))
			for i, id := range ids {
				out[i] = child{local: id, global: id}
			}
			return out, nil
		}
		out := make([]child, 0, len(t))
		for i, item := range t {
			cd, ok := item.(*block.Object)
			if !ok {
				return nil, block.NewStructuralError(fmt.Sprintf("child %d must be a block descriptor, got %T", i, item)).
					WithBlock(parentID)
			}
			c, err := w.walk("", cd, parentID, false)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil

	case *block.Object:
		keys := t.Keys()
		out := make([]child, 0, len(keys))
		for _, key := range keys {
			cd, err := descriptor(t, key, parentID)
			if err != nil {
				return nil, err
			}
			if declared := cd.String("id"); declared != "" && declared != key {
				return nil, block.NewStructuralError(fmt.Sprintf("child key %q does not match its id %q", key, declared)).
					WithBlock(parentID).
					WithRelated(fmt.Sprintf("Either rename the key to %q or the id to %q", declared, key))
			}
			c, err := w.walk(key, cd, parentID, false)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil

	default:
		return nil, block.NewStructuralError(fmt.Sprintf("children must be a list or mapping, got %T", raw)).
			WithBlock(parentID)
	}
}

// ordered applies an explicit per-block "order" list of local IDs. Listed
// children come first in that order; the rest keep their natural order.
func ordered(desc *block.Object, children []child) ([]string, error) {
	order, err := block.StringList(desc, "order")
	if err != nil {
		return nil, block.NewStructuralError(err.Error()).WithBlock(desc.String("id"))
	}

	out := make([]string, 0, len(children))
	used := make(map[int]bool, len(children))
	for _, want := range order {
		for i, c := range children {
			if !used[i] && (c.local == want || c.global == want) {
				out = append(out, c.global)
				used[i] = true
				break
			}
		}
	}
	for i, c := range children {
		if !used[i] {
			out = append(out, c.global)
		}
	}
	return out, nil
}

// HasNestedStructure reports whether any top-level block carries inline
// child descriptors. Sources without any are already flat.
func HasNestedStructure(data *block.Object) bool {
	blocks := data.Object("blocks")
	for _, key := range blocks.Keys() {
		desc := blocks.Object(key)
		if desc == nil {
			continue
		}
		raw, _ := desc.Get("children")
		switch t := raw.(type) {
		case []any:
			if len(t) > 0 && isDescriptor(t[0]) {
				return true
			}
		case *block.Object:
			keys := t.Keys()
			if len(keys) > 0 {
				first, _ := t.Get(keys[0])
				if isDescriptor(first) {
					return true
				}
			}
		}
	}
	return false
}

// isDescriptor is the nesting heuristic: a mapping with an id or type key.
func isDescriptor(v any) bool {
	o, ok := v.(*block.Object)
	return ok && (o.Has("id") || o.Has("type"))
}

func blocksOf(data *block.Object) (*block.Object, error) {
	raw, ok := data.Get("blocks")
	if !ok || raw == nil {
		return block.NewObject(), nil
	}
	blocks, ok := raw.(*block.Object)
	if !ok {
		return nil, block.NewStructuralError(fmt.Sprintf("blocks must be a mapping, got %T", raw))
	}
	return blocks, nil
}

func descriptor(parent *block.Object, key, owner string) (*block.Object, error) {
	raw, _ := parent.Get(key)
	desc, ok := raw.(*block.Object)
	if !ok {
		return nil, block.NewStructuralError(fmt.Sprintf("block %q must be a mapping, got %T", key, raw)).
			WithBlock(owner)
	}
	return desc, nil
}

// extractRegions reads or synthesizes the template's regions.
func extractRegions(data *block.Object, roots []string) ([]block.Region, error) {
	if data.Has("name") && data.Has("order") {
		order, err := block.StringList(data, "order")
		if err != nil {
			return nil, block.NewStructuralError(err.Error())
		}
		return []block.Region{{Name: data.String("name"), Blocks: order}}, nil
	}
	if raw, ok := data.Get("regions"); ok {
		return block.RegionsFromValue(raw)
	}
	if roots == nil {
		roots = []string{}
	}
	return []block.Region{{Name: MainRegion, Blocks: roots}}, nil
}

// ExtractRegions returns the regions of an unflattened source whose blocks
// are already flat.
func ExtractRegions(data *block.Object) ([]block.Region, error) {
	blocks, err := blocksOf(data)
	if err != nil {
		return nil, err
	}
	var roots []string
	for _, key := range blocks.Keys() {
		if desc := blocks.Object(key); desc != nil && desc.String("parentId") == "" {
			roots = append(roots, key)
		}
	}
	return extractRegions(data, roots)
}
