// Package block defines the canonical flat block graph: blocks, regions and
// templates, together with the ordered Object used for raw template sources
// and the structural errors raised while reading them.
package block

import (
	"encoding/json"
	"fmt"

	"github.com/livetemplate/blockpage/internal/props"
)

// Block is a single addressable node of a page in its flat, canonical form.
type Block struct {
	ID         string
	Type       string
	Name       string
	ParentID   string // empty for root blocks
	Children   []string
	Properties map[string]any
	Disabled   bool
	Static     bool
	Repeated   bool
	Ghost      bool
	SemanticID string
	Index      *int

	// Props is attached when the block is materialized by a datastore.
	Props *props.Bag
}

// IsRoot reports whether the block has no parent.
func (b *Block) IsRoot() bool {
	return b.ParentID == ""
}

// Iteration is the 1-based position derived from Index, or nil.
func (b *Block) Iteration() *int {
	if b.Index == nil {
		return nil
	}
	it := *b.Index + 1
	return &it
}

// HasChild reports whether id is listed in the block's children.
func (b *Block) HasChild(id string) bool {
	for _, c := range b.Children {
		if c == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares nothing mutable with b. Props is not
// carried over.
func (b *Block) Clone() *Block {
	c := *b
	c.Children = append([]string(nil), b.Children...)
	if b.Properties != nil {
		c.Properties = cloneValue(b.Properties).(map[string]any)
	}
	if b.Index != nil {
		idx := *b.Index
		c.Index = &idx
	}
	c.Props = nil
	return &c
}

// blockJSON is the wire and storage shape of a block.
type blockJSON struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Properties map[string]any `json:"properties"`
	ParentID   *string        `json:"parentId"`
	Children   []string       `json:"children"`
	Disabled   bool           `json:"disabled"`
	Static     bool           `json:"static"`
	Repeated   bool           `json:"repeated"`
	Ghost      bool           `json:"ghost"`
	SemanticID *string        `json:"semanticId"`
	Index      *int           `json:"index"`
	Iteration  *int           `json:"iteration"`
}

func (b *Block) wire() blockJSON {
	w := blockJSON{
		ID:         b.ID,
		Type:       b.Type,
		Name:       b.Name,
		Properties: b.Properties,
		Children:   b.Children,
		Disabled:   b.Disabled,
		Static:     b.Static,
		Repeated:   b.Repeated,
		Ghost:      b.Ghost,
		Index:      b.Index,
		Iteration:  b.Iteration(),
	}
	if w.Properties == nil {
		w.Properties = map[string]any{}
	}
	if w.Children == nil {
		w.Children = []string{}
	}
	if b.ParentID != "" {
		parent := b.ParentID
		w.ParentID = &parent
	}
	if b.SemanticID != "" {
		sem := b.SemanticID
		w.SemanticID = &sem
	}
	return w
}

// MarshalJSON emits the block wire shape. iteration is derived from index.
func (b *Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.wire())
}

// UnmarshalJSON reads the block wire shape. iteration is ignored.
func (b *Block) UnmarshalJSON(data []byte) error {
	var o Object
	if err := o.UnmarshalJSON(data); err != nil {
		return err
	}
	decoded, err := FromObject(&o)
	if err != nil {
		return err
	}
	*b = *decoded
	return nil
}

// ToMap returns the block's array representation: a fresh plain map in the
// wire shape, safe to keep after the block changes.
func (b *Block) ToMap() map[string]any {
	w := b.wire()
	m := map[string]any{
		"id":         w.ID,
		"type":       w.Type,
		"properties": cloneValue(w.Properties),
		"parentId":   nil,
		"children":   append([]string{}, w.Children...),
		"disabled":   w.Disabled,
		"static":     w.Static,
		"repeated":   w.Repeated,
		"ghost":      w.Ghost,
		"semanticId": nil,
		"index":      nil,
		"iteration":  nil,
	}
	if w.Name != "" {
		m["name"] = w.Name
	}
	if w.ParentID != nil {
		m["parentId"] = *w.ParentID
	}
	if w.SemanticID != nil {
		m["semanticId"] = *w.SemanticID
	}
	if w.Index != nil {
		m["index"] = *w.Index
		m["iteration"] = *w.Iteration
	}
	return m
}

// ToObject returns the block in its storage shape, without the derived
// iteration field.
func (b *Block) ToObject() *Object {
	o := NewObject()
	o.Set("id", b.ID)
	o.Set("type", b.Type)
	if b.Name != "" {
		o.Set("name", b.Name)
	}
	if b.Properties != nil {
		o.Set("properties", ObjectFromMap(b.Properties))
	} else {
		o.Set("properties", NewObject())
	}
	if b.ParentID != "" {
		o.Set("parentId", b.ParentID)
	} else {
		o.Set("parentId", nil)
	}
	children := make([]any, len(b.Children))
	for i, c := range b.Children {
		children[i] = c
	}
	o.Set("children", children)
	o.Set("disabled", b.Disabled)
	o.Set("static", b.Static)
	o.Set("repeated", b.Repeated)
	o.Set("ghost", b.Ghost)
	if b.SemanticID != "" {
		o.Set("semanticId", b.SemanticID)
	}
	if b.Index != nil {
		o.Set("index", *b.Index)
	}
	return o
}

// FromObject reads a flat block descriptor. Nested children descriptors are
// not accepted here; children must already be a list of IDs.
func FromObject(o *Object) (*Block, error) {
	b := &Block{
		ID:         o.String("id"),
		Type:       o.String("type"),
		Name:       o.String("name"),
		ParentID:   o.String("parentId"),
		Disabled:   o.Bool("disabled"),
		Static:     o.Bool("static"),
		Repeated:   o.Bool("repeated"),
		Ghost:      o.Bool("ghost"),
		SemanticID: o.String("semanticId"),
	}
	if props := o.Object("properties"); props != nil {
		b.Properties = props.Map()
	} else {
		b.Properties = map[string]any{}
	}
	children, err := StringList(o, "children")
	if err != nil {
		return nil, NewStructuralError(fmt.Sprintf("block %q: %v", b.ID, err)).WithBlock(b.ID)
	}
	b.Children = children
	if raw, ok := o.Get("index"); ok && raw != nil {
		idx, ok := toInt(raw)
		if !ok {
			return nil, NewStructuralError(fmt.Sprintf("block %q: index must be an integer, got %v", b.ID, raw)).WithBlock(b.ID)
		}
		b.Index = &idx
	}
	return b, nil
}

// StringList reads key as a list of strings. A missing or null key yields
// an empty list.
func StringList(o *Object, key string) ([]string, error) {
	raw, ok := o.Get(key)
	if !ok || raw == nil {
		return []string{}, nil
	}
	switch t := raw.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain only block IDs, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return append([]string{}, t...), nil
	default:
		return nil, fmt.Errorf("%s must be a list, got %T", key, raw)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
