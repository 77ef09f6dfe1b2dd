package block

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Object is a decoded JSON/YAML mapping that remembers the order its keys
// were written in. Template sources are decoded into Objects so that root
// encounter order and object-keyed children survive a load/save round trip.
//
// Nested mappings are *Object, sequences are []any, scalars are the values
// yaml.v3 decodes them to (string, int, float64, bool, nil).
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// ObjectFromMap builds an Object from a plain map. Keys are sorted since
// a Go map carries no order of its own.
func ObjectFromMap(m map[string]any) *Object {
	o := NewObject()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.Set(k, fromPlain(m[k]))
	}
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// String returns the value under key if it is a string.
func (o *Object) String(key string) string {
	v, _ := o.Get(key)
	s, _ := v.(string)
	return s
}

// Bool returns the value under key if it is a bool.
func (o *Object) Bool(key string) bool {
	v, _ := o.Get(key)
	b, _ := v.(bool)
	return b
}

// Object returns the nested Object under key, or nil.
func (o *Object) Object(key string) *Object {
	v, _ := o.Get(key)
	child, _ := v.(*Object)
	return child
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (o *Object) Set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Delete removes key. Missing keys are ignored.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := NewObject()
	for _, k := range o.keys {
		c.Set(k, cloneValue(o.values[k]))
	}
	return c
}

// Map converts the Object and everything below it into plain Go maps and
// slices.
func (o *Object) Map() map[string]any {
	if o == nil {
		return nil
	}
	m := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		m[k] = toPlain(o.values[k])
	}
	return m
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

func toPlain(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toPlain(item)
		}
		return out
	default:
		return v
	}
}

func fromPlain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return ObjectFromMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromPlain(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object. JSON is a subset of YAML, so the
// YAML node decoder is reused to keep key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	return o.UnmarshalYAML(&node)
}

// MarshalYAML emits a mapping node with keys in insertion order.
func (o *Object) MarshalYAML() (any, error) {
	return EncodeNode(o)
}

// UnmarshalYAML decodes a mapping node.
func (o *Object) UnmarshalYAML(node *yaml.Node) error {
	v, err := DecodeNode(node)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("expected a mapping, got %T", v)
	}
	*o = *decoded
	return nil
}

// DecodeNode converts a yaml.Node tree into Objects, slices and scalars.
func DecodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return DecodeNode(node.Content[0])
	case yaml.MappingNode:
		o := NewObject()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			val, err := DecodeNode(valNode)
			if err != nil {
				return nil, err
			}
			o.Set(keyNode.Value, val)
		}
		return o, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			val, err := DecodeNode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case yaml.AliasNode:
		return DecodeNode(node.Alias)
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil
	default:
		return nil, nil
	}
}

// EncodeNode converts a value into a yaml.Node, preserving Object key order.
func EncodeNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Object:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if t == nil {
			return node, nil
		}
		for _, k := range t.keys {
			val, err := EncodeNode(t.values[k])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
		}
		return node, nil
	case map[string]any:
		return EncodeNode(ObjectFromMap(t))
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			val, err := EncodeNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, val)
		}
		return node, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			return nil, err
		}
		return node, nil
	}
}
