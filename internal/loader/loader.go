// Package loader reads template sources from JSON or YAML files, flattens
// nested authoring syntax, and writes sources back in their original format.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/flatten"
	"gopkg.in/yaml.v3"
)

// Format is a template source encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Extensions lists the file extensions ParseFile understands.
var Extensions = []string{".json", ".yaml", ".yml"}

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported template format %q (valid: .json, .yaml, .yml)", filepath.Ext(path))
	}
}

// Decode parses JSON or YAML bytes into an Object. JSON is read through the
// YAML decoder, which accepts it and keeps key order.
func Decode(data []byte, source string) (*block.Object, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return block.NewObject(), nil
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, block.NewParseError(source, err)
	}
	v, err := block.DecodeNode(&node)
	if err != nil {
		return nil, block.NewParseError(source, err)
	}
	if v == nil {
		return block.NewObject(), nil
	}
	o, ok := v.(*block.Object)
	if !ok {
		return nil, block.NewParseError(source, fmt.Errorf("top level must be a mapping, got %T", v))
	}
	return o, nil
}

// DecodeFile reads and decodes a template source file.
func DecodeFile(path string) (*block.Object, Format, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read template: %w", err)
	}
	o, err := Decode(data, path)
	if err != nil {
		return nil, "", err
	}
	return o, format, nil
}

// Encode serializes o in format.
func Encode(o *block.Object, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(o, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		node, err := block.EncodeNode(o)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
}

// WriteFile encodes o and replaces path atomically.
func WriteFile(path string, o *block.Object, format Format) error {
	data, err := Encode(o, format)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace template: %w", err)
	}
	return nil
}

// Parser turns decoded sources into flat templates.
type Parser struct {
	flattener *flatten.Flattener
}

// NewParser creates a Parser. A nil flattener uses the default ID generator.
func NewParser(f *flatten.Flattener) *Parser {
	if f == nil {
		f = flatten.New(nil)
	}
	return &Parser{flattener: f}
}

// Flattener returns the parser's flattener, for ID mapping lookups.
func (p *Parser) Flattener() *flatten.Flattener {
	return p.flattener
}

// ParseFile reads path and returns its flat template.
func (p *Parser) ParseFile(path string) (*block.Template, error) {
	o, _, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(o, path)
}

// ParseBytes decodes data and returns its flat template.
func (p *Parser) ParseBytes(data []byte, source string) (*block.Template, error) {
	o, err := Decode(data, source)
	if err != nil {
		return nil, err
	}
	return p.Parse(o, source)
}

// Parse builds the flat template for a decoded source. Sources that are
// already flat skip the flattener.
func (p *Parser) Parse(o *block.Object, source string) (*block.Template, error) {
	if flatten.HasNestedStructure(o) {
		res, err := p.flattener.Flatten(o)
		if err != nil {
			return nil, block.InFile(err, source)
		}
		res.Template.Source = source
		return res.Template, nil
	}

	tpl, err := Flat(o)
	if err != nil {
		return nil, block.InFile(err, source)
	}
	tpl.Source = source
	return tpl, nil
}

// Flat reads a source whose blocks are already flat.
func Flat(o *block.Object) (*block.Template, error) {
	tpl := block.NewTemplate("")
	blocks := o.Object("blocks")
	if raw, ok := o.Get("blocks"); ok && raw != nil && blocks == nil {
		return nil, block.NewStructuralError(fmt.Sprintf("blocks must be a mapping, got %T", raw))
	}
	for _, key := range blocks.Keys() {
		desc := blocks.Object(key)
		if desc == nil {
			return nil, block.NewStructuralError(fmt.Sprintf("block %q must be a mapping", key)).WithBlock(key)
		}
		b, err := block.FromObject(desc)
		if err != nil {
			return nil, err
		}
		if b.ID == "" {
			b.ID = key
		}
		if b.Type == "" {
			return nil, block.NewStructuralError("Block must have both id and type").WithBlock(b.ID)
		}
		if b.Static && b.SemanticID == "" {
			b.SemanticID = b.ID
		}
		if err := tpl.Add(b); err != nil {
			return nil, err
		}
	}

	regions, err := flatten.ExtractRegions(o)
	if err != nil {
		return nil, err
	}
	tpl.Regions = regions
	return tpl, nil
}

// ParseFile parses path with a default Parser.
func ParseFile(path string) (*block.Template, error) {
	return NewParser(nil).ParseFile(path)
}
