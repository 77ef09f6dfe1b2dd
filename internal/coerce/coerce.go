// Package coerce converts raw property values into the form their schema
// type asks for. Its Transform plugs into property bags as the value
// transform.
package coerce

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/livetemplate/blockpage/internal/props"
)

// Coercer holds the markdown renderer and HTML sanitizer shared by all
// transforms. It is safe for concurrent use.
type Coercer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New creates a Coercer.
func New() *Coercer {
	return &Coercer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Transformer returns c.Transform as a props.Transformer.
func (c *Coercer) Transformer() props.Transformer {
	return c.Transform
}

// Transform converts value according to schema.Type. Values that cannot be
// converted are returned unchanged.
func (c *Coercer) Transform(_ string, value any, schema props.Schema) any {
	switch schema.Type {
	case "number":
		return toNumber(value)
	case "integer":
		return toInteger(value)
	case "bool", "boolean":
		return toBool(value)
	case "color":
		if s, ok := value.(string); ok {
			if hex, ok := NormalizeColor(s); ok {
				return hex
			}
		}
	case "markdown":
		if s, ok := value.(string); ok {
			if html, err := c.Markdown(s); err == nil {
				return html
			}
		}
	case "richtext", "html":
		if s, ok := value.(string); ok {
			return c.Sanitize(s)
		}
	}
	return value
}

// Markdown renders src to sanitized HTML.
func (c *Coercer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return c.policy.Sanitize(buf.String()), nil
}

// Sanitize strips unsafe markup from html.
func (c *Coercer) Sanitize(html string) string {
	return c.policy.Sanitize(html)
}

func toNumber(v any) any {
	switch n := v.(type) {
	case int, int64, float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return v
}

func toInteger(v any) any {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return v
}

func toBool(v any) any {
	if s, ok := v.(string); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return v
}

// NormalizeColor turns "#ABC", "abc" or "#AABBCC" into "#aabbcc". Other
// strings are rejected.
func NormalizeColor(s string) (string, bool) {
	hex := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", false
		}
	}
	switch len(hex) {
	case 3:
		return "#" + string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}), true
	case 6, 8:
		return "#" + hex, true
	default:
		return "", false
	}
}
