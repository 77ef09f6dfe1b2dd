package coerce

import (
	"testing"

	"github.com/livetemplate/blockpage/internal/props"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform(t *testing.T) {
	c := New()

	tests := []struct {
		name  string
		typ   string
		value any
		want  any
	}{
		{"number from string", "number", "1.5", 1.5},
		{"number keeps int", "number", 3, 3},
		{"number bad string", "number", "wide", "wide"},
		{"integer from string", "integer", " 42 ", 42},
		{"integer from whole float", "integer", 7.0, 7},
		{"integer keeps fraction", "integer", 7.5, 7.5},
		{"bool from string", "boolean", "true", true},
		{"bool bad string", "bool", "maybe", "maybe"},
		{"short color", "color", "#ABC", "#aabbcc"},
		{"color without hash", "color", "FF0000", "#ff0000"},
		{"not a color", "color", "red", "red"},
		{"untyped", "", "1.5", "1.5"},
		{"unknown type", "video", "x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Transform("k", tt.value, props.Schema{Type: tt.typ})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkdown(t *testing.T) {
	c := New()

	got := c.Transform("body", "# Title\n\nHello **world**", props.Schema{Type: "markdown"})
	html, ok := got.(string)
	require.True(t, ok)
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<strong>world</strong>")
}

func TestSanitize(t *testing.T) {
	c := New()

	got := c.Transform("body", `<p onclick="x()">hi</p><script>alert(1)</script>`, props.Schema{Type: "richtext"})
	assert.Equal(t, "<p>hi</p>", got)
}

func TestTransformerInBag(t *testing.T) {
	c := New()
	bag := props.NewBag(
		map[string]any{"gap": "8", "accent": "#0F0", "title": "@page.title"},
		map[string]props.Schema{"gap": {Type: "number"}, "accent": {Type: "color"}},
		props.WithTransformer(c.Transformer()),
	)

	assert.Equal(t, 8.0, bag.Get("gap"))
	assert.Equal(t, "#00ff00", bag.Get("accent"))
	_, dynamic := bag.Get("title").(*props.DynamicSource)
	assert.True(t, dynamic, "dynamic sources bypass the transform")
}
