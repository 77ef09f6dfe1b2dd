package props

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBagGetPlainValue(t *testing.T) {
	bag := NewBag(map[string]any{"title": "Hello"}, nil)

	assert.Equal(t, "Hello", bag.Get("title"))
	assert.True(t, bag.Has("title"))
}

func TestBagGetMissingKey(t *testing.T) {
	bag := NewBag(map[string]any{"title": "Hello"}, nil)

	assert.Nil(t, bag.Get("missing"))
	assert.False(t, bag.Has("missing"))
}

func TestBagDynamicSource(t *testing.T) {
	bag := NewBag(
		map[string]any{"title": "@post.title"},
		map[string]Schema{"title": {Type: "text", Default: "Untitled"}},
		WithContext(map[string]any{"post": 1}),
	)

	ds, ok := bag.Get("title").(*DynamicSource)
	require.True(t, ok, "expected a DynamicSource")
	assert.Equal(t, "post.title", ds.Path())
	assert.Equal(t, "text", ds.Type())
	assert.Equal(t, "Untitled", ds.Default())
	assert.Equal(t, map[string]any{"post": 1}, ds.Context())
}

func TestBagDynamicSourceDefaultsToTextType(t *testing.T) {
	bag := NewBag(map[string]any{"count": "@stats.count"}, nil)

	ds, ok := bag.Get("count").(*DynamicSource)
	require.True(t, ok)
	assert.Equal(t, "text", ds.Type())
	assert.Nil(t, ds.Default())
}

func TestBagDynamicSourceBoundary(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		dynamic bool
	}{
		{"leading at", "@a.b", true},
		{"email", "user@example.com", false},
		{"leading space", " @a.b", false},
		{"trailing at", "a.b@", false},
		{"number", 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := NewBag(map[string]any{"v": tt.value}, nil)
			_, isDynamic := bag.Get("v").(*DynamicSource)
			assert.Equal(t, tt.dynamic, isDynamic)
			if !tt.dynamic {
				assert.Equal(t, tt.value, bag.Get("v"))
			}
		})
	}
}

func TestBagCacheIdentity(t *testing.T) {
	bag := NewBag(
		map[string]any{
			"title":   "@post.title",
			"padding": map[string]any{"_default": 1, "md": 2},
		},
		map[string]Schema{"padding": {Responsive: true}},
	)

	first := bag.Get("title").(*DynamicSource)
	second := bag.Get("title").(*DynamicSource)
	assert.Same(t, first, second)

	r1 := bag.Get("padding").(*ResponsiveValue)
	r2 := bag.Get("padding").(*ResponsiveValue)
	assert.Same(t, r1, r2)
}

func TestBagSetContextInvalidatesCache(t *testing.T) {
	bag := NewBag(map[string]any{"title": "@post.title"}, nil,
		WithContext(map[string]any{"post": "one"}))

	before := bag.Get("title").(*DynamicSource)
	assert.Equal(t, "one", before.Context()["post"])

	bag.SetContext(map[string]any{"post": "two"})

	after := bag.Get("title").(*DynamicSource)
	assert.NotSame(t, before, after)
	assert.Equal(t, "two", after.Context()["post"])
	assert.Equal(t, "one", before.Context()["post"], "old source must keep its context")
}

func TestBagResponsive(t *testing.T) {
	double := func(_ string, v any, _ Schema) any {
		if n, ok := v.(int); ok {
			return n * 2
		}
		return v
	}
	bag := NewBag(
		map[string]any{"gap": map[string]any{"_default": 1, "md": 2, "lg": 3}},
		map[string]Schema{"gap": {Type: "number", Responsive: true}},
		WithTransformer(double),
	)

	rv, ok := bag.Get("gap").(*ResponsiveValue)
	require.True(t, ok)
	assert.Equal(t, 2, rv.Default())
	assert.Equal(t, 4, rv.Get("md"))
	assert.Equal(t, 6, rv.Get("lg"))
	assert.Equal(t, 2, rv.Get("xl"))
	assert.Equal(t, []string{"lg", "md"}, rv.Breakpoints())
}

func TestBagResponsiveRequiresDefaultKey(t *testing.T) {
	raw := map[string]any{"md": 1, "lg": 2}
	bag := NewBag(
		map[string]any{"gap": raw},
		map[string]Schema{"gap": {Responsive: true}},
	)

	v := bag.Get("gap")
	_, isResponsive := v.(*ResponsiveValue)
	assert.False(t, isResponsive)
	assert.Equal(t, raw, v)
}

func TestBagResponsiveIgnoredWithoutSchemaFlag(t *testing.T) {
	raw := map[string]any{"_default": 1, "md": 2}
	bag := NewBag(map[string]any{"gap": raw}, nil)

	_, isResponsive := bag.Get("gap").(*ResponsiveValue)
	assert.False(t, isResponsive)
}

func TestBagTransformerAppliedOnce(t *testing.T) {
	calls := 0
	upper := func(_ string, v any, _ Schema) any {
		calls++
		return strings.ToUpper(v.(string))
	}
	bag := NewBag(map[string]any{"title": "hello"}, nil, WithTransformer(upper))

	assert.Equal(t, "HELLO", bag.Get("title"))
	assert.Equal(t, "HELLO", bag.Get("title"))
	assert.Equal(t, 1, calls)
}

func TestBagOnlyExcept(t *testing.T) {
	bag := NewBag(
		map[string]any{"a": 1, "b": 2, "c": "@x"},
		map[string]Schema{"a": {Type: "number"}, "c": {Type: "text"}},
	)
	original := bag.Get("c")

	only := bag.Only("a", "c")
	assert.Equal(t, []string{"a", "c"}, only.Keys())
	_, hasSchema := only.Schema("a")
	assert.True(t, hasSchema)
	assert.NotSame(t, original, only.Get("c"), "filtered bag starts with an empty cache")

	except := bag.Except("a")
	assert.Equal(t, []string{"b", "c"}, except.Keys())
	_, hasSchema = except.Schema("a")
	assert.False(t, hasSchema)

	assert.Equal(t, []string{"a", "b", "c"}, bag.Keys(), "original bag is unchanged")
	assert.Same(t, original, bag.Get("c"))
}

func TestBagAllAndRaw(t *testing.T) {
	bag := NewBag(map[string]any{"title": "@post.title", "size": 3}, nil)

	all := bag.All()
	assert.IsType(t, &DynamicSource{}, all["title"])
	assert.Equal(t, 3, all["size"])

	raw := bag.Raw()
	assert.Equal(t, "@post.title", raw["title"])
	raw["size"] = 99
	assert.Equal(t, 3, bag.Get("size"), "Raw returns a copy")
}

func TestResponsiveValueGetOr(t *testing.T) {
	withDefault := NewResponsiveValue(map[string]any{"_default": "base", "md": "medium"})
	assert.Equal(t, "medium", withDefault.GetOr("md", "fallback"))
	assert.Equal(t, "base", withDefault.GetOr("xl", "fallback"), "default wins over fallback")

	plainDefault := NewResponsiveValue(map[string]any{"default": "base"})
	assert.Equal(t, "base", plainDefault.Get("sm"))

	noDefault := NewResponsiveValue(map[string]any{"md": "medium"})
	assert.Equal(t, "fallback", noDefault.GetOr("xl", "fallback"))
	assert.Nil(t, noDefault.Get("xl"))
}

func TestResponsiveValueIsImmutable(t *testing.T) {
	values := map[string]any{"_default": 1}
	rv := NewResponsiveValue(values)
	values["_default"] = 2

	all := rv.All()
	all["_default"] = 3

	assert.Equal(t, 1, rv.Default())
}
