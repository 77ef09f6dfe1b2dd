package flatten

import (
	"errors"
	"regexp"
	"testing"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/idgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decode(t *testing.T, src string) *block.Object {
	t.Helper()
	var o block.Object
	require.NoError(t, yaml.Unmarshal([]byte(src), &o))
	return &o
}

// assertLinks checks that every parent/child link agrees in both directions.
func assertLinks(t *testing.T, tpl *block.Template) {
	t.Helper()
	for id, b := range tpl.Blocks {
		if b.ParentID == "" {
			continue
		}
		parent, ok := tpl.Blocks[b.ParentID]
		require.True(t, ok, "parent %q of %q missing", b.ParentID, id)
		assert.Contains(t, parent.Children, id)
	}
	require.NoError(t, tpl.Validate())
}

func TestFlattenEndToEnd(t *testing.T) {
	data := decode(t, `{"blocks":{"p":{"id":"p","type":"container","children":[{"id":"c","type":"text"}]}}}`)

	res, err := New(nil).Flatten(data)
	require.NoError(t, err)

	require.Len(t, res.Blocks, 2)
	p := res.Blocks["p"]
	require.NotNil(t, p)
	require.Len(t, p.Children, 1)

	childID := p.Children[0]
	assert.Regexp(t, regexp.MustCompile(`^c_[0-9a-f]{8}$`), childID)
	assert.Equal(t, "p", res.Blocks[childID].ParentID)
	assert.Equal(t, "text", res.Blocks[childID].Type)
	assert.Equal(t, "", p.ParentID)

	assert.Equal(t, []block.Region{{Name: MainRegion, Blocks: []string{"p"}}}, res.Regions)
	assert.Equal(t, map[string]string{"p.c": childID}, res.IDMappings)
	assert.Equal(t, []string{"p", childID}, res.Order)
	assertLinks(t, res.Template)
}

func TestFlattenDeterministicIDs(t *testing.T) {
	src := `
blocks:
  hero:
    type: section
    children:
      - id: title
        type: text
      - id: body
        type: text
        children:
          - id: link
            type: link
`
	first, err := New(nil).Flatten(decode(t, src))
	require.NoError(t, err)
	second, err := New(nil).Flatten(decode(t, src))
	require.NoError(t, err)

	assert.Equal(t, first.Order, second.Order)
	assert.Equal(t, first.IDMappings, second.IDMappings)
	assert.Len(t, first.Blocks, 4)
	assertLinks(t, first.Template)

	bodyID := first.IDMappings["hero.body"]
	linkID := first.IDMappings[bodyID+".link"]
	require.NotEmpty(t, linkID)
	assert.Equal(t, bodyID, first.Blocks[linkID].ParentID)
}

func TestFlattenSameLocalIDUnderDifferentParents(t *testing.T) {
	src := `
blocks:
  left:
    type: column
    children:
      - {id: child, type: text}
  right:
    type: column
    children:
      - {id: child, type: text}
`
	res, err := New(nil).Flatten(decode(t, src))
	require.NoError(t, err)

	leftChild := res.Blocks["left"].Children[0]
	rightChild := res.Blocks["right"].Children[0]
	assert.NotEqual(t, leftChild, rightChild)
	assert.Contains(t, res.Blocks, leftChild)
	assert.Contains(t, res.Blocks, rightChild)
	assert.Equal(t, "left", res.Blocks[leftChild].ParentID)
	assert.Equal(t, "right", res.Blocks[rightChild].ParentID)
}

func TestFlattenAlreadyFlatPassesThrough(t *testing.T) {
	src := `
blocks:
  p:
    id: p
    type: container
    properties: {gap: 2}
    children: [c_1]
  c_1:
    id: c_1
    type: text
    parentId: p
    children: []
regions:
  - name: body
    blocks: [p]
    shared: false
`
	data := decode(t, src)
	assert.False(t, HasNestedStructure(data))

	res, err := New(nil).Flatten(data)
	require.NoError(t, err)

	assert.Empty(t, res.IDMappings)
	assert.Equal(t, []string{"c_1"}, res.Blocks["p"].Children)
	assert.Equal(t, "p", res.Blocks["c_1"].ParentID)
	assert.Equal(t, map[string]any{"gap": 2}, res.Blocks["p"].Properties)
	assert.Equal(t, []block.Region{{Name: "body", Blocks: []string{"p"}}}, res.Regions)

	again, err := New(nil).Flatten(res.ToObject())
	require.NoError(t, err)
	assert.Equal(t, res.Order, again.Order)
	for id, b := range res.Blocks {
		assert.Equal(t, b, again.Blocks[id])
	}
}

func TestFlattenMissingIDOrType(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"child without type", `{"blocks":{"p":{"type":"container","children":[{"id":"c"}]}}}`},
		{"child without id", `{"blocks":{"p":{"type":"container","children":[{"type":"text"}]}}}`},
		{"root without type", `{"blocks":{"p":{"id":"p"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(nil)
			res, err := f.Flatten(decode(t, tt.src))
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, block.ErrStructural))
			assert.Contains(t, err.Error(), "Block must have both id and type")
			assert.Empty(t, f.mappings, "failed flatten must not record mappings")
		})
	}
}

func TestFlattenChildKeyMismatch(t *testing.T) {
	src := `
blocks:
  p:
    type: container
    children:
      first:
        id: second
        type: text
`
	_, err := New(nil).Flatten(decode(t, src))
	require.Error(t, err)
	assert.True(t, errors.Is(err, block.ErrStructural))
	assert.Contains(t, err.Error(), `"first"`)
	assert.Contains(t, err.Error(), `"second"`)
}

func TestFlattenObjectKeyedChildrenKeepOrder(t *testing.T) {
	src := `
blocks:
  list:
    type: list
    children:
      zeta: {type: item}
      alpha: {type: item}
      mid: {type: item}
`
	f := New(nil)
	res, err := f.Flatten(decode(t, src))
	require.NoError(t, err)

	want := []string{}
	for _, local := range []string{"zeta", "alpha", "mid"} {
		id, ok := f.Mapping("list", local)
		require.True(t, ok)
		want = append(want, id)
	}
	assert.Equal(t, want, res.Blocks["list"].Children)
}

func TestFlattenExplicitOrderWins(t *testing.T) {
	src := `
blocks:
  list:
    type: list
    order: [c, a]
    children:
      a: {type: item}
      b: {type: item}
      c: {type: item}
`
	f := New(nil)
	res, err := f.Flatten(decode(t, src))
	require.NoError(t, err)

	a, _ := f.Mapping("list", "a")
	b, _ := f.Mapping("list", "b")
	c, _ := f.Mapping("list", "c")
	assert.Equal(t, []string{c, a, b}, res.Blocks["list"].Children)
}

func TestFlattenStaticSemanticID(t *testing.T) {
	src := `
blocks:
  loop:
    type: loop
    children:
      - {id: card, type: card, static: true}
      - {id: named, type: card, static: true, semanticId: custom}
      - {id: plain, type: card}
`
	f := New(nil)
	res, err := f.Flatten(decode(t, src))
	require.NoError(t, err)

	card, _ := f.Mapping("loop", "card")
	named, _ := f.Mapping("loop", "named")
	plain, _ := f.Mapping("loop", "plain")
	assert.Equal(t, "card", res.Blocks[card].SemanticID)
	assert.Equal(t, "custom", res.Blocks[named].SemanticID)
	assert.Equal(t, "", res.Blocks[plain].SemanticID)
}

func TestFlattenRegions(t *testing.T) {
	t.Run("name and order", func(t *testing.T) {
		res, err := New(nil).Flatten(decode(t, `
name: header
order: [logo, nav]
blocks:
  nav: {type: nav}
  logo: {type: image}
`))
		require.NoError(t, err)
		assert.Equal(t, []block.Region{{Name: "header", Blocks: []string{"logo", "nav"}}}, res.Regions)
	})

	t.Run("synthesized main keeps encounter order", func(t *testing.T) {
		res, err := New(nil).Flatten(decode(t, `
blocks:
  second: {type: text}
  first: {type: text}
`))
		require.NoError(t, err)
		assert.Equal(t, []block.Region{{Name: MainRegion, Blocks: []string{"second", "first"}}}, res.Regions)
	})
}

func TestFlattenMappingsAccumulateUntilReset(t *testing.T) {
	f := New(idgen.Hashed())

	_, err := f.Flatten(decode(t, `{"blocks":{"a":{"type":"x","children":[{"id":"c","type":"y"}]}}}`))
	require.NoError(t, err)
	res, err := f.Flatten(decode(t, `{"blocks":{"b":{"type":"x","children":[{"id":"c","type":"y"}]}}}`))
	require.NoError(t, err)

	assert.Len(t, res.IDMappings, 2)
	_, ok := f.Mapping("a", "c")
	assert.True(t, ok)

	f.ResetMappings()
	_, ok = f.Mapping("a", "c")
	assert.False(t, ok)
}

func TestFlattenDuplicateRootID(t *testing.T) {
	_, err := New(nil).Flatten(decode(t, `{"blocks":{"a":{"id":"same","type":"x"},"b":{"id":"same","type":"x"}}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, block.ErrStructural))
}

func TestHasNestedStructure(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"list of descriptors", `{"blocks":{"p":{"type":"x","children":[{"id":"c","type":"y"}]}}}`, true},
		{"mapping of descriptors", `{"blocks":{"p":{"type":"x","children":{"c":{"type":"y"}}}}}`, true},
		{"list of ids", `{"blocks":{"p":{"type":"x","children":["c"]}}}`, false},
		{"no children", `{"blocks":{"p":{"type":"x"}}}`, false},
		{"no blocks", `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasNestedStructure(decode(t, tt.src)))
		})
	}
}
