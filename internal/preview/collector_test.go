package preview

import (
	"testing"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupMap map[string]*block.Block

func (m lookupMap) Get(id string) *block.Block { return m[id] }

func TestGhostChildrenCollectedWithParent(t *testing.T) {
	blocks := lookupMap{
		"P": {ID: "P", Type: "card", Children: []string{"G", "N"}},
		"G": {ID: "G", Type: "meta", ParentID: "P", Ghost: true},
		"N": {ID: "N", Type: "text", ParentID: "P"},
	}
	c := NewCollector(blocks)

	c.StartRegion("main")
	c.StartBlock("P", blocks["P"])
	c.EndBlock("P")
	c.EndRegion("main")

	data := c.Data()
	assert.Contains(t, data.Blocks, "P")
	assert.Contains(t, data.Blocks, "G")
	assert.NotContains(t, data.Blocks, "N")
	assert.Equal(t, []string{"G"}, data.Blocks["P"]["children"])
	require.Len(t, data.Regions, 1)
	assert.Equal(t, []string{"P"}, data.Regions[0].Blocks)
}

func TestStaticBlockRecordedOnce(t *testing.T) {
	idx := 0
	blocks := lookupMap{
		"list": {ID: "list", Type: "loop", Children: []string{"logo"}},
		"logo": {ID: "logo", Type: "image", ParentID: "list", Static: true, SemanticID: "logo", Index: &idx},
	}
	c := NewCollector(blocks)
	c.StartBlock("list", blocks["list"])

	for i := 0; i < 3; i++ {
		changed := blocks["logo"].Clone()
		n := i
		changed.Index = &n
		c.StartBlock("logo", changed)
	}

	data := c.Data()
	assert.Len(t, data.Blocks, 2)
	assert.Equal(t, 0, data.Blocks["logo"]["index"], "first snapshot wins")
	assert.Equal(t, []string{"logo"}, data.Blocks["list"]["children"])
}

func TestRenderedOrderOverridesDeclaredOrder(t *testing.T) {
	blocks := lookupMap{
		"p": {ID: "p", Type: "row", Children: []string{"a", "b", "c"}},
		"a": {ID: "a", Type: "text", ParentID: "p"},
		"b": {ID: "b", Type: "text", ParentID: "p"},
		"c": {ID: "c", Type: "text", ParentID: "p"},
	}
	c := NewCollector(blocks)
	c.StartBlock("p", blocks["p"])
	c.StartBlock("c", blocks["c"])
	c.StartBlock("a", blocks["a"])

	data := c.Data()
	assert.Equal(t, []string{"c", "a"}, data.Blocks["p"]["children"])
	assert.Equal(t, []string{}, data.Blocks["a"]["children"])
}

func TestRegionLayerOrdering(t *testing.T) {
	blocks := lookupMap{
		"f": {ID: "f", Type: "footer"},
		"b": {ID: "b", Type: "body"},
		"h": {ID: "h", Type: "header"},
	}
	c := NewCollector(blocks)

	c.AfterContent()
	c.StartRegion("footer")
	c.StartBlock("f", blocks["f"])
	c.EndRegion("footer")

	c.StartContent()
	c.StartRegion("body")
	c.StartBlock("b", blocks["b"])
	c.StartBlock("b", blocks["b"])
	c.EndRegion("body")
	c.EndContent()

	c.StartRegion("stray")
	c.EndRegion("stray")

	c.BeforeContent()
	c.StartRegion("header")
	c.StartBlock("h", blocks["h"])
	c.EndRegion("header")

	data := c.Data()
	names := make([]string, len(data.Regions))
	for i, r := range data.Regions {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"header", "body", "footer", "stray"}, names)
	assert.Equal(t, []string{"b"}, data.Regions[1].Blocks)
	assert.True(t, data.Regions[0].Shared)
	assert.False(t, data.Regions[1].Shared)
	assert.True(t, data.Regions[2].Shared)
}

func TestBlockOutsideRegionIsNotARegionRoot(t *testing.T) {
	b := &block.Block{ID: "x", Type: "text"}
	c := NewCollector(nil)

	c.StartRegion("main")
	c.EndRegion("main")
	c.StartBlock("x", b)

	data := c.Data()
	assert.Empty(t, data.Regions[0].Blocks)
	assert.True(t, c.Has("x"))
}

func TestReset(t *testing.T) {
	c := NewCollector(nil)
	c.StartContent()
	c.StartRegion("main")
	c.StartBlock("x", &block.Block{ID: "x", Type: "text"})

	c.Reset()

	data := c.Data()
	assert.Empty(t, data.Blocks)
	assert.Empty(t, data.Regions)

	c.StartRegion("main")
	assert.True(t, c.Data().Regions[0].Shared, "content flag cleared by Reset")
}

func TestDataIsACopy(t *testing.T) {
	blocks := lookupMap{
		"P": {ID: "P", Type: "card", Children: []string{"N"}, Properties: map[string]any{"title": "Hi"}},
		"N": {ID: "N", Type: "text", ParentID: "P"},
	}
	c := NewCollector(blocks)
	c.StartRegion("main")
	c.StartBlock("P", blocks["P"])
	c.StartBlock("N", blocks["N"])
	c.EndRegion("main")

	first := c.Data()
	first.Blocks["P"]["children"] = []string{"tampered"}
	first.Blocks["P"]["properties"].(map[string]any)["title"] = "Changed"
	delete(first.Blocks, "N")

	second := c.Data()
	assert.Equal(t, []string{"N"}, second.Blocks["P"]["children"])
	assert.Equal(t, "Hi", second.Blocks["P"]["properties"].(map[string]any)["title"])
	assert.Contains(t, second.Blocks, "N")
	assert.Equal(t, "Hi", blocks["P"].Properties["title"], "the source block is never touched")
}
