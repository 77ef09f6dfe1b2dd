// Package preview records what a render pass actually produced so a live
// editor can map rendered output back to blocks.
package preview

import (
	"slices"

	"github.com/livetemplate/blockpage/internal/block"
)

// Layer is the content layer a region belongs to. Regions are emitted
// before-content first, then content, then after-content, then the rest.
type Layer int

const (
	LayerNone Layer = iota
	LayerBefore
	LayerContent
	LayerAfter
)

// Lookup finds blocks by ID. *datastore.Store satisfies it.
type Lookup interface {
	Get(id string) *block.Block
}

// Payload is the collected preview data.
type Payload struct {
	Blocks  map[string]map[string]any `json:"blocks"`
	Regions []block.Region            `json:"regions"`
}

type regionState struct {
	region block.Region
	layer  Layer
}

// Collector accumulates block snapshots and region membership over one
// render pass. It is driven sequentially and is not safe for concurrent use.
type Collector struct {
	lookup Lookup

	currentRegion string
	layer         Layer
	inContent     bool

	blocks      map[string]*block.Block
	blockOrder  []string
	regions     map[string]*regionState
	regionOrder []string
	rendered    map[string][]string
}

// NewCollector creates a Collector that resolves ghost children via lookup.
// lookup may be nil, in which case ghost children are never collected.
func NewCollector(lookup Lookup) *Collector {
	c := &Collector{lookup: lookup}
	c.Reset()
	return c
}

// Reset drops all collected state.
func (c *Collector) Reset() {
	c.currentRegion = ""
	c.layer = LayerNone
	c.inContent = false
	c.blocks = make(map[string]*block.Block)
	c.blockOrder = nil
	c.regions = make(map[string]*regionState)
	c.regionOrder = nil
	c.rendered = make(map[string][]string)
}

// BeforeContent marks subsequent regions as before-content.
func (c *Collector) BeforeContent() {
	c.layer = LayerBefore
}

// StartContent marks subsequent regions as page content.
func (c *Collector) StartContent() {
	c.layer = LayerContent
	c.inContent = true
}

// EndContent leaves the content layer.
func (c *Collector) EndContent() {
	c.layer = LayerNone
	c.inContent = false
}

// AfterContent marks subsequent regions as after-content.
func (c *Collector) AfterContent() {
	c.layer = LayerAfter
}

// StartRegion opens region name. A region first seen outside the content
// layer is shared.
func (c *Collector) StartRegion(name string) {
	c.currentRegion = name
	if _, ok := c.regions[name]; ok {
		return
	}
	c.regions[name] = &regionState{
		region: block.Region{Name: name, Blocks: []string{}, Shared: !c.inContent},
		layer:  c.layer,
	}
	c.regionOrder = append(c.regionOrder, name)
}

// EndRegion closes region name.
func (c *Collector) EndRegion(name string) {
	if c.currentRegion == name {
		c.currentRegion = ""
	}
}

// StartBlock records b. A static block already recorded keeps its first
// snapshot. Ghost children are recorded alongside their parent.
func (c *Collector) StartBlock(id string, b *block.Block) {
	if b == nil {
		return
	}
	_, seen := c.blocks[id]
	if !(seen && b.Static) {
		c.record(id, b)
	}
	c.collectGhosts(id, b)

	if b.ParentID != "" {
		c.addRendered(b.ParentID, id)
	} else if r, ok := c.regions[c.currentRegion]; ok && c.currentRegion != "" {
		if !slices.Contains(r.region.Blocks, id) {
			r.region.Blocks = append(r.region.Blocks, id)
		}
	}
}

// EndBlock closes block id.
func (c *Collector) EndBlock(id string) {}

func (c *Collector) record(id string, b *block.Block) {
	if _, ok := c.blocks[id]; !ok {
		c.blockOrder = append(c.blockOrder, id)
	}
	c.blocks[id] = b.Clone()
}

func (c *Collector) collectGhosts(id string, b *block.Block) {
	if c.lookup == nil {
		return
	}
	for _, childID := range b.Children {
		if _, ok := c.blocks[childID]; ok {
			continue
		}
		child := c.lookup.Get(childID)
		if child == nil || !child.Ghost {
			continue
		}
		c.record(childID, child)
		c.addRendered(id, childID)
		c.collectGhosts(childID, child)
	}
}

func (c *Collector) addRendered(parentID, id string) {
	if !slices.Contains(c.rendered[parentID], id) {
		c.rendered[parentID] = append(c.rendered[parentID], id)
	}
}

// Data returns the collected payload. Each block's children are the
// children observed during rendering, in render order. The payload is a
// copy; editing it does not touch the collector.
func (c *Collector) Data() Payload {
	blocks := make(map[string]map[string]any, len(c.blocks))
	for _, id := range c.blockOrder {
		snap := c.blocks[id].ToMap()
		children := append([]string{}, c.rendered[id]...)
		snap["children"] = children
		blocks[id] = snap
	}

	regions := make([]block.Region, 0, len(c.regionOrder))
	for _, layer := range []Layer{LayerBefore, LayerContent, LayerAfter, LayerNone} {
		for _, name := range c.regionOrder {
			r := c.regions[name]
			if r.layer != layer {
				continue
			}
			regions = append(regions, block.Region{
				Name:   r.region.Name,
				Blocks: append([]string{}, r.region.Blocks...),
				Shared: r.region.Shared,
			})
		}
	}

	return Payload{Blocks: blocks, Regions: regions}
}

// Has reports whether id has been recorded.
func (c *Collector) Has(id string) bool {
	_, ok := c.blocks[id]
	return ok
}
