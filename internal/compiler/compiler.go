// Package compiler turns a flat block template into compiled fragments.
//
// A compile pass validates the template, hashes every block, flushes the
// cached fragments of changed blocks and their ancestors, and then walks
// each region depth-first. Blocks whose fragment is still cached are served
// from the cache; the rest are rendered by the renderer registered for
// their type and written back. When preview is on, the walk also drives a
// preview collector so the editor sees exactly what rendered.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/cache"
	"github.com/livetemplate/blockpage/internal/datastore"
	"github.com/livetemplate/blockpage/internal/logging"
	"github.com/livetemplate/blockpage/internal/preview"
	"github.com/livetemplate/blockpage/internal/schema"
)

// Options configures a Compiler.
type Options struct {
	Registry *schema.Registry
	// Cache may be nil, in which case every block is rendered on every pass.
	Cache *cache.Manager
	// BeforeContent and AfterContent name the regions rendered around the
	// page content. All other regions are content.
	BeforeContent []string
	AfterContent  []string
	Preview       bool
	// Fallback renders blocks whose type has no renderer. Default: Skeleton.
	Fallback schema.Renderable
	Logger   *slog.Logger
}

// Compiler compiles templates. It holds no per-pass state and may be shared;
// each Compile call gets its own collector.
type Compiler struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Compiler.
func New(opts Options) *Compiler {
	if opts.Registry == nil {
		opts.Registry = schema.NewRegistry()
	}
	if opts.Fallback == nil {
		opts.Fallback = Skeleton{}
	}
	return &Compiler{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// Output is the result of one compile pass.
type Output struct {
	// Fragments maps block ID to its compiled fragment.
	Fragments map[string]string `json:"fragments"`
	// Regions maps region name to the concatenated fragments of its roots.
	Regions map[string]string `json:"regions"`
	// Hashes maps block ID to its content hash.
	Hashes map[string]string `json:"hashes"`
	// Changed lists blocks whose hash was not cached.
	Changed []string `json:"changed"`
	// Rendered lists blocks rendered this pass, in render order.
	Rendered []string `json:"rendered"`
	// Preview is set when preview collection is on.
	Preview *preview.Payload `json:"preview,omitempty"`
}

type pass struct {
	*Compiler
	store     *datastore.Store
	inv       *cache.Invalidation
	collector *preview.Collector
	renderCtx map[string]any
	out       *Output
}

// Compile compiles tpl. Blocks are taken from store, which is loaded with
// tpl first when needed. renderCtx is the context dynamic properties
// resolve against.
func (c *Compiler) Compile(ctx context.Context, store *datastore.Store, tpl *block.Template, renderCtx map[string]any) (*Output, error) {
	if err := tpl.Validate(); err != nil {
		return nil, block.InFile(err, tpl.Source)
	}
	for _, id := range tpl.Order {
		if store.Get(id) != tpl.Blocks[id] {
			store.Add(tpl)
			break
		}
	}

	p := &pass{
		Compiler:  c,
		store:     store,
		renderCtx: renderCtx,
		out: &Output{
			Fragments: make(map[string]string),
			Regions:   make(map[string]string),
		},
	}

	if c.opts.Cache != nil {
		inv, err := c.opts.Cache.Invalidate(ctx, tpl)
		if err != nil {
			c.logger.Warn("cache invalidation failed, compiling without cache", "template", tpl.Source, "error", err)
		} else {
			p.inv = inv
			p.out.Hashes = inv.Hashes
			p.out.Changed = inv.Changed
		}
	}
	if p.out.Hashes == nil {
		p.out.Hashes = make(map[string]string, len(tpl.Order))
		for _, id := range tpl.Order {
			hash, err := cache.GenerateHash(tpl.Blocks[id])
			if err != nil {
				return nil, err
			}
			p.out.Hashes[id] = hash
		}
		p.out.Changed = slices.Clone(tpl.Order)
	}

	if c.opts.Preview {
		p.collector = preview.NewCollector(store)
	}

	for _, region := range tpl.Regions {
		if err := p.region(ctx, region); err != nil {
			return nil, block.InFile(err, tpl.Source)
		}
	}

	if p.collector != nil {
		data := p.collector.Data()
		p.out.Preview = &data
	}

	c.logger.Debug("template compiled",
		"template", tpl.Source,
		"blocks", len(tpl.Order),
		"changed", len(p.out.Changed),
		"rendered", len(p.out.Rendered))
	return p.out, nil
}

// Layer returns the content layer of a region name.
func (c *Compiler) Layer(region string) preview.Layer {
	switch {
	case slices.Contains(c.opts.BeforeContent, region):
		return preview.LayerBefore
	case slices.Contains(c.opts.AfterContent, region):
		return preview.LayerAfter
	default:
		return preview.LayerContent
	}
}

func (p *pass) region(ctx context.Context, region block.Region) error {
	layer := p.Layer(region.Name)
	if p.collector != nil {
		switch layer {
		case preview.LayerBefore:
			p.collector.BeforeContent()
		case preview.LayerAfter:
			p.collector.AfterContent()
		default:
			p.collector.StartContent()
		}
		p.collector.StartRegion(region.Name)
	}

	var buf strings.Builder
	for _, id := range region.Blocks {
		frag, err := p.block(ctx, id)
		if err != nil {
			return err
		}
		buf.WriteString(frag)
	}
	p.out.Regions[region.Name] = buf.String()

	if p.collector != nil {
		p.collector.EndRegion(region.Name)
		if layer == preview.LayerContent {
			p.collector.EndContent()
		}
	}
	return nil
}

// block compiles id and its subtree. Missing and disabled blocks compile
// to nothing; ghost blocks are never rendered on their own.
func (p *pass) block(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b := p.store.Get(id)
	if b == nil {
		return "", nil
	}
	if b.Disabled || b.Ghost {
		p.markEmpty(ctx, id)
		return "", nil
	}

	if p.collector != nil {
		p.collector.StartBlock(id, b)
		defer p.collector.EndBlock(id)
	}

	children := make([]string, 0, len(b.Children))
	for _, child := range p.store.Children(id) {
		frag, err := p.block(ctx, child.ID)
		if err != nil {
			return "", err
		}
		if !child.Disabled && !child.Ghost {
			children = append(children, frag)
		}
	}

	hash := p.out.Hashes[id]
	if frag, ok := p.cached(ctx, id, hash); ok {
		p.out.Fragments[id] = frag
		return frag, nil
	}

	if b.Props != nil {
		b.Props.SetContext(p.renderCtx)
	}
	renderer := p.opts.Fallback
	if sc := p.opts.Registry.Get(b.Type); sc != nil && sc.Renderer != nil {
		renderer = sc.Renderer
	}
	frag, err := renderer.Render(ctx, b, children)
	if err != nil {
		return "", fmt.Errorf("failed to render block %q (%s): %w", id, b.Type, err)
	}
	p.out.Fragments[id] = frag
	p.out.Rendered = append(p.out.Rendered, id)

	if p.opts.Cache != nil && p.inv != nil {
		if err := p.opts.Cache.Put(ctx, hash, frag); err != nil {
			p.logger.Warn("cache write failed, block will be recompiled next pass", "block", id, "hash", hash, "error", err)
		}
	}
	return frag, nil
}

// markEmpty caches the empty output of a block that renders nothing, and of
// every block below it, so an unchanged ghost or disabled subtree does not
// invalidate its ancestors on every pass.
func (p *pass) markEmpty(ctx context.Context, id string) {
	if p.opts.Cache == nil || p.inv == nil {
		return
	}
	p.markEmptyTree(ctx, id, make(map[string]bool))
}

func (p *pass) markEmptyTree(ctx context.Context, id string, seen map[string]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	if hash, ok := p.out.Hashes[id]; ok && p.inv.IsFlushed(id) {
		if err := p.opts.Cache.Put(ctx, hash, ""); err != nil {
			p.logger.Warn("cache write failed", "block", id, "error", err)
		}
	}
	b := p.store.Get(id)
	if b == nil {
		return
	}
	for _, child := range b.Children {
		p.markEmptyTree(ctx, child, seen)
	}
}

func (p *pass) cached(ctx context.Context, id, hash string) (string, bool) {
	if p.opts.Cache == nil || p.inv == nil || p.inv.IsFlushed(id) {
		return "", false
	}
	frag, ok, err := p.opts.Cache.Get(ctx, hash)
	if err != nil {
		p.logger.Warn("cache read failed, recompiling block", "block", id, "hash", hash, "error", err)
		return "", false
	}
	// An empty entry may be the placeholder left by markEmpty while the
	// block sat under a hidden parent.
	if ok && frag == "" {
		return "", false
	}
	return frag, ok
}
