// Package updates applies editor saves to stored template sources.
//
// A save carries the blocks the editor added or changed, the regions it
// sees, and a change manifest. Without target regions the whole save is
// applied. With target regions only the changes inside those regions are
// applied, so regions saved independently do not overwrite each other.
// A block is inside a region when it is one of the region's roots or when
// its parent chain reaches one.
package updates

import (
	"fmt"
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/livetemplate/blockpage/internal/block"
)

// source is a view over stored flat data.
type source struct {
	data   *block.Object
	blocks *block.Object
	// byParent indexes stored blocks by their parentId.
	byParent map[string][]string
}

func newSource(data *block.Object) (*source, error) {
	blocks := data.Object("blocks")
	if raw, ok := data.Get("blocks"); ok && raw != nil && blocks == nil {
		return nil, block.NewStructuralError(fmt.Sprintf("blocks must be a mapping, got %T", raw))
	}
	if blocks == nil {
		blocks = block.NewObject()
		data.Set("blocks", blocks)
	}
	s := &source{data: data, blocks: blocks, byParent: make(map[string][]string)}
	for _, id := range blocks.Keys() {
		if p := s.parent(id); p != "" {
			s.byParent[p] = append(s.byParent[p], id)
		}
	}
	return s, nil
}

func (s *source) parent(id string) string {
	return s.blocks.Object(id).String("parentId")
}

func (s *source) children(id string) []string {
	desc := s.blocks.Object(id)
	if desc == nil {
		return nil
	}
	ids, _ := block.StringList(desc, "children")
	return ids
}

// descendants adds id and everything below it in the stored tree to out.
// Both children lists and parentId links are followed.
func (s *source) descendants(id string, out map[string]bool) {
	if out[id] {
		return
	}
	out[id] = true
	for _, c := range lo.Union(s.children(id), s.byParent[id]) {
		s.descendants(c, out)
	}
}

// regionRoots returns the stored roots of the named regions.
func (s *source) regionRoots(names []string) []string {
	var roots []string
	for _, r := range s.regionObjects() {
		if slices.Contains(names, r.String("name")) {
			ids, _ := block.StringList(r, "blocks")
			roots = append(roots, ids...)
		}
	}
	return roots
}

func (s *source) regionObjects() []*block.Object {
	raw, _ := s.data.Get("regions")
	list, _ := raw.([]any)
	out := make([]*block.Object, 0, len(list))
	for _, item := range list {
		if o, ok := item.(*block.Object); ok {
			out = append(out, o)
		}
	}
	return out
}

// remove deletes ids from the stored blocks and prunes them from the
// children lists of the blocks that remain and from the roots of regions
// accepted by pruneRegion.
func (s *source) remove(ids map[string]bool, pruneRegion func(name string) bool) {
	for id := range ids {
		s.blocks.Delete(id)
	}
	for _, id := range s.blocks.Keys() {
		desc := s.blocks.Object(id)
		if desc == nil {
			continue
		}
		if _, ok := desc.Get("children"); !ok {
			continue
		}
		kids := s.children(id)
		kept := lo.Filter(kids, func(c string, _ int) bool { return !ids[c] })
		if len(kept) != len(kids) {
			desc.Set("children", toAnyList(kept))
		}
	}
	for _, r := range s.regionObjects() {
		if !pruneRegion(r.String("name")) {
			continue
		}
		roots, _ := block.StringList(r, "blocks")
		kept := lo.Filter(roots, func(c string, _ int) bool { return !ids[c] })
		if len(kept) != len(roots) {
			r.Set("blocks", toAnyList(kept))
		}
	}
}

func (s *source) upsert(b *block.Block) {
	s.blocks.Set(b.ID, b.ToObject())
}

func toAnyList(ids []string) []any {
	return lo.Map(ids, func(id string, _ int) any { return id })
}

// scope answers whether a block lies inside the target regions.
type scope struct {
	src   *source
	req   *Request
	roots map[string]bool
	memo  map[string]bool
}

func newScope(src *source, req *Request, targets []string) *scope {
	roots := make(map[string]bool)
	for _, id := range src.regionRoots(targets) {
		roots[id] = true
	}
	for _, r := range req.Regions {
		if slices.Contains(targets, r.Name) {
			for _, id := range r.Blocks {
				roots[id] = true
			}
		}
	}
	return &scope{src: src, req: req, roots: roots, memo: make(map[string]bool)}
}

func (sc *scope) requestParent(id string) (string, bool) {
	if b, ok := sc.req.Blocks[id]; ok {
		return b.ParentID, true
	}
	return "", false
}

func (sc *scope) storedParent(id string) (string, bool) {
	if sc.src.blocks.Has(id) {
		return sc.src.parent(id), true
	}
	return "", false
}

// contains walks the parent chain of id, looking each step up in the
// request first and the stored data second, then the other way round. The
// block is in scope when either walk reaches a target root.
func (sc *scope) contains(id string) bool {
	if v, ok := sc.memo[id]; ok {
		return v
	}
	in := sc.walk(id, sc.requestParent, sc.storedParent) || sc.walk(id, sc.storedParent, sc.requestParent)
	sc.memo[id] = in
	return in
}

func (sc *scope) walk(id string, first, second func(string) (string, bool)) bool {
	seen := make(map[string]bool)
	for cur := id; cur != "" && !seen[cur]; {
		if sc.roots[cur] {
			return true
		}
		seen[cur] = true
		parent, ok := first(cur)
		if !ok {
			parent, ok = second(cur)
		}
		if !ok {
			return false
		}
		cur = parent
	}
	return false
}

func (sc *scope) filter(ids []string) []string {
	return lo.Filter(ids, func(id string, _ int) bool { return sc.contains(id) })
}

// Apply applies req to data in place and reports whether anything changed.
// data must be flat: {blocks: {id: block}, regions: [...]}. With no
// targets the whole request is applied; otherwise only changes inside the
// target regions are.
func Apply(data *block.Object, req *Request, targets []string) (bool, error) {
	src, err := newSource(data)
	if err != nil {
		return false, err
	}
	if len(targets) == 0 {
		return applyAll(src, req)
	}
	return applyScoped(src, req, targets)
}

func applyAll(src *source, req *Request) (bool, error) {
	if req.IsEmpty() {
		return false, nil
	}

	removed := make(map[string]bool)
	for _, id := range req.Changes.Removed {
		src.descendants(id, removed)
	}
	src.remove(removed, func(string) bool { return len(req.Regions) == 0 })

	for _, id := range req.Blocks.IDs() {
		if !removed[id] {
			src.upsert(req.Blocks[id])
		}
	}

	if len(req.Regions) > 0 {
		src.data.Set("regions", lo.Map(req.Regions, func(r block.Region, _ int) any { return r.ToObject() }))
	}
	return true, nil
}

func applyScoped(src *source, req *Request, targets []string) (bool, error) {
	sc := newScope(src, req, targets)

	removedIDs := sc.filter(req.Changes.Removed)
	changed := sc.filter(lo.Union(req.Changes.Added, req.Changes.Updated, req.Changes.Moved.IDs()))
	changed = lo.Filter(changed, func(id string, _ int) bool {
		_, ok := req.Blocks[id]
		return ok
	})
	if len(removedIDs) == 0 && len(changed) == 0 {
		return false, nil
	}

	removed := make(map[string]bool)
	for _, id := range removedIDs {
		src.descendants(id, removed)
	}
	src.remove(removed, func(name string) bool { return slices.Contains(targets, name) })

	sort.Strings(changed)
	for _, id := range changed {
		if !removed[id] {
			src.upsert(req.Blocks[id])
		}
	}

	replaceTargetRegions(src, req, targets)
	return true, nil
}

// replaceTargetRegions swaps in the request's version of each target
// region. Regions the request does not carry, and every non-target region,
// stay as stored.
func replaceTargetRegions(src *source, req *Request, targets []string) {
	raw, _ := src.data.Get("regions")
	list, _ := raw.([]any)
	list = slices.Clone(list)

	for _, r := range req.Regions {
		if !slices.Contains(targets, r.Name) {
			continue
		}
		idx := slices.IndexFunc(list, func(item any) bool {
			o, ok := item.(*block.Object)
			return ok && o.String("name") == r.Name
		})
		if idx >= 0 {
			list[idx] = r.ToObject()
		} else {
			list = append(list, r.ToObject())
		}
	}
	if list == nil {
		list = []any{}
	}
	src.data.Set("regions", list)
}
