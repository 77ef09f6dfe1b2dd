package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/logging"
)

// Manager hashes blocks and drives a Store.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager wraps store. A nil logger discards.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logging.OrDiscard(logger)}
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// GenerateHash returns the content hash of b's canonical JSON form. Any
// change to a property, a child list or a flag changes the hash.
func GenerateHash(b *block.Block) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to hash block %q: %w", b.ID, err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

func (m *Manager) Exists(ctx context.Context, hash string) (bool, error) {
	return m.store.Exists(ctx, hash)
}

func (m *Manager) Get(ctx context.Context, hash string) (string, bool, error) {
	return m.store.Get(ctx, hash)
}

func (m *Manager) Put(ctx context.Context, hash, content string) error {
	return m.store.Put(ctx, hash, content)
}

func (m *Manager) Delete(ctx context.Context, hash string) error {
	return m.store.Delete(ctx, hash)
}

func (m *Manager) Flush(ctx context.Context) error {
	return m.store.Flush(ctx)
}

// Invalidation is the outcome of Invalidate.
type Invalidation struct {
	// Hashes maps every block ID to its current content hash.
	Hashes map[string]string
	// Changed lists blocks whose hash was not cached, in template order.
	Changed []string
	// Flushed lists blocks whose entries were removed: each changed block
	// and all of its ancestors.
	Flushed []string

	flushed map[string]bool
}

// IsFlushed reports whether id was flushed.
func (inv *Invalidation) IsFlushed(id string) bool {
	return inv.flushed[id]
}

// Invalidate hashes every block in tpl, finds the ones whose hash is not
// cached, and flushes the entries of those blocks and every ancestor up to
// the root. Ancestors embed their descendants' output, so a leaf change
// must reach them all.
func (m *Manager) Invalidate(ctx context.Context, tpl *block.Template) (*Invalidation, error) {
	inv := &Invalidation{
		Hashes:  make(map[string]string, len(tpl.Blocks)),
		flushed: make(map[string]bool),
	}

	for _, id := range tpl.Order {
		hash, err := GenerateHash(tpl.Blocks[id])
		if err != nil {
			return nil, err
		}
		inv.Hashes[id] = hash

		ok, err := m.store.Exists(ctx, hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			inv.Changed = append(inv.Changed, id)
		}
	}

	for _, id := range inv.Changed {
		chain := append([]string{id}, tpl.Ancestors(id)...)
		for _, target := range chain {
			if _, known := inv.Hashes[target]; !known || inv.flushed[target] {
				continue
			}
			inv.flushed[target] = true
			if err := m.store.Delete(ctx, inv.Hashes[target]); err != nil {
				return nil, err
			}
			inv.Flushed = append(inv.Flushed, target)
		}
	}

	if len(inv.Changed) > 0 {
		m.logger.Debug("cache invalidated", "template", tpl.Source, "changed", len(inv.Changed), "flushed", len(inv.Flushed))
	}
	return inv, nil
}
