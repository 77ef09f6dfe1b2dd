package updates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"

	"github.com/livetemplate/blockpage/internal/block"
)

// Request is an editor save: the full data of every added or updated
// block, the region list, and a manifest of what changed.
type Request struct {
	Blocks  BlockMap       `json:"blocks"`
	Regions []block.Region `json:"regions"`
	Changes Changes        `json:"changes"`
}

// Changes lists block IDs by kind of change.
type Changes struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
	Moved   MoveMap  `json:"moved"`
}

// Move describes where a moved block went. The block's new placement is
// carried by its entry in Request.Blocks.
type Move struct {
	ParentID string `json:"parentId,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Region   string `json:"region,omitempty"`
}

// BlockMap holds blocks keyed by ID. An empty JSON list decodes as an empty
// map.
type BlockMap map[string]*block.Block

func (m *BlockMap) UnmarshalJSON(data []byte) error {
	if isEmptyList(data) {
		*m = BlockMap{}
		return nil
	}
	var raw map[string]*block.Block
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for id, b := range raw {
		if b == nil {
			delete(raw, id)
			continue
		}
		if b.ID == "" {
			b.ID = id
		}
	}
	*m = raw
	return nil
}

// MoveMap holds moves keyed by block ID. An empty JSON list decodes as an
// empty map.
type MoveMap map[string]Move

func (m *MoveMap) UnmarshalJSON(data []byte) error {
	if isEmptyList(data) {
		*m = MoveMap{}
		return nil
	}
	var raw map[string]Move
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// IDs returns the map's keys in sorted order.
func (m BlockMap) IDs() []string {
	ids := lo.Keys(map[string]*block.Block(m))
	sort.Strings(ids)
	return ids
}

// IDs returns the moved block IDs in sorted order.
func (m MoveMap) IDs() []string {
	ids := lo.Keys(map[string]Move(m))
	sort.Strings(ids)
	return ids
}

func isEmptyList(data []byte) bool {
	return bytes.Equal(bytes.Join(bytes.Fields(data), nil), []byte("[]"))
}

// IsEmpty reports whether the request carries no removals and no blocks.
func (r *Request) IsEmpty() bool {
	return len(r.Changes.Removed) == 0 && len(r.Blocks) == 0
}

// DecodeRequest reads a JSON update request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse update request: %w", err)
	}
	if req.Blocks == nil {
		req.Blocks = BlockMap{}
	}
	return &req, nil
}

// ReadRequest reads a JSON update request from path.
func ReadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read update request: %w", err)
	}
	return DecodeRequest(data)
}
