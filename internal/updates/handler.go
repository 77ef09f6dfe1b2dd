package updates

import (
	"fmt"
	"log/slog"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/flatten"
	"github.com/livetemplate/blockpage/internal/loader"
	"github.com/livetemplate/blockpage/internal/logging"
)

// Handler applies update requests to template files on disk.
type Handler struct {
	parser *loader.Parser
	logger *slog.Logger
}

// Result is the outcome of one Execute call.
type Result struct {
	// Data is the flat source after the update.
	Data *block.Object
	// Updated reports whether the file was rewritten.
	Updated bool
}

// NewHandler creates a Handler. Nested sources are flattened with parser's
// flattener before the update is applied.
func NewHandler(parser *loader.Parser, logger *slog.Logger) *Handler {
	if parser == nil {
		parser = loader.NewParser(nil)
	}
	return &Handler{parser: parser, logger: logging.OrDiscard(logger)}
}

// Execute applies req to the template at path and writes it back in its
// original format when something changed. A source written with nested
// children is stored flat afterwards.
func (h *Handler) Execute(path string, req *Request, targets ...string) (*Result, error) {
	raw, format, err := loader.DecodeFile(path)
	if err != nil {
		return nil, err
	}

	data, err := h.flat(raw, path)
	if err != nil {
		return nil, err
	}

	next := data.Clone()
	updated, err := Apply(next, req, targets)
	if err != nil {
		return nil, block.InFile(err, path)
	}
	if !updated {
		h.logger.Debug("update skipped, nothing in scope", "template", path, "regions", targets)
		return &Result{Data: data}, nil
	}

	if err := loader.WriteFile(path, next, format); err != nil {
		return nil, err
	}
	h.logger.Info("template updated",
		"template", path,
		"regions", targets,
		"blocks", len(req.Blocks),
		"removed", len(req.Changes.Removed))
	return &Result{Data: next, Updated: true}, nil
}

// flat returns the source in flat form. Flat sources keep their key order;
// a missing regions list is derived from the root blocks. A single-region
// name/order pair is rewritten as a regions list, since it would otherwise
// shadow the updated regions on the next load.
func (h *Handler) flat(raw *block.Object, path string) (*block.Object, error) {
	if flatten.HasNestedStructure(raw) {
		tpl, err := h.parser.Parse(raw, path)
		if err != nil {
			return nil, err
		}
		return tpl.ToObject(), nil
	}
	single := raw.Has("name") && raw.Has("order")
	if single || !raw.Has("regions") {
		regions, err := flatten.ExtractRegions(raw)
		if err != nil {
			return nil, block.InFile(err, path)
		}
		if single {
			raw.Delete("name")
			raw.Delete("order")
		}
		raw.Set("regions", regionList(regions))
	}
	return raw, nil
}

func regionList(regions []block.Region) []any {
	out := make([]any, len(regions))
	for i, r := range regions {
		out[i] = r.ToObject()
	}
	return out
}

// ExecuteFile reads a JSON request from reqPath and applies it to path.
func (h *Handler) ExecuteFile(path, reqPath string, targets ...string) (*Result, error) {
	req, err := ReadRequest(reqPath)
	if err != nil {
		return nil, err
	}
	res, err := h.Execute(path, req, targets...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", path, err)
	}
	return res, nil
}
