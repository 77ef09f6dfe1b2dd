package blockpage

import "github.com/livetemplate/blockpage/internal/block"

// TemplateError is the error type for malformed templates. Use errors.Is
// with the sentinels below to classify it.
type TemplateError = block.TemplateError

var (
	// ErrStructural: a block or region has the wrong shape, an ID is
	// duplicated, or parent and child links disagree.
	ErrStructural = block.ErrStructural
	// ErrParse: the source is not valid JSON or YAML.
	ErrParse = block.ErrParse
	// ErrUnknownReference: a region, parent or child names a missing block.
	ErrUnknownReference = block.ErrUnknownReference
)
