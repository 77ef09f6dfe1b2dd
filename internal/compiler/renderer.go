package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/livetemplate/blockpage/internal/block"
)

// RendererFunc adapts a function to schema.Renderable.
type RendererFunc func(ctx context.Context, b *block.Block, children []string) (string, error)

func (f RendererFunc) Render(ctx context.Context, b *block.Block, children []string) (string, error) {
	return f(ctx, b, children)
}

// Skeleton compiles a block into a named Go template slot wrapping its
// children, leaving the markup to the host's view layer.
type Skeleton struct{}

func (Skeleton) Render(_ context.Context, b *block.Block, children []string) (string, error) {
	return fmt.Sprintf("{{block %q .}}%s{{end}}", b.ID, strings.Join(children, "")), nil
}

// Concat compiles a block into its children's output.
type Concat struct{}

func (Concat) Render(_ context.Context, _ *block.Block, children []string) (string, error) {
	return strings.Join(children, ""), nil
}
