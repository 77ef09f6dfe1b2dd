package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/livetemplate/blockpage"
	"github.com/livetemplate/blockpage/internal/updates"
)

// UpdateCommand applies an editor save to a template.
// Usage: blockpage update <template> <request.json> [--region=<name>]...
func UpdateCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	usage := "blockpage update <template> <request.json> [--region=<name>]..."
	path, err := opts.templateArg(usage)
	if err != nil {
		return err
	}
	if len(opts.positional) < 2 {
		return fmt.Errorf("update request required\n\nUsage: %s", usage)
	}
	req, err := updates.ReadRequest(opts.positional[1])
	if err != nil {
		return err
	}

	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Update(path, req, opts.regions...)
	if err != nil {
		return err
	}
	if !res.Updated {
		fmt.Fprintf(stdout, "No changes applied to %s\n", path)
		return nil
	}
	scope := "all regions"
	if len(opts.regions) > 0 {
		scope = "regions " + strings.Join(opts.regions, ", ")
	}
	fmt.Fprintf(stdout, "✅ Updated %s (%s)\n", path, scope)
	return nil
}

// WatchCommand recompiles templates as they change until interrupted.
// Usage: blockpage watch [--dir=<project>]
func WatchCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := engine.Watch(ctx, func(path string, out *blockpage.Output, err error) {
		if err != nil {
			PrintError(err)
			return
		}
		fmt.Fprintf(stdout, "🔄 %s: %d changed, %d rendered\n", path, len(out.Changed), len(out.Rendered))
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(stdout, "👀 Watching %s (Ctrl+C to stop)\n", engine.Config().GetTemplatesDir())
	<-ctx.Done()
	fmt.Fprintln(stdout, "\nStopped")
	return nil
}

// SchemasCommand lists the registered block types and their presets.
// Usage: blockpage schemas [--json]
func SchemasCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	all := engine.Registry().All()
	if opts.jsonOut {
		return writeJSON(all)
	}
	if len(all) == 0 {
		fmt.Fprintln(stdout, "No schemas registered")
		return nil
	}
	for _, s := range all {
		fmt.Fprintf(stdout, "%s\n", s.Type)
		for _, p := range s.Properties {
			line := fmt.Sprintf("  %s", p.Name)
			if p.Type != "" {
				line += " (" + p.Type + ")"
			}
			if p.Responsive {
				line += " responsive"
			}
			if p.Default != nil {
				line += fmt.Sprintf(" = %v", p.Default)
			}
			fmt.Fprintln(stdout, line)
		}
		for _, p := range s.Presets {
			fmt.Fprintf(stdout, "  preset: %s\n", p.Name)
		}
	}
	if pending := engine.Registry().PendingTypes(); len(pending) > 0 {
		fmt.Fprintf(stdout, "\nPresets waiting for a schema: %s\n", strings.Join(pending, ", "))
	}
	return nil
}

// CacheCommand manages the fragment cache.
// Usage: blockpage cache flush
func CacheCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	if len(opts.positional) == 0 || opts.positional[0] != "flush" {
		return fmt.Errorf("usage: blockpage cache flush")
	}
	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.FlushCache(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "🧹 Flushed %s cache\n", engine.Config().GetCacheBackend())
	return nil
}
