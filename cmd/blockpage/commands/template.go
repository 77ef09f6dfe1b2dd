package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/livetemplate/blockpage/internal/loader"
)

// defaultTimeout bounds a single compile from the CLI.
const defaultTimeout = 30 * time.Second

// FlattenCommand prints the flat form of a template, or rewrites the file
// in place with --write.
// Usage: blockpage flatten <template> [--write]
func FlattenCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	path, err := opts.templateArg("blockpage flatten <template> [--write] [--config=<file>]")
	if err != nil {
		return err
	}

	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	tpl, err := engine.Parse(path)
	if err != nil {
		return err
	}
	flat := tpl.ToObject()

	if opts.write {
		format, err := loader.FormatOf(path)
		if err != nil {
			return err
		}
		if err := loader.WriteFile(path, flat, format); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "✅ Flattened %s (%d blocks)\n", path, len(tpl.Blocks))
		return nil
	}

	format := loader.FormatYAML
	if opts.jsonOut {
		format = loader.FormatJSON
	}
	data, err := loader.Encode(flat, format)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

// CompileCommand compiles a template and prints each region.
// Usage: blockpage compile <template> [--context=<file>] [--json]
func CompileCommand(args []string) error {
	return compile(args, false)
}

// PreviewCommand compiles a template and prints the preview payload the
// editor consumes.
// Usage: blockpage preview <template> [--context=<file>]
func PreviewCommand(args []string) error {
	return compile(args, true)
}

func compile(args []string, previewOnly bool) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	name := "compile"
	if previewOnly {
		name = "preview"
	}
	path, err := opts.templateArg("blockpage " + name + " <template> [--context=<file>] [--json] [--config=<file>]")
	if err != nil {
		return err
	}
	renderCtx, err := readContext(opts.contextArg)
	if err != nil {
		return err
	}

	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	out, err := engine.Compile(ctx, path, renderCtx)
	if err != nil {
		return err
	}

	if previewOnly {
		if out.Preview == nil {
			return fmt.Errorf("preview is disabled in the config (preview.enabled: false)")
		}
		return writeJSON(map[string]any{
			"blocks":      out.Preview.Blocks,
			"regions":     out.Preview.Regions,
			"breakpoints": engine.Config().Breakpoints,
		})
	}
	if opts.jsonOut {
		return writeJSON(out)
	}

	names := make([]string, 0, len(out.Regions))
	for name := range out.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "── %s ──\n%s\n", name, out.Regions[name])
	}
	fmt.Fprintf(stdout, "\n%d blocks, %d changed, %d rendered\n", len(out.Hashes), len(out.Changed), len(out.Rendered))
	return nil
}

// ValidateCommand parses and validates every template under a directory.
// Usage: blockpage validate [directory]
func ValidateCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	engine, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	dir := engine.Config().GetTemplatesDir()
	if len(opts.positional) > 0 {
		dir = opts.positional[0]
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	exts := engine.Config().GetExtensions()

	fmt.Fprintf(stdout, "🔍 Validating templates in: %s\n\n", dir)

	var total, failed int
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		total++

		tpl, err := engine.Parse(path)
		if err == nil {
			err = tpl.Validate()
		}
		if err != nil {
			failed++
			PrintError(err)
			fmt.Fprintln(stderr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d templates invalid", failed, total)
	}
	fmt.Fprintf(stdout, "✅ %d templates valid\n", total)
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
