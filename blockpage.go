// Package blockpage is the core of a block-based page builder.
//
// Pages are authored as JSON or YAML templates of typed blocks, either flat
// or with nested children. blockpage flattens them into a canonical graph
// with stable IDs, resolves block properties against schemas and a render
// context, compiles each region into fragments with a content-hash cache,
// collects preview data for a live editor, and applies editor saves back to
// the source files.
//
// Most programs only need an Engine:
//
//	cfg, _ := config.LoadFromDir(".")
//	engine, err := blockpage.NewEngine(cfg, logger)
//	if err != nil { ... }
//	defer engine.Close()
//	out, err := engine.Compile(ctx, "templates/home.yaml", map[string]any{"title": "Home"})
package blockpage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/livetemplate/blockpage/internal/cache"
	"github.com/livetemplate/blockpage/internal/coerce"
	"github.com/livetemplate/blockpage/internal/compiler"
	"github.com/livetemplate/blockpage/internal/config"
	"github.com/livetemplate/blockpage/internal/datastore"
	"github.com/livetemplate/blockpage/internal/flatten"
	"github.com/livetemplate/blockpage/internal/idgen"
	"github.com/livetemplate/blockpage/internal/loader"
	"github.com/livetemplate/blockpage/internal/logging"
	"github.com/livetemplate/blockpage/internal/schema"
	"github.com/livetemplate/blockpage/internal/updates"
	"github.com/livetemplate/blockpage/internal/watch"
)

type (
	Block         = block.Block
	Region        = block.Region
	Template      = block.Template
	Output        = compiler.Output
	UpdateRequest = updates.Request
	UpdateResult  = updates.Result
)

// ParseFile reads a JSON or YAML template and returns its flat form with
// the default ID generator.
func ParseFile(path string) (*Template, error) {
	return loader.ParseFile(path)
}

// ParseBytes parses template source. source names the input in errors and
// selects nothing else; JSON and YAML are both accepted.
func ParseBytes(data []byte, source string) (*Template, error) {
	return loader.NewParser(nil).ParseBytes(data, source)
}

// Engine ties the configured schema registry, ID strategy, fragment cache
// and compiler together. It is safe for concurrent use; every compile gets
// its own datastore.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *schema.Registry
	parser   *loader.Parser
	coercer  *coerce.Coercer
	store    cache.Store
	compiler *compiler.Compiler
	updates  *updates.Handler
}

// NewEngine builds an Engine from cfg. A nil cfg uses config.DefaultConfig.
func NewEngine(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrDiscard(logger)

	registry := schema.NewRegistry()
	if err := registry.LoadSchemas(cfg.Schemas.Dir); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	if err := registry.LoadPresets(cfg.Schemas.Presets); err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}
	if pending := registry.PendingTypes(); len(pending) > 0 {
		logger.Warn("presets registered for unknown block types", "types", pending)
	}

	gen, err := idgen.ForStrategy(cfg.GetIDStrategy(), cfg.IDs.Namespace)
	if err != nil {
		return nil, err
	}
	parser := loader.NewParser(flatten.New(gen))

	store, err := cache.Open(cfg.GetCacheBackend(), cfg.GetCacheDir(), cfg.Cache.DSN, cfg.GetCacheTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to open fragment cache: %w", err)
	}
	switch cfg.GetCacheBackend() {
	case "sqlite", "postgres":
		store = cache.NewResilient(store, cache.DefaultResilienceConfig(), logger)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		parser:   parser,
		coercer:  coerce.New(),
		store:    store,
		updates:  updates.NewHandler(parser, logger),
	}
	e.compiler = compiler.New(compiler.Options{
		Registry:      registry,
		Cache:         cache.NewManager(store, logger),
		BeforeContent: cfg.Layers.BeforeContent,
		AfterContent:  cfg.Layers.AfterContent,
		Preview:       cfg.Preview.Enabled,
		Logger:        logger,
	})

	logger.Debug("engine ready",
		"schemas", len(registry.All()),
		"cache", cfg.GetCacheBackend(),
		"ids", cfg.GetIDStrategy())
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Registry returns the schema registry. Register schemas before the first
// compile.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Parse reads a template with the configured ID strategy.
func (e *Engine) Parse(path string) (*Template, error) {
	return e.parser.ParseFile(path)
}

// NewStore returns an empty request-scoped datastore wired to the engine's
// schemas, parser and property coercion.
func (e *Engine) NewStore() *datastore.Store {
	return datastore.New(e.registry,
		datastore.WithParser(e.parser),
		datastore.WithTransformer(e.coercer.Transformer()),
		datastore.WithLogger(e.logger))
}

// Compile loads the template at path into a fresh datastore and compiles
// it against renderCtx.
func (e *Engine) Compile(ctx context.Context, path string, renderCtx map[string]any) (*Output, error) {
	store := e.NewStore()
	tpl, err := store.Load(path)
	if err != nil {
		return nil, err
	}
	return e.compiler.Compile(ctx, store, tpl, renderCtx)
}

// CompileTemplate compiles an already parsed template in store.
func (e *Engine) CompileTemplate(ctx context.Context, store *datastore.Store, tpl *Template, renderCtx map[string]any) (*Output, error) {
	return e.compiler.Compile(ctx, store, tpl, renderCtx)
}

// Update applies an editor save to the template at path. With regions,
// only changes inside those regions are applied.
func (e *Engine) Update(path string, req *UpdateRequest, regions ...string) (*UpdateResult, error) {
	return e.updates.Execute(path, req, regions...)
}

// Watch recompiles templates under the configured template directory as
// they change and reports each result to onCompile. The caller stops the
// returned watcher.
func (e *Engine) Watch(ctx context.Context, onCompile func(path string, out *Output, err error)) (*watch.Watcher, error) {
	dir := e.cfg.GetTemplatesDir()
	w, err := watch.New(dir, func(ev watch.Event) error {
		if ev.Removed {
			e.logger.Info("template removed", "path", ev.Path)
			return nil
		}
		path := filepath.Join(dir, ev.Path)
		out, err := e.Compile(ctx, path, nil)
		onCompile(path, out, err)
		return err
	}, watch.Options{
		Extensions: e.cfg.GetExtensions(),
		Interval:   e.cfg.GetWatchInterval(),
		Logger:     e.logger,
	})
	if err != nil {
		return nil, err
	}
	w.Start()
	return w, nil
}

// FlushCache drops every cached fragment.
func (e *Engine) FlushCache(ctx context.Context) error {
	return e.store.Flush(ctx)
}

// Close releases the fragment cache.
func (e *Engine) Close() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
