// Package commands implements the blockpage CLI subcommands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/livetemplate/blockpage"
	"github.com/livetemplate/blockpage/internal/config"
	"github.com/livetemplate/blockpage/internal/loader"
	"github.com/livetemplate/blockpage/internal/logging"
)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// options holds the flags shared by every command.
type options struct {
	configPath string
	dir        string
	logLevel   string
	jsonOut    bool
	write      bool
	contextArg string
	regions    []string
	positional []string
}

// parseOptions parses the shared flags. Unknown flags are rejected.
func parseOptions(args []string) (options, error) {
	opts := options{dir: "."}
	value := func(i *int, name string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("flag %s needs a value", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var err error
		switch {
		case arg == "--config" || arg == "-c":
			opts.configPath, err = value(&i, arg)
		case strings.HasPrefix(arg, "--config="):
			opts.configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--dir" || arg == "-d":
			opts.dir, err = value(&i, arg)
		case strings.HasPrefix(arg, "--dir="):
			opts.dir = strings.TrimPrefix(arg, "--dir=")
		case arg == "--log-level":
			opts.logLevel, err = value(&i, arg)
		case strings.HasPrefix(arg, "--log-level="):
			opts.logLevel = strings.TrimPrefix(arg, "--log-level=")
		case arg == "--context":
			opts.contextArg, err = value(&i, arg)
		case strings.HasPrefix(arg, "--context="):
			opts.contextArg = strings.TrimPrefix(arg, "--context=")
		case arg == "--region" || arg == "-r":
			var r string
			r, err = value(&i, arg)
			opts.regions = append(opts.regions, r)
		case strings.HasPrefix(arg, "--region="):
			opts.regions = append(opts.regions, strings.Split(strings.TrimPrefix(arg, "--region="), ",")...)
		case arg == "--json":
			opts.jsonOut = true
		case arg == "--write" || arg == "-w":
			opts.write = true
		case strings.HasPrefix(arg, "-"):
			return opts, fmt.Errorf("unknown flag: %s", arg)
		default:
			opts.positional = append(opts.positional, arg)
		}
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// loadConfig loads --config, or blockpage.yaml from --dir.
func (o options) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
		if err == nil {
			cfg.Resolve(filepath.Dir(o.configPath))
		}
	} else {
		cfg, err = config.LoadFromDir(o.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.GetLogLevel(), cfg.GetLogFormat(), stderr)
}

// openEngine loads the config and builds an engine.
func (o options) openEngine() (*blockpage.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return blockpage.NewEngine(cfg, newLogger(cfg))
}

// readContext reads a JSON or YAML render context file.
func readContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	o, _, err := loader.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context: %w", err)
	}
	return o.Map(), nil
}

// templateArg returns the single template path argument.
func (o options) templateArg(usage string) (string, error) {
	if len(o.positional) == 0 {
		return "", fmt.Errorf("template path required\n\nUsage: %s", usage)
	}
	path := o.positional[0]
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("template does not exist: %s", path)
	}
	return path, nil
}

// PrintError writes err to stderr, using the multi-line template format
// for template errors.
func PrintError(err error) {
	var te *blockpage.TemplateError
	if errors.As(err, &te) {
		fmt.Fprint(stderr, te.Format())
		return
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
}
