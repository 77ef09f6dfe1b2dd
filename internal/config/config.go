package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project config file looked up by LoadFromDir.
const FileName = "blockpage.yaml"

// Config represents the blockpage project configuration
type Config struct {
	Templates   TemplatesConfig `yaml:"templates"`
	Schemas     SchemasConfig   `yaml:"schemas"`
	Cache       CacheConfig     `yaml:"cache"`
	IDs         IDsConfig       `yaml:"ids"`
	Preview     PreviewConfig   `yaml:"preview"`
	Layers      LayersConfig    `yaml:"layers"`
	Breakpoints []string        `yaml:"breakpoints,omitempty"`
	Log         LogConfig       `yaml:"log"`
	Watch       WatchConfig     `yaml:"watch"`
}

// TemplatesConfig says where template sources live
type TemplatesConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions,omitempty"` // default: .json, .yaml, .yml
}

// SchemasConfig points at YAML schema and preset definitions
type SchemasConfig struct {
	Dir     string `yaml:"dir,omitempty"`     // e.g. "schemas"
	Presets string `yaml:"presets,omitempty"` // e.g. "presets"
}

// CacheConfig configures the compiled-fragment store
type CacheConfig struct {
	Backend string `yaml:"backend"`       // "file", "memory", "sqlite", "postgres"
	Dir     string `yaml:"dir"`           // For file: fragment directory; for sqlite: base of a relative dsn
	DSN     string `yaml:"dsn,omitempty"` // For sqlite: database path; for postgres: connection string
	TTL     string `yaml:"ttl,omitempty"` // For memory: entry lifetime (e.g., "10m"). Default: never expire
}

// IDsConfig selects how nested child IDs are generated
type IDsConfig struct {
	Strategy  string `yaml:"strategy"`            // "hash" or "uuid5"
	Namespace string `yaml:"namespace,omitempty"` // For uuid5: namespace UUID
}

// PreviewConfig toggles live-editor preview collection
type PreviewConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LayersConfig assigns regions to the before- and after-content layers.
// Every other region is content.
type LayersConfig struct {
	BeforeContent []string `yaml:"before_content,omitempty"`
	AfterContent  []string `yaml:"after_content,omitempty"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// WatchConfig configures the template watcher
type WatchConfig struct {
	Interval string `yaml:"interval,omitempty"` // Minimum time between recompiles (e.g., "250ms")
}

// GetTemplatesDir returns the template directory (default: ".")
func (c *Config) GetTemplatesDir() string {
	if c.Templates.Dir == "" {
		return "."
	}
	return c.Templates.Dir
}

// GetExtensions returns the template extensions (default: .json, .yaml, .yml)
func (c *Config) GetExtensions() []string {
	if len(c.Templates.Extensions) == 0 {
		return []string{".json", ".yaml", ".yml"}
	}
	return c.Templates.Extensions
}

// GetCacheBackend returns the cache backend (default: "file")
func (c *Config) GetCacheBackend() string {
	if c.Cache.Backend == "" {
		return "file"
	}
	return c.Cache.Backend
}

// GetCacheDir returns the cache directory (default: ".blockpage/cache")
func (c *Config) GetCacheDir() string {
	if c.Cache.Dir == "" {
		return filepath.Join(".blockpage", "cache")
	}
	return c.Cache.Dir
}

// GetCacheTTL returns the memory cache TTL (0 if unset or invalid)
func (c *Config) GetCacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0
	}
	return d
}

// GetIDStrategy returns the child-ID strategy (default: "hash")
func (c *Config) GetIDStrategy() string {
	if c.IDs.Strategy == "" {
		return "hash"
	}
	return c.IDs.Strategy
}

// GetLogLevel returns the log level (default: "info")
func (c *Config) GetLogLevel() string {
	if c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

// GetLogFormat returns the log format (default: "text")
func (c *Config) GetLogFormat() string {
	if c.Log.Format == "" {
		return "text"
	}
	return c.Log.Format
}

// GetWatchInterval returns the minimum interval between recompiles (default: 250ms)
func (c *Config) GetWatchInterval() time.Duration {
	if c.Watch.Interval == "" {
		return 250 * time.Millisecond
	}
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.GetCacheBackend() {
	case "file", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid cache.backend %q (valid: file, memory, sqlite, postgres)", c.Cache.Backend)
	}
	switch c.GetIDStrategy() {
	case "hash", "uuid5":
	default:
		return fmt.Errorf("invalid ids.strategy %q (valid: hash, uuid5)", c.IDs.Strategy)
	}
	switch c.GetLogFormat() {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (valid: text, json)", c.Log.Format)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Templates: TemplatesConfig{
			Dir: "templates",
		},
		Schemas: SchemasConfig{
			Dir:     "schemas",
			Presets: "presets",
		},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     filepath.Join(".blockpage", "cache"),
		},
		IDs: IDsConfig{
			Strategy: "hash",
		},
		Preview: PreviewConfig{
			Enabled: true,
		},
		Layers: LayersConfig{
			BeforeContent: []string{"header"},
			AfterContent:  []string{"footer"},
		},
		Breakpoints: []string{"sm", "md", "lg", "xl"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir loads blockpage.yaml from dir. Relative directories in the
// file are resolved against dir.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	config, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	config.Resolve(dir)
	return config, nil
}

// Resolve makes the relative directories in c relative to dir.
func (c *Config) Resolve(dir string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Templates.Dir = rel(c.Templates.Dir)
	c.Schemas.Dir = rel(c.Schemas.Dir)
	c.Schemas.Presets = rel(c.Schemas.Presets)
	c.Cache.Dir = rel(c.Cache.Dir)
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
