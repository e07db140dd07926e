// Package config provides configuration for the nodegraph hosts.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Durable store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendFS     = "fs"
)

// DefaultApp is launched when no application is requested or the requested
// one is not in the graph.
const DefaultApp = "preload://launcher"

// Config holds host configuration.
type Config struct {
	Store  Store  `toml:"store"`
	Notify Notify `toml:"notify"`
	Log    Log    `toml:"log"`
	// DefaultApp is the fallback application id.
	DefaultApp string `toml:"default_app"`
}

// Store selects the durable store.
type Store struct {
	// Backend is one of memory, sqlite, fs.
	Backend string `toml:"backend"`
	// DSN is the SQLite file; empty means in-memory.
	DSN string `toml:"dsn"`
	// Dir is the root of the fs backend.
	Dir string `toml:"dir"`
}

// Notify configures the cross-process change channel.
type Notify struct {
	// Dir is the shared notification directory; empty disables
	// cross-process sync.
	Dir string `toml:"dir"`
}

// Log configures logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level"`
	// Format of the terminal handler: text or json.
	Format string `toml:"format"`
	// File, if set, also receives JSON records.
	File string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:      Store{Backend: BackendSQLite, DSN: "nodegraph.db", Dir: "nodegraph-data"},
		Log:        Log{Level: "info", Format: "text"},
		DefaultApp: DefaultApp,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv creates a Config from environment variables over the defaults.
func FromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides fields from NODEGRAPH_* variables.
func (c *Config) ApplyEnv() {
	c.Store.Backend = getEnv("NODEGRAPH_STORE", c.Store.Backend)
	c.Store.DSN = getEnv("NODEGRAPH_DSN", c.Store.DSN)
	c.Store.Dir = getEnv("NODEGRAPH_DATA", c.Store.Dir)
	c.Notify.Dir = getEnv("NODEGRAPH_NOTIFY_DIR", c.Notify.Dir)
	c.Log.Level = getEnv("NODEGRAPH_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("NODEGRAPH_LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("NODEGRAPH_LOG_FILE", c.Log.File)
	c.DefaultApp = getEnv("NODEGRAPH_DEFAULT_APP", c.DefaultApp)
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendFS:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.DefaultApp == "" {
		return errors.New("default_app must not be empty")
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
