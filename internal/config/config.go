// Package config loads the server configuration.
//
// Settings come from three layers, later ones winning: built-in defaults,
// <data_dir>/config.toml, and BRP_MCP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
)

const (
	// ConfigFile is the filename looked up inside the data directory.
	ConfigFile = "config.toml"
	// HistoryFile is the SQLite database holding the watch history.
	HistoryFile = "history.db"
	// dataDirName is the default data directory under $HOME.
	dataDirName = ".bevy-brp-mcp"
)

// Config is the full server configuration.
type Config struct {
	// DataDir holds config.toml and the history database. Not read from the file.
	DataDir string `toml:"-"`

	// Host is where BRP apps are reached.
	Host string `toml:"host"`
	// DefaultPort is used when a tool call does not name a port.
	DefaultPort int `toml:"default_port"`
	// LogDir receives the watch log files. Defaults to the OS temp dir,
	// where the log tools look for them too.
	LogDir string `toml:"log_dir"`
	// MaxWatches caps concurrently active watches.
	MaxWatches int `toml:"max_watches"`
	// StopTimeout bounds how long a stop request waits for its task to exit.
	StopTimeout time.Duration `toml:"stop_timeout"`
	// RequestTimeout bounds plain BRP calls.
	RequestTimeout time.Duration `toml:"request_timeout"`
	// ConnectTimeout bounds dialing a BRP app, streams included.
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	// LogLevel is the server's own log level.
	LogLevel string `toml:"log_level"`
	// History enables the SQLite watch history.
	History bool `toml:"history"`
}

// DefaultDataDir returns ~/.bevy-brp-mcp, or BRP_MCP_DATA_DIR when set.
func DefaultDataDir() string {
	if dir := os.Getenv("BRP_MCP_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dataDirName)
}

// DefaultConfig returns the built-in defaults for dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		Host:           brp.DefaultHost,
		DefaultPort:    brp.DefaultPort,
		LogDir:         os.TempDir(),
		MaxWatches:     32,
		StopTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		LogLevel:       "info",
		History:        true,
	}
}

// Path returns the config file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, ConfigFile)
}

// HistoryPath returns where the watch history database lives.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, HistoryFile)
}

// Load reads config.toml from dataDir if present, applies environment
// overrides, and validates the result. A missing file is not an error.
func Load(dataDir string) (*Config, error) {
	cfg := DefaultConfig(dataDir)

	path := Path(dataDir)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if host := os.Getenv("BRP_MCP_HOST"); host != "" {
		c.Host = host
	}
	if v := os.Getenv("BRP_MCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BRP_MCP_PORT: %q is not a number", v)
		}
		c.DefaultPort = port
	}
	if dir := os.Getenv("BRP_MCP_LOG_DIR"); dir != "" {
		c.LogDir = dir
	}
	if v := os.Getenv("BRP_MCP_MAX_WATCHES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BRP_MCP_MAX_WATCHES: %q is not a number", v)
		}
		c.MaxWatches = n
	}
	if lvl := os.Getenv("BRP_MCP_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	return nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if err := ValidatePort(c.DefaultPort); err != nil {
		return fmt.Errorf("default_port: %w", err)
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir must not be empty")
	}
	if c.MaxWatches < 1 {
		return fmt.Errorf("max_watches must be at least 1, got %d", c.MaxWatches)
	}
	for name, d := range map[string]time.Duration{
		"stop_timeout":    c.StopTimeout,
		"request_timeout": c.RequestTimeout,
		"connect_timeout": c.ConnectTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// ValidatePort returns an error unless port is a usable TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// Save writes the file-backed settings to dataDir/config.toml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	path := Path(c.DataDir)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
