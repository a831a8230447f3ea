// Package config loads tether's TOML configuration from the XDG config
// directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"

	"github.com/chronologos/tether/internal/ipc"
)

// RelPath is the config file location relative to the XDG config dirs.
const RelPath = "tether/config.toml"

const (
	DefaultSession       = "default"
	DefaultLogLevel      = "info"
	DefaultStartTimeout  = 5 * time.Second
	DefaultFrameInterval = 16 * time.Millisecond
)

// Config holds user settings. Command-line flags override these.
type Config struct {
	Session       string   `toml:"session"`        // session attached to when none is named
	SocketDir     string   `toml:"socket_dir"`     // empty: $XDG_RUNTIME_DIR/tether
	LogLevel      string   `toml:"log_level"`      // debug, info, warn, error
	Escape        *bool    `toml:"escape"`         // ~. detach sequence (default: true)
	StartTimeout  Duration `toml:"start_timeout"`  // how long a client waits for a spawned server
	FrameInterval Duration `toml:"frame_interval"` // minimum time between frames
}

// Duration is a time.Duration written as a string ("5s", "16ms").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	escape := true
	return &Config{
		Session:       DefaultSession,
		LogLevel:      DefaultLogLevel,
		Escape:        &escape,
		StartTimeout:  Duration(DefaultStartTimeout),
		FrameInterval: Duration(DefaultFrameInterval),
	}
}

// Load reads the first config file found in the XDG config dirs. A missing
// file yields the defaults.
func Load() (*Config, error) {
	path, err := xdg.SearchConfigFile(RelPath)
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, filling unset fields with defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDefaults(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fillDefaults(def *Config) {
	if c.Session == "" {
		c.Session = def.Session
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Escape == nil {
		c.Escape = def.Escape
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = def.StartTimeout
	}
	if c.FrameInterval == 0 {
		c.FrameInterval = def.FrameInterval
	}
	// SocketDir stays empty; SocketDirOrDefault resolves it.
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := ipc.ValidateSession(c.Session); err != nil {
		return fmt.Errorf("config: session: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.StartTimeout < 0 {
		return fmt.Errorf("config: start_timeout must be positive, got %s", time.Duration(c.StartTimeout))
	}
	if c.FrameInterval < 0 {
		return fmt.Errorf("config: frame_interval must be positive, got %s", time.Duration(c.FrameInterval))
	}
	return nil
}

// SocketDirOrDefault returns the configured socket directory or the
// platform default.
func (c *Config) SocketDirOrDefault() string {
	if c.SocketDir != "" {
		return c.SocketDir
	}
	return ipc.DefaultDir()
}

// EscapeEnabled reports whether the ~. sequence is active.
func (c *Config) EscapeEnabled() bool {
	return c.Escape == nil || *c.Escape
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel maps a level name to slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Path returns where the config file is, or would be created.
func Path() (string, error) {
	if path, err := xdg.SearchConfigFile(RelPath); err == nil {
		return path, nil
	}
	return xdg.ConfigFile(RelPath)
}

// Marshal renders c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
