// Package config loads slidewired's configuration from a TOML file with
// environment variable overrides, and supports live reload via a file
// watcher.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration wraps time.Duration for TOML text values like "5m".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Server holds listener settings.
type Server struct {
	Addr      string `toml:"addr"`
	RedisAddr string `toml:"redis_addr"`
}

// History holds history engine tunables.
type History struct {
	MaxEntries int `toml:"max_entries"`
}

// Collab holds session manager tunables.
type Collab struct {
	GraceWindow Duration `toml:"grace_window"`
	StaleAfter  Duration `toml:"stale_after"`
	SweepSpec   string   `toml:"sweep_spec"`
	ArchivePath string   `toml:"archive_path"`
}

// Logging holds log settings.
type Logging struct {
	Level string `toml:"level"`
}

// Config is the complete slidewired configuration.
type Config struct {
	Server  Server  `toml:"server"`
	History History `toml:"history"`
	Collab  Collab  `toml:"collab"`
	Logging Logging `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr: ":8080",
		},
		History: History{
			MaxEntries: 100,
		},
		Collab: Collab{
			GraceWindow: Duration(5 * time.Minute),
			StaleAfter:  Duration(time.Hour),
			SweepSpec:   "0 * * * *",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads configuration in layers: defaults, then the TOML file if
// path is non-empty, then environment overrides. A missing file at an
// explicit path is an error; an empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays SLIDEWIRE_* environment variables.
// Empty values are treated as unset.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("SLIDEWIRE_ADDR"); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_REDIS_ADDR"); ok && v != "" {
		cfg.Server.RedisAddr = v
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_MAX_HISTORY"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.History.MaxEntries = n
		}
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_GRACE_WINDOW"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collab.GraceWindow = Duration(d)
		}
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_STALE_AFTER"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collab.StaleAfter = Duration(d)
		}
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_SWEEP_SPEC"); ok && v != "" {
		cfg.Collab.SweepSpec = v
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_ARCHIVE_PATH"); ok && v != "" {
		cfg.Collab.ArchivePath = v
	}
	if v, ok := os.LookupEnv("SLIDEWIRE_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
}

// validate rejects configurations the server cannot run with.
func (c Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries must be positive, got %d", c.History.MaxEntries)
	}
	if c.Collab.GraceWindow <= 0 {
		return fmt.Errorf("collab.grace_window must be positive")
	}
	if c.Collab.StaleAfter <= 0 {
		return fmt.Errorf("collab.stale_after must be positive")
	}
	return nil
}

// LogLevel maps the configured level onto slog's scale.
// An unrecognized level falls back to info.
func (c Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
