// Package config loads done's configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/sadopc/done/internal/store"
)

const (
	envPrefix         = "DONE_"
	maxConfigFileSize = 1024 * 1024

	RemoteNone = "none"
	RemoteNATS = "nats"
)

type Config struct {
	// DataDir holds the per-user databases. Empty means in-memory.
	DataDir string       `koanf:"data_dir"`
	User    string       `koanf:"user"`
	Log     LogConfig    `koanf:"log"`
	Remote  RemoteConfig `koanf:"remote"`
	Metrics Metrics      `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File receives the log; empty means stderr.
	File string `koanf:"file"`
}

type RemoteConfig struct {
	Kind string     `koanf:"kind"`
	NATS NATSConfig `koanf:"nats"`
}

type NATSConfig struct {
	URL          string `koanf:"url"`
	BucketPrefix string `koanf:"bucket_prefix"`
}

type Metrics struct {
	Addr string `koanf:"addr"`
}

// DefaultPath is ~/.config/done/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "done", "config.yaml"), nil
}

// Load reads the YAML file at path, if it exists, then applies DONE_
// environment overrides. A double underscore nests: DONE_REMOTE__NATS__URL
// sets remote.nats.url. An empty path uses DefaultPath.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// readFile returns nil content when the file does not exist.
func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// envKey maps DONE_LOG__LEVEL to log.level and DONE_DATA_DIR to data_dir.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func applyDefaults(cfg *Config) error {
	if cfg.DataDir == "" {
		dir, err := store.DefaultDataDir()
		if err != nil {
			return fmt.Errorf("default data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Remote.Kind == "" {
		cfg.Remote.Kind = RemoteNone
	}
	if cfg.Remote.NATS.URL == "" {
		cfg.Remote.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Remote.NATS.BucketPrefix == "" {
		cfg.Remote.NATS.BucketPrefix = "done"
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	switch c.Remote.Kind {
	case RemoteNone:
	case RemoteNATS:
		if c.Remote.NATS.URL == "" {
			return errors.New("remote.nats.url is required")
		}
	default:
		return fmt.Errorf("remote.kind must be none or nats, got %q", c.Remote.Kind)
	}
	return nil
}
