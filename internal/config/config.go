package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

// Config holds all application configuration.
type Config struct {
	Adapter  string        `yaml:"adapter"`
	Device   string        `yaml:"device"`
	Binder   string        `yaml:"binder"` // "service" or "proxy"
	Pairing  PairingConfig `yaml:"pairing"`
	Profile  ProfileConfig `yaml:"profile"`
	Hotkey   HotkeyConfig  `yaml:"hotkey"`
	Chime    ChimeConfig   `yaml:"chime"`
	LogLevel string        `yaml:"log_level"`
}

// PairingConfig bounds the wait for a bond to appear.
type PairingConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// ProfileConfig bounds the wait for the A2DP profile service.
type ProfileConfig struct {
	BindTimeout  time.Duration `yaml:"bind_timeout"`
	BindInterval time.Duration `yaml:"bind_interval"`
}

// HotkeyConfig holds the reconnect hotkey settings.
type HotkeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
}

// ChimeConfig holds the connect chime settings. An empty path plays the
// built-in tone.
type ChimeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "a2dp-autoconnect")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	pair := bt.DefaultPairOptions()
	sess := bt.DefaultOptions()

	return &Config{
		Adapter: "hci0",
		Binder:  "service",
		Pairing: PairingConfig{
			Timeout:  pair.Timeout,
			Interval: pair.Interval,
		},
		Profile: ProfileConfig{
			BindTimeout:  sess.BindTimeout,
			BindInterval: sess.BindInterval,
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "b"},
		},
		Chime: ChimeConfig{
			Enabled: true,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in chime.path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Chime.Path = expandTilde(cfg.Chime.Path)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}

	if c.Device != "" {
		if _, err := bt.NormalizeAddress(c.Device); err != nil {
			return fmt.Errorf("device: %w", err)
		}
	}

	switch c.Binder {
	case "service", "proxy":
	default:
		return fmt.Errorf("binder must be \"service\" or \"proxy\", got %q", c.Binder)
	}

	if err := checkWait("pairing", c.Pairing.Timeout, c.Pairing.Interval); err != nil {
		return err
	}
	if err := checkWait("profile.bind", c.Profile.BindTimeout, c.Profile.BindInterval); err != nil {
		return err
	}

	if c.Hotkey.Enabled && len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty when hotkey is enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

func checkWait(name string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%s timeout must be > 0", name)
	}
	if interval <= 0 {
		return fmt.Errorf("%s interval must be > 0", name)
	}
	if interval > timeout {
		return fmt.Errorf("%s interval %v exceeds timeout %v", name, interval, timeout)
	}
	return nil
}

// PairOptions returns the pairing wait as bt options.
func (c *Config) PairOptions() bt.PairOptions {
	return bt.PairOptions{Timeout: c.Pairing.Timeout, Interval: c.Pairing.Interval}
}

// SessionOptions returns the session options.
func (c *Config) SessionOptions() bt.Options {
	return bt.Options{
		BindTimeout:  c.Profile.BindTimeout,
		BindInterval: c.Profile.BindInterval,
		Pair:         c.PairOptions(),
	}
}

// ParseLogLevel maps a log_level value to a slog.Level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
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

const defaultConfigTemplate = `# a2dp-autoconnect configuration

# Local adapter to use.
adapter: hci0

# Address of the device to connect when none is given on the command line.
device: ""

# How to wait for the A2DP profile service: "service" waits for bluetoothd
# on the bus, "proxy" waits for the adapter's media interface.
binder: service

pairing:
  timeout: 7s
  interval: 200ms

profile:
  bind_timeout: 5s
  bind_interval: 200ms

# Global hotkey that re-runs the connection.
hotkey:
  enabled: false
  keys: ["ctrl", "shift", "b"]

# Sound played on a successful connection. Leave path empty for the
# built-in tone.
chime:
  enabled: true
  path: ""

log_level: info
`

// WriteDefault writes the default config file if none exists and returns
// its path. It returns ("", nil) when a config file is already present.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
