// Package config loads and persists the tool configuration
// stored under ~/.sapo.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

const defaultAPIURL = "https://api.sapo.dev"

// Config holds all user-tunable settings
type Config struct {
	DeviceID string `toml:"device_id"`
	APIKey   string `toml:"api_key"`
	APIURL   string `toml:"api_url"`

	// Decision thresholds (score >= BlockAt blocks, >= WarnAt warns)
	BlockAt int `toml:"block_at"`
	WarnAt  int `toml:"warn_at"`

	// ConfirmWarn requires an interactive y/N confirmation before
	// forwarding a Warn-level install. Only honored on a TTY.
	ConfirmWarn bool `toml:"confirm_warn"`

	// FailOpenOnInterrupt forwards the command when a scan is
	// cancelled mid-flight. Default is to abort instead.
	FailOpenOnInterrupt bool `toml:"fail_open_on_interrupt"`

	CacheTTLHours        int `toml:"cache_ttl_hours"`
	LookupTimeoutSeconds int `toml:"lookup_timeout_seconds"`
	MaxResolveDepth      int `toml:"max_resolve_depth"`
	ScanWorkers          int `toml:"scan_workers"`
}

// Dir returns the sapo config directory (~/.sapo)
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sapo")
}

// Path returns the config file path (~/.sapo/config.toml)
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// BinDir returns the shim directory (~/.sapo/bin)
func BinDir() string {
	return filepath.Join(Dir(), "bin")
}

// DefaultDBPath returns the default state store path
func DefaultDBPath() string {
	return filepath.Join(Dir(), "sapo.db")
}

// DefaultEventLogPath returns the default decision log path
func DefaultEventLogPath() string {
	return filepath.Join(Dir(), "events.log")
}

// Default returns a config populated with defaults and a fresh device id
func Default() *Config {
	return &Config{
		DeviceID:             generateDeviceID(),
		APIURL:               defaultAPIURL,
		BlockAt:              80,
		WarnAt:               30,
		CacheTTLHours:        24,
		LookupTimeoutSeconds: 10,
		MaxResolveDepth:      5,
		ScanWorkers:          4,
	}
}

// Load reads the config file, creating it with defaults on first run
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config from an explicit path
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if saveErr := cfg.SaveTo(path); saveErr != nil {
			return nil, fmt.Errorf("failed to write initial config: %w", saveErr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = generateDeviceID()
		cfg.SaveTo(path) // best effort, device id is regenerated next run otherwise
	}
	return cfg, nil
}

// Save writes the config back to the default path
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config atomically: a partially written config must
// never be visible to a concurrent wrap invocation.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(*c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Thresholds returns the configured decision thresholds
func (c *Config) Thresholds() risk.Thresholds {
	th := risk.DefaultThresholds()
	if c.BlockAt > 0 {
		th.Block = c.BlockAt
	}
	if c.WarnAt > 0 {
		th.Warn = c.WarnAt
	}
	return th
}

// generateDeviceID returns a per-install identifier like "linux_<uuid>"
func generateDeviceID() string {
	prefix := runtime.GOOS
	switch prefix {
	case "darwin":
		prefix = "mac"
	case "windows":
		prefix = "win"
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}
