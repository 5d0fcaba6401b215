// Package config loads and saves the chessnet TOML configuration.
//
// A missing file yields the defaults. Unknown keys are rejected so typos
// do not silently fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/device"
	"github.com/hailam/chessnet/internal/model"
)

// Config is the whole configuration file.
type Config struct {
	Model   model.Config  `toml:"model"`
	Device  DeviceConfig  `toml:"device"`
	Storage StorageConfig `toml:"storage"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// DeviceConfig selects the compute target.
type DeviceConfig struct {
	// Prefer is "auto" (or empty), "cpu", "cuda" or "metal" ("mps"
	// accepted). Auto picks the most capable available device.
	Prefer string `toml:"prefer"`
}

// StorageConfig locates the checkpoint database.
type StorageConfig struct {
	Dir        string `toml:"dir"`
	Checkpoint string `toml:"checkpoint"`
}

// ServerConfig holds the HTTP evaluation service settings.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	MaxBatch int    `toml:"max_batch"`
	TopMoves int    `toml:"top_moves"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Model:   model.DefaultConfig(),
		Device:  DeviceConfig{Prefer: "auto"},
		Storage: StorageConfig{Checkpoint: "default"},
		Server:  ServerConfig{Addr: ":8080", MaxBatch: 64, TopMoves: 5},
		Log:     LogConfig{Level: "info", Pretty: true},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path, replacing any existing file.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if _, err := device.Resolve(c.Device.Prefer); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if c.Server.MaxBatch < 1 {
		return fmt.Errorf("server: max_batch must be >= 1, got %d", c.Server.MaxBatch)
	}
	if c.Server.TopMoves < 0 {
		return fmt.Errorf("server: top_moves must be >= 0, got %d", c.Server.TopMoves)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// ResolveDevice returns the compute target for the configured preference
// among the devices this build provides.
func (c *Config) ResolveDevice() device.Device {
	dev, _ := device.Resolve(c.Device.Prefer, device.Available()...)
	return dev
}
