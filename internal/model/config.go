package model

import (
	"errors"
	"fmt"
)

// Default network dimensions.
const (
	DefaultBlocks  = 6
	DefaultFilters = 128
)

var (
	// ErrInvalidConfig is returned by New for impossible dimensions.
	ErrInvalidConfig = errors.New("model: invalid config")
	// ErrConfigMismatch is returned when persisted weights were produced by
	// a network with different dimensions.
	ErrConfigMismatch = errors.New("model: config mismatch")
)

// Config fixes the network's dimensions. It cannot change after New.
type Config struct {
	Blocks  int    `toml:"blocks" json:"blocks"`
	Filters int    `toml:"filters" json:"filters"`
	Seed    uint64 `toml:"seed" json:"seed"`
}

// DefaultConfig returns the standard 6x128 network.
func DefaultConfig() Config {
	return Config{Blocks: DefaultBlocks, Filters: DefaultFilters}
}

// Validate reports whether the dimensions are constructible.
func (c Config) Validate() error {
	if c.Blocks < 0 {
		return fmt.Errorf("%w: blocks must be >= 0, got %d", ErrInvalidConfig, c.Blocks)
	}
	if c.Filters < 1 {
		return fmt.Errorf("%w: filters must be >= 1, got %d", ErrInvalidConfig, c.Filters)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%dx%d", c.Blocks, c.Filters)
}
