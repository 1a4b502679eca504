package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"serbus/core"
)

// Config describes a simulated probe: the bridge geometry, how many local
// ticks make up one serial clock half-period, how slowly the memory answers,
// and an optional preloaded memory image.
type Config struct {
	Bridge core.Config `json:"bridge"`

	// ClockRatio is local ticks per serial half-period. 2 is the fastest
	// clock the edge synchronizer can follow.
	ClockRatio int `json:"clock_ratio"`

	// AckLatency is the memory's ticks from strobe to ack.
	AckLatency int `json:"ack_latency"`

	// Image maps addresses (decimal or 0x-prefixed strings) to initial
	// memory contents.
	Image map[string]uint64 `json:"image,omitempty"`
}

// DefaultConfig returns a simulator with the default bridge geometry and a
// comfortably slow serial clock.
func DefaultConfig() Config {
	return Config{
		Bridge:     core.DefaultConfig(),
		ClockRatio: 4,
	}
}

// LoadConfig reads a JSON config file, filling in defaults for absent
// fields.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load simulator config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse simulator config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bridge == (core.Config{}) {
		c.Bridge = core.DefaultConfig()
	}
	if c.ClockRatio == 0 {
		c.ClockRatio = 4
	}
}

// Validate checks the whole config, including that every image entry fits
// the configured geometry.
func (c *Config) Validate() error {
	if err := c.Bridge.Validate(); err != nil {
		return err
	}
	if c.ClockRatio < 2 {
		return fmt.Errorf("clock_ratio %d too fast for the edge synchronizer", c.ClockRatio)
	}
	if c.AckLatency < 0 {
		return fmt.Errorf("ack_latency %d is negative", c.AckLatency)
	}
	for k, v := range c.Image {
		addr, err := strconv.ParseUint(k, 0, 64)
		if err != nil {
			return fmt.Errorf("image key %q: %w", k, err)
		}
		if addr >= 1<<(c.Bridge.AddressWidth-1) {
			return fmt.Errorf("image address %s outside a %d bit address space", k, c.Bridge.AddressWidth-1)
		}
		if c.Bridge.DataWidth < 64 && v >= 1<<c.Bridge.DataWidth {
			return fmt.Errorf("image value %#x at %s wider than %d bits", v, k, c.Bridge.DataWidth)
		}
	}
	return nil
}

// image decodes the preload map into binary addresses. Validate has already
// checked the keys.
func (c *Config) image() map[uint64]uint64 {
	out := make(map[uint64]uint64, len(c.Image))
	for k, v := range c.Image {
		addr, _ := strconv.ParseUint(k, 0, 64)
		out[addr] = v
	}
	return out
}
