// Package sim runs a bridge and its memory in lockstep against a modeled
// serial clock. The Simulator exposes the same bit-level interface a real
// link adapter would, so the host stack runs unchanged against it.
package sim

import (
	"serbus/core"
)

// Simulator drives a bridge tick by tick. It implements the host side's
// Link: Select wiggles the select line, Transfer shifts one serial clock.
type Simulator struct {
	cfg    Config
	bridge *core.Bridge
	mem    *core.SRAM

	in   core.BusIn
	cs   bool // deselected when true, matching the pin's idle level
	sck  bool
	mosi bool
}

// New builds a simulator. Zero fields in cfg take their defaults.
func New(cfg Config) (*Simulator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bridge, err := core.NewBridge(cfg.Bridge)
	if err != nil {
		return nil, err
	}
	mem := core.NewSRAM(cfg.Bridge)
	mem.Latency = cfg.AckLatency
	for addr, v := range cfg.image() {
		mem.Poke(addr, v)
	}
	return &Simulator{
		cfg:    cfg,
		bridge: bridge,
		mem:    mem,
		cs:     true,
	}, nil
}

// Bridge exposes the simulated bridge for inspection.
func (s *Simulator) Bridge() *core.Bridge { return s.bridge }

// Memory exposes the backing memory for preloading and inspection.
func (s *Simulator) Memory() *core.SRAM { return s.mem }

// Faults reports the bridge's deadline fault count.
func (s *Simulator) Faults() uint64 { return s.bridge.Faults() }

// step advances the world one local tick and returns the sampled miso level.
func (s *Simulator) step() bool {
	miso, out := s.bridge.Tick(core.Pins{CS: s.cs, SCK: s.sck, MOSI: s.mosi}, s.in)
	s.in = s.mem.Tick(out)
	return miso
}

// Select asserts or releases the select line, then lets the pins settle for
// one half-period.
func (s *Simulator) Select(active bool) {
	s.cs = !active
	s.sck = false
	for i := 0; i < s.cfg.ClockRatio; i++ {
		s.step()
	}
}

// Transfer shifts one bit through the link: the clock sits low for half a
// period with mosi driven, miso is sampled at the end of the low phase, then
// the clock goes high for the other half.
func (s *Simulator) Transfer(mosi bool) bool {
	s.mosi = mosi
	s.sck = false
	var miso bool
	for i := 0; i < s.cfg.ClockRatio; i++ {
		miso = s.step()
	}
	s.sck = true
	for i := 0; i < s.cfg.ClockRatio; i++ {
		s.step()
	}
	return miso
}
