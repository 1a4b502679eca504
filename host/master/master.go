// Package master drives transactions over the two-wire link, one bit at a
// time. It owns the framing of the serial stream (direction bit, address
// phase, data phase) but not the physical layer; anything that can shift a
// bit can serve as the Link.
package master

import (
	"errors"
	"fmt"

	"serbus/core"
)

var (
	ErrAddrRange = errors.New("address does not fit the address space")
	ErrDataRange = errors.New("data does not fit the data width")
	ErrBitCount  = errors.New("bit count out of range")
	ErrNoWords   = errors.New("burst needs at least one word")
)

// Link is one bit-level connection to a bridge. Select asserts or releases
// the select line; Transfer shifts one bit out and returns the bit shifted
// in during the same serial clock.
type Link interface {
	Select(active bool)
	Transfer(mosi bool) (miso bool)
}

// Master frames register transactions onto a Link.
type Master struct {
	cfg  core.Config
	link Link
}

// NewMaster wraps a link with the geometry both ends must agree on.
func NewMaster(link Link, cfg core.Config) (*Master, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Master{cfg: cfg, link: link}, nil
}

// Config returns the geometry the master was built with.
func (m *Master) Config() core.Config { return m.cfg }

// Write stores one word at addr.
func (m *Master) Write(addr, data uint64) error {
	if err := m.checkAddr(addr); err != nil {
		return err
	}
	if err := m.checkData(data); err != nil {
		return err
	}
	m.link.Select(true)
	m.sendBits(m.header(addr, true), m.cfg.AddressWidth)
	m.sendBits(data, m.cfg.DataWidth)
	m.clockAckWindow()
	m.link.Select(false)
	return nil
}

// WriteBurst stores consecutive words starting at addr. With auto increment
// enabled on the far end the whole burst rides one select assertion; without
// it the burst degrades to one transaction per word, the master stepping the
// address itself.
func (m *Master) WriteBurst(addr uint64, words []uint64) error {
	if len(words) == 0 {
		return ErrNoWords
	}
	if err := m.checkAddr(addr); err != nil {
		return err
	}
	for i, w := range words {
		if err := m.checkData(w); err != nil {
			return fmt.Errorf("word %d: %w", i, err)
		}
	}

	if !m.cfg.AutoIncrement {
		space := uint64(1) << (m.cfg.AddressWidth - 1)
		for i, w := range words {
			a := (addr + uint64(i)) % space
			if err := m.Write(a, w); err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
		}
		return nil
	}

	m.link.Select(true)
	m.sendBits(m.header(addr, true), m.cfg.AddressWidth)
	for _, w := range words {
		m.sendBits(w, m.cfg.DataWidth)
	}
	m.clockAckWindow()
	m.link.Select(false)
	return nil
}

// clockAckWindow keeps the serial clock running for the two bit periods a
// write's acknowledgement is allowed to take. Releasing the select right
// after the final data bit would drop an in-flight cycle whose ack simply
// had not arrived yet. The extra bits begin a payload that is never
// completed, so the select release cancels them without a bus cycle.
func (m *Master) clockAckWindow() {
	m.link.Transfer(false)
	m.link.Transfer(false)
}

// Read fetches the word at addr.
func (m *Master) Read(addr uint64) (uint64, error) {
	return m.ReadBits(addr, m.cfg.DataWidth)
}

// ReadBits fetches only the top n bits of the word at addr, releasing the
// select line early. The result sits in the low n bits of the return value.
func (m *Master) ReadBits(addr uint64, n int) (uint64, error) {
	if err := m.checkAddr(addr); err != nil {
		return 0, err
	}
	if n < 1 || n > m.cfg.DataWidth {
		return 0, fmt.Errorf("%w: %d of %d", ErrBitCount, n, m.cfg.DataWidth)
	}

	m.link.Select(true)
	m.sendBits(m.header(addr, false), m.cfg.AddressWidth)
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if m.link.Transfer(false) {
			v |= 1
		}
	}
	m.link.Select(false)
	return v, nil
}

// header packs the direction flag above the address bits.
func (m *Master) header(addr uint64, write bool) uint64 {
	if write {
		return addr | 1<<(m.cfg.AddressWidth-1)
	}
	return addr
}

// sendBits shifts the low n bits of v onto the link, most significant first.
func (m *Master) sendBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		m.link.Transfer(v&(1<<i) != 0)
	}
}

func (m *Master) checkAddr(addr uint64) error {
	if addr >= 1<<(m.cfg.AddressWidth-1) {
		return fmt.Errorf("%w: %#x", ErrAddrRange, addr)
	}
	return nil
}

func (m *Master) checkData(data uint64) error {
	if m.cfg.DataWidth < 64 && data >= 1<<m.cfg.DataWidth {
		return fmt.Errorf("%w: %#x", ErrDataRange, data)
	}
	return nil
}
