package core

import (
	"errors"
	"fmt"
)

const (
	// WidthMin and WidthMax bound both the address and data register widths.
	// The top address bit is the read/write direction flag, so the usable
	// address space is AddressWidth-1 bits.
	WidthMin = 8
	WidthMax = 64
)

var ErrBadWidth = errors.New("register width out of range")

// Config fixes the geometry of one bridge instance. It is immutable for the
// lifetime of the bridge: the widths determine where the address phase ends
// and the data phase begins, and AutoIncrement selects whether acknowledged
// writes advance the address for back-to-back payloads.
type Config struct {
	AddressWidth  int  `json:"address_width"`  // bits, incl. direction flag
	DataWidth     int  `json:"data_width"`     // bits
	AutoIncrement bool `json:"auto_increment"` // chain writes to ascending addresses
}

// DefaultConfig returns the geometry used when none is specified: 16-bit
// address field (15 usable address bits), 32-bit data, auto-increment on.
func DefaultConfig() Config {
	return Config{
		AddressWidth:  16,
		DataWidth:     32,
		AutoIncrement: true,
	}
}

// Validate checks that both widths fall inside [WidthMin, WidthMax].
func (c Config) Validate() error {
	if c.AddressWidth < WidthMin || c.AddressWidth > WidthMax {
		return fmt.Errorf("%w: address_width=%d (want %d..%d)",
			ErrBadWidth, c.AddressWidth, WidthMin, WidthMax)
	}
	if c.DataWidth < WidthMin || c.DataWidth > WidthMax {
		return fmt.Errorf("%w: data_width=%d (want %d..%d)",
			ErrBadWidth, c.DataWidth, WidthMin, WidthMax)
	}
	return nil
}

// TotalBits returns the length of a full address+data sequence.
func (c Config) TotalBits() int {
	return c.AddressWidth + c.DataWidth
}

// AddrSpaceBits returns the width of the bus address field (direction bit
// stripped).
func (c Config) AddrSpaceBits() int {
	return c.AddressWidth - 1
}

// widthMask returns a mask of the low w bits, valid for w in [1,64].
func widthMask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}
