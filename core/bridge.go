// Package core implements the serial-to-bus protocol bridge: a clocked
// two-wire serial bit stream on one side, single-transaction register access
// on the other. The whole bridge is one synchronous state machine advanced by
// explicit Tick calls; there is no internal goroutine and no shared state
// between instances.
package core

import "fmt"

// Pins is the serial-side pin sample for one local clock tick.
//
// CS follows the usual select-line convention: high means the link is idle
// and the bridge holds its bit counter in reset; low means a transfer is in
// progress. SCK is the raw serial clock level as sampled this tick; the
// bridge synchronizes it internally before using it for edge detection.
type Pins struct {
	CS   bool // high = deselected/idle
	SCK  bool // raw serial clock
	MOSI bool // serial data from the master
}

// Bridge converts the serial bit stream into bus transactions.
//
// Protocol: while selected, the master clocks in AddressWidth bits MSB-first.
// The first bit is the direction flag (1 = write, 0 = read). A read issues
// its bus cycle the moment the address completes; the result is returned on
// the serial output starting with its most significant bit in the very next
// bit period. A write shifts in DataWidth more bits and issues the cycle on
// the final data edge. With auto-increment enabled the master may keep
// streaming DataWidth-sized payloads; each acknowledged write advances the
// address by one.
//
// There is no flow control on the wire, so the responder must acknowledge a
// read before the serial edge following the trigger edge, and a write before
// the second following edge. A missed deadline abandons the transaction and
// bumps the fault counter; nothing else can be done within the protocol.
type Bridge struct {
	cfg Config

	addrMask uint64 // AddressWidth bits
	dataMask uint64 // DataWidth bits
	dirMask  uint64 // direction flag bit within the address accumulator
	misoMask uint64 // MSB of a DataWidth-wide value

	// Edge synchronizer: sck1 is the raw clock delayed by one tick, sck2 by
	// two. Edges are detected on the delayed values only, so a rising edge
	// takes effect exactly one tick after the raw line went high.
	sck1, sck2 bool

	addr  uint64 // address accumulator, top bit = direction flag
	data  uint64 // input data accumulator
	osr   uint64 // output data shift register
	count int    // serial bits since chip-select was last released

	cyc, stb, we     bool
	busAddr, busData uint64

	pendingInc bool // acknowledged write waiting for its auto-increment rewind
	lateEdges  int  // serial edges seen with the strobe still unacknowledged

	faults uint64
	debugf DebugWriter
}

// NewBridge builds a bridge with the given geometry. All registers start at
// zero, matching power-on state.
func NewBridge(cfg Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bridge{
		cfg:      cfg,
		addrMask: widthMask(cfg.AddressWidth),
		dataMask: widthMask(cfg.DataWidth),
		dirMask:  uint64(1) << (cfg.AddressWidth - 1),
		misoMask: uint64(1) << (cfg.DataWidth - 1),
	}, nil
}

// Config returns the geometry the bridge was built with.
func (b *Bridge) Config() Config { return b.cfg }

// Faults returns the number of missed acknowledgement deadlines observed
// since power-on or the last Reset.
func (b *Bridge) Faults() uint64 { return b.faults }

// SetDebugWriter installs a sink for deadline-miss diagnostics. The default
// is to stay silent.
func (b *Bridge) SetDebugWriter(w DebugWriter) { b.debugf = w }

// Reset restores power-on state: all registers, flags and counters cleared.
func (b *Bridge) Reset() {
	*b = Bridge{
		cfg:      b.cfg,
		addrMask: b.addrMask,
		dataMask: b.dataMask,
		dirMask:  b.dirMask,
		misoMask: b.misoMask,
		debugf:   b.debugf,
	}
}

// Tick advances the bridge by one local clock tick. p carries the serial pin
// levels sampled this tick; in carries the bus signals driven by the
// responder. It returns the serial output line level and the bus request
// signals.
//
// All sequential updates of the tick happen atomically inside the call. The
// returned output level is computed from the state as it was when the tick
// began, which is what makes the first read-result bit available in the bit
// period immediately after the address completes: while the bit counter sits
// at AddressWidth the live bus read data is presented directly, bypassing
// the output shift register.
func (b *Bridge) Tick(p Pins, in BusIn) (miso bool, out BusOut) {
	// Combinational output select, pre-update state.
	if b.count == b.cfg.AddressWidth {
		miso = in.Data&b.misoMask != 0
	} else {
		miso = b.osr&b.misoMask != 0
	}

	// Transaction completion. Cyc and Stb drop in the same step the ack is
	// observed; an acknowledged write with auto-increment arms the rewind,
	// which lands on the next synchronized edge (see edge).
	if b.stb && in.Ack {
		b.cyc, b.stb = false, false
		b.lateEdges = 0
		if b.we && b.cfg.AutoIncrement {
			b.pendingInc = true
		}
	}

	// Output register load: first data-bit period of a read, ack active.
	// The MSB is being presented live, so the register takes the remaining
	// bits pre-shifted by one.
	if b.count == b.cfg.AddressWidth && in.Ack {
		b.osr = (in.Data & (b.dataMask >> 1)) << 1
	}

	rising := b.sck1 && !b.sck2
	b.sck2 = b.sck1
	b.sck1 = p.SCK

	if p.CS {
		// Link idle: bit counter held in reset, any pending request dropped.
		// Accumulator contents are deliberately left alone; they are fully
		// overwritten during the next address/data phase.
		b.count = 0
		b.cyc, b.stb, b.we = false, false, false
		b.pendingInc = false
		b.lateEdges = 0
	} else if rising {
		b.edge(p.MOSI)
	}

	out = BusOut{Cyc: b.cyc, Stb: b.stb, We: b.we, Addr: b.busAddr, Data: b.busData}
	return miso, out
}

// edge handles one synchronized serial-clock rising edge while selected.
func (b *Bridge) edge(mosi bool) {
	aw, dw := b.cfg.AddressWidth, b.cfg.DataWidth

	// Missed-ack deadline. A read must have completed before this edge; a
	// write gets the bit period after the next edge for its ack to land.
	if b.stb {
		b.lateEdges++
		limit := 1
		if b.we {
			limit = 2
		}
		if b.lateEdges >= limit {
			b.faults++
			b.cyc, b.stb = false, false
			b.lateEdges = 0
			b.debug(fmt.Sprintf("serbus: ack deadline missed (we=%v addr=%#x faults=%d)",
				b.we, b.busAddr, b.faults))
		}
	}

	// Bit shift engine. c is the pre-increment bit count: the edge carrying
	// bit number c+1 of the sequence.
	c := b.count
	if c < aw+dw {
		b.count++
	}
	var bit uint64
	if mosi {
		bit = 1
	}
	if c >= aw {
		b.data = (b.data<<1 | bit) & b.dataMask
	} else {
		b.addr = (b.addr<<1 | bit) & b.addrMask
	}

	// Output shift engine, sequential half: past the first data-bit period
	// the response marches out one bit per serial clock, zeros behind it.
	if c > aw {
		b.osr = (b.osr << 1) & b.dataMask
	}

	// Transaction triggers, evaluated on the freshly shifted accumulators.
	// The direction flag is only meaningful at these two bit counts.
	switch {
	case c == aw-1 && b.addr&b.dirMask == 0:
		b.request(false, 0)
	case c == aw+dw-1 && b.addr&b.dirMask != 0:
		b.request(true, b.data)
	}

	// Auto-increment rewind. The ack arrived somewhere in the previous bit
	// period, so the data bit this edge just shifted in is the first bit of
	// the next payload: the counter rewinds to AddressWidth+1, not
	// AddressWidth. The address field wraps modulo its own width; the
	// direction flag is preserved so a burst can cross the top of the
	// address space.
	if b.pendingInc {
		b.pendingInc = false
		low := (b.addr + 1) & (b.addrMask >> 1)
		b.addr = b.addr&b.dirMask | low
		b.count = aw + 1
	}
}

// request asserts the bus-side cycle for a new transaction.
func (b *Bridge) request(we bool, wdata uint64) {
	b.cyc, b.stb, b.we = true, true, we
	b.busAddr = b.addr & (b.addrMask >> 1)
	b.busData = wdata
	b.lateEdges = 0
}

func (b *Bridge) debug(msg string) {
	if b.debugf != nil {
		b.debugf(msg)
	}
}
