package core

// SRAM is a memory-backed bus responder. It acknowledges a request Latency
// ticks after first seeing the strobe; with Latency 0 the ack is produced on
// the same tick the strobe is observed. The backing store is sparse, so wide
// address fields cost nothing until written.
//
// The read value stays driven after the ack pulse until the next request,
// matching a synchronous RAM whose output register holds its last value.
type SRAM struct {
	mem      map[uint64]uint64
	dataMask uint64

	// Latency is the number of ticks between strobe assertion and ack.
	Latency int

	wait    int
	pending bool
	hold    uint64 // read data held after ack

	// Cycle counters, one increment per acknowledged transaction.
	ReadCycles  uint64
	WriteCycles uint64
}

// NewSRAM builds a responder for bridges of the given geometry.
func NewSRAM(cfg Config) *SRAM {
	return &SRAM{
		mem:      make(map[uint64]uint64),
		dataMask: widthMask(cfg.DataWidth),
	}
}

// Poke stores a value directly, bypassing the bus. Used for preloading.
func (s *SRAM) Poke(addr, v uint64) { s.mem[addr] = v & s.dataMask }

// Peek reads a value directly, bypassing the bus.
func (s *SRAM) Peek(addr uint64) uint64 { return s.mem[addr] }

// Tick implements Responder.
func (s *SRAM) Tick(out BusOut) BusIn {
	if !out.Stb {
		s.pending = false
		return BusIn{Data: s.hold}
	}
	if !s.pending {
		s.pending = true
		s.wait = s.Latency
	}
	if s.wait > 0 {
		s.wait--
		return BusIn{Data: s.hold}
	}
	s.pending = false
	if out.We {
		s.mem[out.Addr] = out.Data & s.dataMask
		s.WriteCycles++
		return BusIn{Ack: true, Data: s.hold}
	}
	s.hold = s.mem[out.Addr]
	s.ReadCycles++
	return BusIn{Ack: true, Data: s.hold}
}
