package core

import "testing"

// harness drives a bridge and a responder in lockstep on one local clock,
// the way the wiring in package sim does, with a configurable number of
// local ticks per serial clock half-period.
type harness struct {
	t     *testing.T
	b     *Bridge
	resp  Responder
	in    BusIn
	out   BusOut
	ratio int
}

func newHarness(t *testing.T, cfg Config, resp Responder) *harness {
	t.Helper()
	b, err := NewBridge(cfg)
	if err != nil {
		t.Fatalf("NewBridge(%+v) failed: %v", cfg, err)
	}
	h := &harness{t: t, b: b, resp: resp, ratio: 4}
	h.idle(2)
	return h
}

func (h *harness) tick(cs, sck, mosi bool) bool {
	miso, out := h.b.Tick(Pins{CS: cs, SCK: sck, MOSI: mosi}, h.in)
	h.out = out
	h.in = h.resp.Tick(out)
	return miso
}

// clock runs one full serial clock with the link selected, returning the
// output line level as a master sampling on the rising edge would see it.
func (h *harness) clock(bit bool) bool {
	var miso bool
	for i := 0; i < h.ratio; i++ {
		miso = h.tick(false, false, bit)
	}
	for i := 0; i < h.ratio; i++ {
		h.tick(false, true, bit)
	}
	return miso
}

// clockWord clocks the low n bits of v, MSB first.
func (h *harness) clockWord(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		h.clock(v>>uint(i)&1 == 1)
	}
}

// idle runs n ticks with chip-select released.
func (h *harness) idle(n int) {
	for ; n > 0; n-- {
		h.tick(true, false, false)
	}
}

// neverAck is a responder that leaves every request hanging.
type neverAck struct{}

func (neverAck) Tick(BusOut) BusIn { return BusIn{} }

func cfg8() Config {
	return Config{AddressWidth: 8, DataWidth: 8}
}

func TestWriteTransaction(t *testing.T) {
	// Worked example: 0x81 is the write flag plus address 1, 0x42 the data.
	mem := NewSRAM(cfg8())
	h := newHarness(t, cfg8(), mem)

	h.clockWord(0x81, 8)
	h.clockWord(0x42, 8)
	h.idle(2)

	if mem.WriteCycles != 1 {
		t.Errorf("expected exactly 1 write cycle, got %d", mem.WriteCycles)
	}
	if got := mem.Peek(1); got != 0x42 {
		t.Errorf("expected mem[1]=0x42, got %#x", got)
	}
	if mem.ReadCycles != 0 {
		t.Errorf("write sequence issued %d read cycles", mem.ReadCycles)
	}
	if h.b.Faults() != 0 {
		t.Errorf("unexpected faults: %d", h.b.Faults())
	}
}

func TestReadStream(t *testing.T) {
	mem := NewSRAM(cfg8())
	mem.Poke(1, 0xA5)
	h := newHarness(t, cfg8(), mem)

	h.clockWord(0x01, 8)

	// The cycle is issued on completion of the address phase alone, before
	// any data bits are clocked.
	if mem.ReadCycles != 1 {
		t.Fatalf("expected read cycle after address phase, got %d", mem.ReadCycles)
	}

	want := []bool{true, false, true, false, false, true, false, true} // 0xA5
	for i, w := range want {
		if got := h.clock(false); got != w {
			t.Errorf("output bit %d: got %v, want %v", i, got, w)
		}
	}
	h.idle(2)

	if mem.ReadCycles != 1 {
		t.Errorf("expected exactly 1 read cycle, got %d", mem.ReadCycles)
	}
	if h.b.Faults() != 0 {
		t.Errorf("unexpected faults: %d", h.b.Faults())
	}
}

func TestTruncatedRead(t *testing.T) {
	// Sampling k < DataWidth bits yields the MSB-aligned prefix of the
	// result; dropping the select early is deliberate, not an error.
	for k := 1; k < 8; k++ {
		mem := NewSRAM(cfg8())
		mem.Poke(1, 0xA5)
		h := newHarness(t, cfg8(), mem)

		h.clockWord(0x01, 8)
		var got uint64
		for i := 0; i < k; i++ {
			got <<= 1
			if h.clock(false) {
				got |= 1
			}
		}
		h.idle(2)

		if want := uint64(0xA5) >> uint(8-k); got != want {
			t.Errorf("k=%d: sampled %#x, want prefix %#x", k, got, want)
		}
	}
}

func TestWriteCancelled(t *testing.T) {
	// Dropping the select at any bit count short of the full sequence must
	// produce zero bus cycles.
	seq := uint64(0x8142)
	for _, cut := range []int{1, 7, 8, 9, 15} {
		mem := NewSRAM(cfg8())
		h := newHarness(t, cfg8(), mem)

		for i := 0; i < cut; i++ {
			h.clock(seq>>uint(15-i)&1 == 1)
		}
		h.idle(2)

		if mem.WriteCycles != 0 || mem.ReadCycles != 0 {
			t.Errorf("cut=%d: got %d write / %d read cycles, want none",
				cut, mem.WriteCycles, mem.ReadCycles)
		}
		if h.b.Faults() != 0 {
			t.Errorf("cut=%d: unexpected faults: %d", cut, h.b.Faults())
		}
	}
}

func TestReadAbandoned(t *testing.T) {
	for _, cut := range []int{1, 4, 7} {
		mem := NewSRAM(cfg8())
		h := newHarness(t, cfg8(), mem)

		for i := 0; i < cut; i++ {
			h.clock(false)
		}
		h.idle(2)

		if mem.ReadCycles != 0 {
			t.Errorf("cut=%d: abandoned address phase issued %d read cycles",
				cut, mem.ReadCycles)
		}
	}
}

func TestAutoIncrementBurst(t *testing.T) {
	cfg := Config{AddressWidth: 8, DataWidth: 8, AutoIncrement: true}
	mem := NewSRAM(cfg)
	h := newHarness(t, cfg, mem)

	h.clockWord(0x85, 8) // write, address 5
	h.clockWord(0x11, 8)
	h.clockWord(0x22, 8)
	h.clockWord(0x33, 8)
	h.idle(2)

	if mem.WriteCycles != 3 {
		t.Fatalf("expected 3 write cycles, got %d", mem.WriteCycles)
	}
	for i, want := range []uint64{0x11, 0x22, 0x33} {
		addr := uint64(5 + i)
		if got := mem.Peek(addr); got != want {
			t.Errorf("mem[%#x] = %#x, want %#x", addr, got, want)
		}
	}
	if h.b.Faults() != 0 {
		t.Errorf("unexpected faults: %d", h.b.Faults())
	}
}

func TestNoAutoIncrement(t *testing.T) {
	mem := NewSRAM(cfg8())
	h := newHarness(t, cfg8(), mem)

	h.clockWord(0x85, 8)
	h.clockWord(0x11, 8)
	h.clockWord(0x22, 8) // extra payload must go nowhere
	h.idle(2)

	if mem.WriteCycles != 1 {
		t.Errorf("expected 1 write cycle without auto-increment, got %d", mem.WriteCycles)
	}
	if got := mem.Peek(5); got != 0x11 {
		t.Errorf("mem[5] = %#x, want 0x11", got)
	}
}

func TestAutoIncrementWrap(t *testing.T) {
	// The address field wraps modulo its own width; the burst keeps writing.
	cfg := Config{AddressWidth: 8, DataWidth: 8, AutoIncrement: true}
	mem := NewSRAM(cfg)
	h := newHarness(t, cfg, mem)

	h.clockWord(0xFF, 8) // write, address 0x7F (top of the 7-bit space)
	h.clockWord(0xAA, 8)
	h.clockWord(0xBB, 8)
	h.idle(2)

	if mem.WriteCycles != 2 {
		t.Fatalf("expected 2 write cycles, got %d", mem.WriteCycles)
	}
	if got := mem.Peek(0x7F); got != 0xAA {
		t.Errorf("mem[0x7F] = %#x, want 0xAA", got)
	}
	if got := mem.Peek(0); got != 0xBB {
		t.Errorf("mem[0] = %#x, want 0xBB (wrapped)", got)
	}
}

func TestReadDeadlineMiss(t *testing.T) {
	h := newHarness(t, cfg8(), neverAck{})

	var msgs []string
	h.b.SetDebugWriter(func(s string) { msgs = append(msgs, s) })

	h.clockWord(0x01, 8)
	if !h.out.Stb {
		t.Fatal("read request not asserted after address phase")
	}
	h.clock(false) // ack must have landed before this edge

	if got := h.b.Faults(); got != 1 {
		t.Errorf("expected 1 fault after missed read ack, got %d", got)
	}
	if h.out.Stb {
		t.Error("strobe still asserted after deadline miss")
	}
	if len(msgs) != 1 {
		t.Errorf("expected 1 diagnostic line, got %d", len(msgs))
	}
}

func TestWriteDeadlineWindow(t *testing.T) {
	// A write ack may land as late as the bit period after the next edge.
	// Latency of one full serial clock period still completes cleanly.
	mem := NewSRAM(cfg8())
	mem.Latency = 8 // 2*ratio local ticks = one serial clock period
	h := newHarness(t, cfg8(), mem)

	h.clockWord(0x81, 8)
	h.clockWord(0x42, 8)
	h.clock(false) // master keeps clocking while the ack settles
	h.clock(false)
	h.idle(2)

	if mem.WriteCycles != 1 {
		t.Errorf("expected 1 write cycle, got %d", mem.WriteCycles)
	}
	if got := mem.Peek(1); got != 0x42 {
		t.Errorf("mem[1] = %#x, want 0x42", got)
	}
	if h.b.Faults() != 0 {
		t.Errorf("unexpected faults: %d", h.b.Faults())
	}
}

func TestWriteDeadlineMiss(t *testing.T) {
	h := newHarness(t, cfg8(), neverAck{})

	h.clockWord(0x81, 8)
	h.clockWord(0x42, 8)
	h.clock(false)
	h.clock(false)

	if got := h.b.Faults(); got != 1 {
		t.Errorf("expected 1 fault after missed write ack, got %d", got)
	}
	if h.out.Stb {
		t.Error("strobe still asserted after deadline miss")
	}
}

func TestIdleClearsPendingRequest(t *testing.T) {
	// Releasing the select clears request flags without counting a fault.
	h := newHarness(t, cfg8(), neverAck{})

	h.clockWord(0x01, 8)
	if !h.out.Stb {
		t.Fatal("read request not asserted after address phase")
	}
	h.idle(1)

	if h.out.Stb || h.out.Cyc {
		t.Error("request flags survived chip-select release")
	}
	if h.b.Faults() != 0 {
		t.Errorf("chip-select release counted as fault: %d", h.b.Faults())
	}
}

func TestIdleResetsBitCounter(t *testing.T) {
	mem := NewSRAM(cfg8())
	h := newHarness(t, cfg8(), mem)

	// Three junk bits, then idle, then a complete write. The write only
	// lands correctly if the counter restarted from zero.
	h.clock(true)
	h.clock(true)
	h.clock(false)
	h.idle(2)

	h.clockWord(0x81, 8)
	h.clockWord(0x42, 8)
	h.idle(2)

	if mem.WriteCycles != 1 || mem.Peek(1) != 0x42 {
		t.Errorf("write after idle failed: cycles=%d mem[1]=%#x",
			mem.WriteCycles, mem.Peek(1))
	}
}

func TestIdlePreservesAccumulators(t *testing.T) {
	h := newHarness(t, cfg8(), neverAck{})

	h.clockWord(0x5A, 7) // partial address phase
	if h.b.addr == 0 {
		t.Fatal("address accumulator empty after shifting bits in")
	}
	before := h.b.addr
	h.idle(3)
	if h.b.addr != before {
		t.Errorf("chip-select release disturbed the address accumulator: %#x -> %#x",
			before, h.b.addr)
	}
	if h.b.count != 0 {
		t.Errorf("bit counter not reset: %d", h.b.count)
	}
}

func TestWideGeometry(t *testing.T) {
	// 16-bit address, 32-bit data.
	cfg := Config{AddressWidth: 16, DataWidth: 32, AutoIncrement: true}
	mem := NewSRAM(cfg)
	h := newHarness(t, cfg, mem)

	h.clockWord(1<<15|0x1234, 16)
	h.clockWord(0xDEADBEEF, 32)
	h.clockWord(0xCAFEF00D, 32)
	h.idle(2)

	if mem.WriteCycles != 2 {
		t.Fatalf("expected 2 write cycles, got %d", mem.WriteCycles)
	}
	if got := mem.Peek(0x1234); got != 0xDEADBEEF {
		t.Errorf("mem[0x1234] = %#x, want 0xDEADBEEF", got)
	}
	if got := mem.Peek(0x1235); got != 0xCAFEF00D {
		t.Errorf("mem[0x1235] = %#x, want 0xCAFEF00D", got)
	}

	mem.Poke(0x40, 0x81020304)
	h.clockWord(0x0040, 16)
	var got uint64
	for i := 0; i < 32; i++ {
		got <<= 1
		if h.clock(false) {
			got |= 1
		}
	}
	h.idle(2)
	if got != 0x81020304 {
		t.Errorf("read back %#x, want 0x81020304", got)
	}
}

func TestBridgeReset(t *testing.T) {
	h := newHarness(t, cfg8(), neverAck{})

	h.clockWord(0x01, 8)
	h.clock(false) // provoke a fault
	if h.b.Faults() == 0 {
		t.Fatal("expected a fault before reset")
	}

	h.b.Reset()
	if h.b.Faults() != 0 {
		t.Error("fault counter survived reset")
	}
	if h.b.count != 0 || h.b.addr != 0 || h.b.stb {
		t.Error("registers survived reset")
	}
	if h.b.Config() != cfg8() {
		t.Error("config lost across reset")
	}
}
