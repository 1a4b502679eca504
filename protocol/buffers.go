package protocol

// InputBuffer abstracts the receive side of a byte pipe.
type InputBuffer interface {
	// Data returns the buffered bytes without consuming them.
	Data() []byte

	// Available returns the number of buffered bytes.
	Available() int

	// Pop discards n bytes from the front.
	Pop(n int)
}

// OutputBuffer abstracts the transmit side. The position-based methods let
// the framer backpatch the length field and checksum a frame after its
// payload has been written.
type OutputBuffer interface {
	// Output appends data.
	Output(data []byte)

	// CurPosition returns the current write position.
	CurPosition() int

	// Update overwrites the byte at pos.
	Update(pos int, val byte)

	// DataSince returns everything written since pos.
	DataSince(pos int) []byte
}

// SliceInput is an InputBuffer over a caller-owned slice.
type SliceInput struct {
	data []byte
}

func NewSliceInput(data []byte) *SliceInput { return &SliceInput{data: data} }

func (s *SliceInput) Data() []byte   { return s.data }
func (s *SliceInput) Available() int { return len(s.data) }

func (s *SliceInput) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is a fixed-capacity OutputBuffer. Writes past the capacity
// are dropped; the framer bounds frame sizes well below it.
type ScratchOutput struct {
	buf [ScratchMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput { return &ScratchOutput{} }

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written so far.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

// Reset discards the buffer contents.
func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a byte ring used between the serial reader and the frame
// scanner.
type FifoBuffer struct {
	buf   []byte
	head  int // index of the oldest byte
	count int
}

// NewFifoBuffer creates a ring holding up to capacity bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and reports how much that was.
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		if f.count == len(f.buf) {
			break
		}
		f.buf[(f.head+f.count)%len(f.buf)] = b
		f.count++
		written++
	}
	return written
}

// Read moves up to len(p) bytes out of the ring.
func (f *FifoBuffer) Read(p []byte) int {
	n := 0
	for n < len(p) && f.count > 0 {
		p[n] = f.buf[f.head]
		f.head = (f.head + 1) % len(f.buf)
		f.count--
		n++
	}
	return n
}

// Data returns the buffered bytes in order. When the ring has wrapped the
// result is a fresh contiguous copy, which the frame scanner requires.
func (f *FifoBuffer) Data() []byte {
	end := f.head + f.count
	if end <= len(f.buf) {
		return f.buf[f.head:end]
	}
	out := make([]byte, f.count)
	n := copy(out, f.buf[f.head:])
	copy(out[n:], f.buf[:end-len(f.buf)])
	return out
}

// Pop discards n bytes from the front.
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	f.head = (f.head + n) % len(f.buf)
	f.count -= n
}

// Available returns the number of buffered bytes.
func (f *FifoBuffer) Available() int { return f.count }

// Free returns the remaining capacity.
func (f *FifoBuffer) Free() int { return len(f.buf) - f.count }

// IsEmpty reports whether the ring holds no data.
func (f *FifoBuffer) IsEmpty() bool { return f.count == 0 }

// Reset discards all buffered data.
func (f *FifoBuffer) Reset() {
	f.head, f.count = 0, 0
}
