package serial

import (
	"io"
)

// PipePort is an in-memory Port. Pipe returns two connected ends; whatever
// one end writes, the other reads. Used to attach a host to a simulated
// probe without real hardware.
type PipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// Pipe creates a connected pair of in-memory ports.
func Pipe() (*PipePort, *PipePort) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := &PipePort{r: ar, w: aw}
	b := &PipePort{r: br, w: bw}
	return a, b
}

// Read reads data written to the peer end
func (p *PipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Write makes data available to the peer end
func (p *PipePort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Close closes both directions; the peer's pending reads and writes fail
func (p *PipePort) Close() error {
	p.r.Close()
	return p.w.Close()
}

// Flush is a no-op for the in-memory port
func (p *PipePort) Flush() error {
	return nil
}
