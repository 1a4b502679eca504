// Package probe exposes a bridge to a remote host. It speaks the framed
// serial protocol on one side and drives the bit-level link on the other,
// translating peek and poke commands into register transactions.
package probe

import (
	"errors"
	"fmt"
	"io"

	"serbus/host/master"
	"serbus/protocol"
)

var ErrUnknownCommand = errors.New("unknown command")

// Probe serves protocol commands against one master.
type Probe struct {
	port   io.ReadWriteCloser
	m      *master.Master
	out    *protocol.ScratchOutput
	tr     *protocol.Transport
	fifo   *protocol.FifoBuffer
	faults func() uint64
}

// NewProbe wires a port to a master. The fault counter is optional; without
// one, get_faults reports zero.
func NewProbe(port io.ReadWriteCloser, m *master.Master) *Probe {
	p := &Probe{
		port: port,
		m:    m,
		out:  protocol.NewScratchOutput(),
		fifo: protocol.NewFifoBuffer(4 * protocol.ScratchMax),
	}
	p.tr = protocol.NewTransport(p.out, p.execute)
	return p
}

// SetFaultSource registers the counter backing get_faults.
func (p *Probe) SetFaultSource(fn func() uint64) { p.faults = fn }

// Run serves the port until a read or write fails. Closing the port from
// another goroutine is the normal way to stop it.
func (p *Probe) Run() error {
	buf := make([]byte, 256)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("probe read: %w", err)
		}
		if n == 0 {
			continue
		}
		p.fifo.Write(buf[:n])
		p.tr.Receive(p.fifo)
		if err := p.flush(); err != nil {
			return err
		}
	}
}

// Close tears down the port, which unblocks Run.
func (p *Probe) Close() error { return p.port.Close() }

func (p *Probe) flush() error {
	data := p.out.Result()
	if len(data) == 0 {
		return nil
	}
	if _, err := p.port.Write(data); err != nil {
		return fmt.Errorf("probe write: %w", err)
	}
	p.out.Reset()
	return nil
}

// execute runs one decoded command against the master.
func (p *Probe) execute(cmd uint16, data *[]byte) error {
	switch cmd {
	case protocol.CmdGetGeometry:
		cfg := p.m.Config()
		return p.tr.SendResponse(protocol.RspGeometry, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQ(out, uint64(cfg.AddressWidth))
			protocol.EncodeVLQ(out, uint64(cfg.DataWidth))
			inc := uint64(0)
			if cfg.AutoIncrement {
				inc = 1
			}
			protocol.EncodeVLQ(out, inc)
			protocol.EncodeVLQBytes(out, []byte(protocol.Version))
		})

	case protocol.CmdPoke:
		addr, err := protocol.DecodeVLQ(data)
		if err != nil {
			return err
		}
		v, err := protocol.DecodeVLQ(data)
		if err != nil {
			return err
		}
		return p.m.Write(addr, v)

	case protocol.CmdPeek:
		addr, err := protocol.DecodeVLQ(data)
		if err != nil {
			return err
		}
		v, err := p.m.Read(addr)
		if err != nil {
			return err
		}
		return p.tr.SendResponse(protocol.RspPeekResult, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQ(out, addr)
			protocol.EncodeVLQ(out, v)
		})

	case protocol.CmdPokeBurst:
		addr, err := protocol.DecodeVLQ(data)
		if err != nil {
			return err
		}
		count, err := protocol.DecodeVLQ(data)
		if err != nil {
			return err
		}
		// Every encoded word is at least one byte, so a count past the
		// remaining payload cannot be honest.
		if count > uint64(len(*data)) {
			return protocol.ErrTruncatedVLQ
		}
		words := make([]uint64, 0, count)
		for i := uint64(0); i < count; i++ {
			w, err := protocol.DecodeVLQ(data)
			if err != nil {
				return err
			}
			words = append(words, w)
		}
		return p.m.WriteBurst(addr, words)

	case protocol.CmdGetFaults:
		var n uint64
		if p.faults != nil {
			n = p.faults()
		}
		return p.tr.SendResponse(protocol.RspFaults, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQ(out, n)
		})
	}
	return fmt.Errorf("%w: %d", ErrUnknownCommand, cmd)
}
