// Package remote is the typed client for a probe: register access and
// introspection over the framed serial protocol.
package remote

import (
	"errors"
	"fmt"
	"io"
	"time"

	"serbus/core"
	"serbus/host/serial"
	"serbus/protocol"
)

var ErrBadResponse = errors.New("unexpected response")

// DefaultTimeout bounds each command round trip.
const DefaultTimeout = 1 * time.Second

// Geometry is what the probe reports about its bridge.
type Geometry struct {
	Config  core.Config
	Version string
}

// Client talks to one probe.
type Client struct {
	transport *protocol.HostTransport
	timeout   time.Duration
	space     uint64 // address space size, cached from the geometry
}

// Connect opens a serial device and attaches a client to it.
func Connect(device string) (*Client, error) {
	port, err := serial.Open(serial.DefaultConfig(device))
	if err != nil {
		return nil, fmt.Errorf("connect to probe: %w", err)
	}
	return NewClient(port), nil
}

// NewClient attaches to an already open port. Close closes the port.
func NewClient(port io.ReadWriteCloser) *Client {
	return &Client{
		transport: protocol.NewHostTransport(port),
		timeout:   DefaultTimeout,
	}
}

// SetTimeout changes the per-command deadline.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Close shuts down the transport and the port beneath it.
func (c *Client) Close() error { return c.transport.Close() }

// Geometry asks the probe for its bridge configuration.
func (c *Client) Geometry() (Geometry, error) {
	var g Geometry
	err := c.transport.SendCommand(protocol.CmdGetGeometry, nil, c.timeout)
	if err != nil {
		return g, err
	}
	msg, err := c.response(protocol.RspGeometry)
	if err != nil {
		return g, err
	}

	data := msg.Data
	aw, err := protocol.DecodeVLQ(&data)
	if err != nil {
		return g, fmt.Errorf("geometry response: %w", err)
	}
	dw, err := protocol.DecodeVLQ(&data)
	if err != nil {
		return g, fmt.Errorf("geometry response: %w", err)
	}
	inc, err := protocol.DecodeVLQ(&data)
	if err != nil {
		return g, fmt.Errorf("geometry response: %w", err)
	}
	version, err := protocol.DecodeVLQBytes(&data)
	if err != nil {
		return g, fmt.Errorf("geometry response: %w", err)
	}

	g.Config = core.Config{
		AddressWidth:  int(aw),
		DataWidth:     int(dw),
		AutoIncrement: inc != 0,
	}
	g.Version = string(version)
	if err := g.Config.Validate(); err != nil {
		return g, err
	}
	c.space = 1 << (g.Config.AddressWidth - 1)
	return g, nil
}

// Poke writes one word through the probe's bridge.
func (c *Client) Poke(addr, data uint64) error {
	return c.transport.SendCommand(protocol.CmdPoke, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQ(out, addr)
		protocol.EncodeVLQ(out, data)
	}, c.timeout)
}

// PokeBurst writes consecutive words starting at addr. Bursts too long for
// one frame are split; each chunk still runs as a single auto-increment
// stream on the probe side.
func (c *Client) PokeBurst(addr uint64, words []uint64) error {
	for len(words) > 0 {
		n := burstChunk(addr, words)
		chunk := words[:n]
		err := c.transport.SendCommand(protocol.CmdPokeBurst, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQ(out, addr)
			protocol.EncodeVLQ(out, uint64(len(chunk)))
			for _, w := range chunk {
				protocol.EncodeVLQ(out, w)
			}
		}, c.timeout)
		if err != nil {
			return err
		}
		words = words[n:]
		if len(words) == 0 {
			break
		}
		// Following chunks wrap in the probe's address space the same way
		// the bridge wraps inside a chunk.
		space, err := c.addrSpace()
		if err != nil {
			return err
		}
		addr = (addr + uint64(n)) % space
	}
	return nil
}

// addrSpace returns the probe's address space size, asking for the geometry
// on first use.
func (c *Client) addrSpace() (uint64, error) {
	if c.space == 0 {
		if _, err := c.Geometry(); err != nil {
			return 0, fmt.Errorf("address space unknown: %w", err)
		}
	}
	return c.space, nil
}

// burstChunk returns how many leading words fit in one frame alongside the
// command, address and count fields.
func burstChunk(addr uint64, words []uint64) int {
	budget := protocol.FrameLenMax - protocol.FrameLenMin -
		vlqLen(protocol.CmdPokeBurst) - vlqLen(addr) - vlqLen(uint64(len(words)))
	n := 0
	for _, w := range words {
		budget -= vlqLen(w)
		if budget < 0 {
			break
		}
		n++
	}
	if n == 0 {
		n = 1 // a single word always fits
	}
	return n
}

// vlqLen is the encoded size of v in bytes.
func vlqLen(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

// Peek reads one word through the probe's bridge.
func (c *Client) Peek(addr uint64) (uint64, error) {
	err := c.transport.SendCommand(protocol.CmdPeek, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQ(out, addr)
	}, c.timeout)
	if err != nil {
		return 0, err
	}
	msg, err := c.response(protocol.RspPeekResult)
	if err != nil {
		return 0, err
	}

	data := msg.Data
	respAddr, err := protocol.DecodeVLQ(&data)
	if err != nil {
		return 0, fmt.Errorf("peek response: %w", err)
	}
	if respAddr != addr {
		return 0, fmt.Errorf("%w: peek answered for %#x, asked %#x", ErrBadResponse, respAddr, addr)
	}
	v, err := protocol.DecodeVLQ(&data)
	if err != nil {
		return 0, fmt.Errorf("peek response: %w", err)
	}
	return v, nil
}

// Faults reads the probe's deadline fault counter.
func (c *Client) Faults() (uint64, error) {
	if err := c.transport.SendCommand(protocol.CmdGetFaults, nil, c.timeout); err != nil {
		return 0, err
	}
	msg, err := c.response(protocol.RspFaults)
	if err != nil {
		return 0, err
	}
	data := msg.Data
	n, err := protocol.DecodeVLQ(&data)
	if err != nil {
		return 0, fmt.Errorf("faults response: %w", err)
	}
	return n, nil
}

// response waits for the next response frame and checks its command code.
func (c *Client) response(want uint16) (*protocol.Message, error) {
	msg, err := c.transport.ReceiveResponse(c.timeout)
	if err != nil {
		return nil, err
	}
	if msg.Cmd != want {
		return nil, fmt.Errorf("%w: command %#x, want %#x", ErrBadResponse, msg.Cmd, want)
	}
	return msg, nil
}
