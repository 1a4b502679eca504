package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrAckTimeout      = errors.New("timed out waiting for ack")
	ErrResponseTimeout = errors.New("timed out waiting for response")
	ErrClosed          = errors.New("transport closed")
)

// Message is a response frame received from the probe.
type Message struct {
	Seq  byte
	Cmd  uint16
	Data []byte
}

// ResponseHandler observes responses as they arrive, before they are queued
// for synchronous retrieval.
type ResponseHandler func(msg *Message)

// HostTransport is the host side of the link: it frames outgoing commands,
// waits for the probe's acks, and collects response frames from a background
// reader.
type HostTransport struct {
	port io.ReadWriteCloser

	mu  sync.Mutex // guards seq and writes to the port
	seq byte

	sc    frameScanner
	fifo  *FifoBuffer
	acks  chan byte
	resps chan *Message

	handler ResponseHandler

	stop chan struct{}
	done chan struct{}
}

// NewHostTransport starts a transport over an open port. Close releases the
// background reader and the port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:  port,
		seq:   FrameDest,
		sc:    newFrameScanner(),
		fifo:  NewFifoBuffer(4 * ScratchMax),
		acks:  make(chan byte, 1),
		resps: make(chan *Message, 16),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SetResponseHandler registers an observer for asynchronous responses.
func (t *HostTransport) SetResponseHandler(h ResponseHandler) { t.handler = h }

// SendCommand frames and sends one command, then waits for the probe's ack.
func (t *HostTransport) SendCommand(cmd uint16, args func(OutputBuffer), timeout time.Duration) error {
	t.mu.Lock()
	seq := t.seq
	scratch := NewScratchOutput()
	err := writeFrame(scratch, seq, func(out OutputBuffer) {
		EncodeVLQ(out, uint64(cmd))
		if args != nil {
			args(out)
		}
	})
	if err == nil {
		_, err = t.port.Write(scratch.Result())
	}
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("send command %#x: %w", cmd, err)
	}

	select {
	case ackSeq := <-t.acks:
		want := (seq+1)&FrameSeqMask | FrameDest
		if ackSeq != want {
			return fmt.Errorf("ack sequence %#x, want %#x", ackSeq, want)
		}
		t.mu.Lock()
		t.seq = want
		t.mu.Unlock()
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("command %#x: %w", cmd, ErrAckTimeout)
	case <-t.stop:
		return ErrClosed
	}
}

// ReceiveResponse waits for the next response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case msg := <-t.resps:
		return msg, nil
	case <-time.After(timeout):
		return nil, ErrResponseTimeout
	case <-t.stop:
		return nil, ErrClosed
	}
}

// Close stops the reader and closes the underlying port. The port is closed
// first: the reader may be parked in a blocking Read with nothing arriving,
// and only the close can unblock it.
func (t *HostTransport) Close() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	err := t.port.Close()
	<-t.done
	return err
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			// Serial reads surface transient errors on timeouts; back off
			// briefly and keep going.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		t.fifo.Write(buf[:n])
		consumed := t.sc.scan(t.fifo.Data(), t.dispatch)
		t.fifo.Pop(consumed)
	}
}

func (t *HostTransport) dispatch(seq byte, payload []byte) {
	if len(payload) == 0 {
		// Ack/nak: the sequence byte tells us what the probe expects next.
		select {
		case t.acks <- seq:
		default:
		}
		return
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	cmd, err := DecodeVLQ(&data)
	if err != nil {
		return
	}
	msg := &Message{Seq: seq, Cmd: uint16(cmd), Data: data}

	if t.handler != nil {
		t.handler(msg)
	}
	select {
	case t.resps <- msg:
	default:
		// Queue full: drop the oldest so fresh responses keep flowing.
		select {
		case <-t.resps:
		default:
		}
		t.resps <- msg
	}
}
