package protocol

// CommandHandler executes one decoded command. The handler consumes its own
// arguments from *data; whatever it leaves is parsed as the next command in
// the frame.
type CommandHandler func(cmd uint16, data *[]byte) error

// Transport is the device (probe) side of the link. It validates incoming
// frames, tracks the host's sequence numbering, dispatches commands and
// queues acks and responses into its output buffer.
//
// A Transport is driven from a single receive loop; it is not safe for
// concurrent use.
type Transport struct {
	sc      frameScanner
	nextSeq byte
	out     OutputBuffer
	handler CommandHandler
	onReset func()
}

// NewTransport creates a device-side transport writing acks and responses
// into out.
func NewTransport(out OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		sc:      newFrameScanner(),
		nextSeq: FrameDest,
		out:     out,
		handler: handler,
	}
}

// SetResetCallback registers a hook invoked when the host restarts its
// sequence numbering (a host process restart).
func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// Receive consumes buffered link bytes. For every valid frame it dispatches
// the contained commands (if the sequence matches) and queues an ack; a
// stale or repeated sequence still acks, which tells the host where the
// probe actually is.
func (t *Transport) Receive(in InputBuffer) {
	consumed := t.sc.scan(in.Data(), func(seq byte, payload []byte) {
		if seq == FrameDest && t.nextSeq != FrameDest {
			// Host restarted from the beginning of the window.
			t.nextSeq = FrameDest
			if t.onReset != nil {
				t.onReset()
			}
		}
		if seq == t.nextSeq {
			t.nextSeq = (seq+1)&FrameSeqMask | FrameDest
			t.dispatch(payload)
		}
		t.sendAck()
	})
	in.Pop(consumed)
}

// dispatch walks the commands packed into one frame payload.
func (t *Transport) dispatch(payload []byte) {
	for len(payload) > 0 {
		cmd, err := DecodeVLQ(&payload)
		if err != nil {
			// Malformed payload despite a valid CRC; drop the rest and force
			// a resync so both ends agree on where frames start.
			t.sc.synced = false
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmd), &payload); err != nil {
			// Handler errors are not a framing problem; the remainder of the
			// frame cannot be trusted to decode, so stop here.
			return
		}
	}
}

// SendResponse queues a response frame carrying one command and its
// arguments.
func (t *Transport) SendResponse(cmd uint16, args func(OutputBuffer)) error {
	return writeFrame(t.out, t.nextSeq, func(out OutputBuffer) {
		EncodeVLQ(out, uint64(cmd))
		if args != nil {
			args(out)
		}
	})
}

// sendAck queues an empty frame carrying the next expected sequence. When
// the incoming sequence did not match, this doubles as a nak telling the
// host what the probe expects.
func (t *Transport) sendAck() {
	_ = writeFrame(t.out, t.nextSeq, nil)
}

// Reset restores the link state after a transport-level disconnect.
func (t *Transport) Reset() {
	t.sc = newFrameScanner()
	t.nextSeq = FrameDest
	if t.onReset != nil {
		t.onReset()
	}
}
