// Package protocol implements the framed byte protocol spoken between the
// host and a bridge probe over a serial port. Frames carry a length byte, a
// sequence byte, a command payload, a CRC-16 and a trailing sync byte; the
// sequence numbering gives the host a reliable request/ack discipline on top
// of a raw byte pipe.
package protocol

// Version identifies the probe protocol revision.
const Version = "0.1.0"

const (
	FrameSync        = 0x7E // trailing sync byte, also used for resync
	FrameDest        = 0x10 // high bits carried by every sequence byte
	FrameSeqMask     = 0x0F
	FrameHeaderSize  = 2 // length + sequence
	FrameTrailerSize = 3 // CRC high, CRC low, sync
	FrameLenMin      = FrameHeaderSize + FrameTrailerSize
	FrameLenMax      = 64

	// ScratchMax sizes the output scratch buffer; several responses plus an
	// ack must fit between flushes.
	ScratchMax = 512
)

// Command identifiers, host to probe. Arguments are VLQ-encoded.
const (
	CmdGetGeometry = 1 // no args
	CmdPoke        = 2 // addr, data
	CmdPeek        = 3 // addr
	CmdPokeBurst   = 4 // addr, count, data...
	CmdGetFaults   = 5 // no args
)

// Response identifiers, probe to host.
const (
	RspGeometry   = 0x20 // address_width, data_width, auto_increment
	RspPeekResult = 0x21 // addr, data
	RspFaults     = 0x22 // fault count
)
