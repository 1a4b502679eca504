package protocol

import (
	"bytes"
	"errors"
)

var ErrFrameTooLong = errors.New("frame exceeds FrameLenMax")

// frameScanner walks a raw byte stream and extracts valid frames, dropping
// garbage and recovering on the sync byte. Both ends of the link use the
// same scanning discipline.
type frameScanner struct {
	synced bool
}

func newFrameScanner() frameScanner { return frameScanner{synced: true} }

// scan consumes as much of data as possible, invoking emit for every valid
// frame, and returns the number of bytes consumed. A short tail (a frame
// still in flight) is left unconsumed; anything malformed desynchronizes the
// scanner until the next sync byte.
func (s *frameScanner) scan(data []byte, emit func(seq byte, payload []byte)) int {
	rest := data
	for len(rest) > 0 {
		if !s.synced {
			i := bytes.IndexByte(rest, FrameSync)
			if i < 0 {
				rest = nil
				break
			}
			rest = rest[i+1:]
			s.synced = true
			continue
		}
		if rest[0] == FrameSync {
			rest = rest[1:]
			continue
		}
		if len(rest) < FrameLenMin {
			break
		}
		n := int(rest[0])
		if n < FrameLenMin || n > FrameLenMax {
			s.synced = false
			continue
		}
		seq := rest[1]
		if seq&^byte(FrameSeqMask) != FrameDest {
			s.synced = false
			continue
		}
		if len(rest) < n {
			break
		}
		if rest[n-1] != FrameSync {
			s.synced = false
			continue
		}
		want := uint16(rest[n-3])<<8 | uint16(rest[n-2])
		if CRC16(rest[:n-FrameTrailerSize]) != want {
			s.synced = false
			continue
		}
		emit(seq, rest[FrameHeaderSize:n-FrameTrailerSize])
		rest = rest[n:]
	}
	return len(data) - len(rest)
}

// writeFrame frames a payload into out: header, payload, CRC, sync. The
// payload is produced by fn so callers can stream VLQ arguments directly.
func writeFrame(out OutputBuffer, seq byte, fn func(OutputBuffer)) error {
	start := out.CurPosition()
	out.Output([]byte{0, seq}) // length backpatched below
	if fn != nil {
		fn(out)
	}
	n := len(out.DataSince(start)) + FrameTrailerSize
	if n > FrameLenMax {
		return ErrFrameTooLong
	}
	out.Update(start, byte(n))
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{byte(crc >> 8), byte(crc), FrameSync})
	return nil
}
