package protocol

import "errors"

var (
	ErrTruncatedVLQ = errors.New("truncated VLQ value")
	ErrOverlongVLQ  = errors.New("VLQ value exceeds 64 bits")
)

// The wire encodes unsigned integers base-128, most significant group first,
// with the continuation flag in bit 7. Bridge geometries go up to 64-bit
// data words, so values may span up to ten bytes.

// EncodeVLQ appends the minimal encoding of v to out.
func EncodeVLQ(out OutputBuffer, v uint64) {
	var tmp [10]byte
	n := len(tmp) - 1
	tmp[n] = byte(v & 0x7F)
	for v >>= 7; v != 0; v >>= 7 {
		n--
		tmp[n] = byte(v&0x7F) | 0x80
	}
	out.Output(tmp[n:])
}

// DecodeVLQ consumes one value from the front of *data.
func DecodeVLQ(data *[]byte) (uint64, error) {
	var v uint64
	for i := 0; ; i++ {
		if len(*data) == 0 {
			return 0, ErrTruncatedVLQ
		}
		c := (*data)[0]
		*data = (*data)[1:]
		v = v<<7 | uint64(c&0x7F)
		if c&0x80 == 0 {
			return v, nil
		}
		if i >= 9 {
			return 0, ErrOverlongVLQ
		}
	}
}

// EncodeVLQBytes appends a length-prefixed byte string.
func EncodeVLQBytes(out OutputBuffer, data []byte) {
	EncodeVLQ(out, uint64(len(data)))
	out.Output(data)
}

// DecodeVLQBytes consumes a length-prefixed byte string. The returned slice
// aliases *data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQ(data)
	if err != nil {
		return nil, err
	}
	if uint64(len(*data)) < n {
		return nil, ErrTruncatedVLQ
	}
	s := (*data)[:n]
	*data = (*data)[n:]
	return s, nil
}
