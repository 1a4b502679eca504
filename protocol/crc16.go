package protocol

// CRC16 computes the frame checksum over the header and payload bytes. The
// polynomial and bit order match the usual MCU serial-link CRC so existing
// line analyzers decode the traffic.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
