// Package ipv4 implements the IPv4 layer: header codec, Internet
// checksum and the packet manager between the device and TCP stages.
package ipv4

import "encoding/binary"

// Checksum computes the Internet checksum (RFC 1071) over b: the one's
// complement of the one's-complement sum of all big-endian 16-bit
// words. A trailing odd byte is treated as the high byte of a final
// zero-padded word.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	// Fold the carries back into the low 16 bits until none remain.
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
