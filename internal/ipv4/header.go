package ipv4

import (
	"encoding/binary"

	"github.com/nissy-dev/tunstack/internal/core"
)

const (
	// HeaderLength is the fixed IPv4 header size. Options are not
	// supported, so IHL is always 5 (words) on both paths.
	HeaderLength = 20

	Version      = 4
	ProtocolTCP  = 6
	headerWords  = HeaderLength / 4
	defaultTTL   = 64
	dontFragment = 0x2 // bit 1 of the 3-bit flags field
)

// Header is the fixed 20-byte RFC 791 IPv4 header.
//
//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |Version|  IHL  |Type of Service|         Total Length          |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |         Identification        |Flags|   Fragment Offset       |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |  Time to Live |    Protocol   |       Header Checksum         |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                        Source Address                         |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                     Destination Address                       |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Header struct {
	Version    uint8
	IHL        uint8 // header length in 32-bit words
	TOS        uint8
	TotalLen   uint16 // header plus payload, bytes
	ID         uint16
	Flags      uint8  // 3 bits
	FragOffset uint16 // 13 bits
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	SrcIP      [4]byte
	DstIP      [4]byte
}

// NewHeader builds an outbound TCP-carrying header with the don't
// fragment bit set. payloadLen is everything after the IP header.
func NewHeader(src, dst [4]byte, payloadLen int) Header {
	return Header{
		Version:  Version,
		IHL:      headerWords,
		TotalLen: HeaderLength + uint16(payloadLen),
		Flags:    dontFragment,
		TTL:      defaultTTL,
		Protocol: ProtocolTCP,
		SrcIP:    src,
		DstIP:    dst,
	}
}

// ParseHeader decodes the leading 20 bytes of b. The stored checksum
// is returned as-is; it is not verified here.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, core.ErrPacketTooShort
	}
	return Header{
		Version:    b[0] >> 4,
		IHL:        b[0] & 0x0F,
		TOS:        b[1],
		TotalLen:   binary.BigEndian.Uint16(b[2:4]),
		ID:         binary.BigEndian.Uint16(b[4:6]),
		Flags:      b[6] >> 5,
		FragOffset: binary.BigEndian.Uint16(b[6:8]) & 0x1FFF,
		TTL:        b[8],
		Protocol:   b[9],
		Checksum:   binary.BigEndian.Uint16(b[10:12]),
		SrcIP:      [4]byte(b[12:16]),
		DstIP:      [4]byte(b[16:20]),
	}, nil
}

// Marshal serializes the header and writes a freshly computed checksum
// into bytes 10..12. The stored Checksum field is ignored.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderLength)
	b[0] = h.Version<<4 | h.IHL
	b[1] = h.TOS
	binary.BigEndian.PutUint16(b[2:4], h.TotalLen)
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	binary.BigEndian.PutUint16(b[6:8], uint16(h.Flags)<<13|h.FragOffset&0x1FFF)
	b[8] = h.TTL
	b[9] = h.Protocol
	copy(b[12:16], h.SrcIP[:])
	copy(b[16:20], h.DstIP[:])
	binary.BigEndian.PutUint16(b[10:12], Checksum(b))
	return b
}

// HeaderLen returns the header length in bytes as declared by IHL.
func (h Header) HeaderLen() int {
	return int(h.IHL) * 4
}

// IPPacket pairs a parsed header with the raw frame it came from (or
// the frame it was serialized into on the way out).
type IPPacket struct {
	Header Header
	Packet *core.Packet
}

// Payload returns the bytes after the IP header.
func (p *IPPacket) Payload() []byte {
	return p.Packet.Data[p.Header.HeaderLen():]
}
