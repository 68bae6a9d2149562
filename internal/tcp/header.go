// Package tcp implements the passive-open TCP layer: header codec,
// connection state machine and the segment manager exposing
// listen/accept/write to the application.
package tcp

import (
	"encoding/binary"
	"strings"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/ipv4"
)

// HeaderLength is the fixed TCP header size. Options are never sent;
// on receive the data offset is honored when locating the payload.
const HeaderLength = 20

// Flags is the 8-bit flag field of the TCP header.
type Flags uint8

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// Has reports whether any flag in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask != 0
}

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSYN, "SYN"},
	{FlagACK, "ACK"},
	{FlagPSH, "PSH"},
	{FlagFIN, "FIN"},
	{FlagRST, "RST"},
	{FlagURG, "URG"},
	{FlagECE, "ECE"},
	{FlagCWR, "CWR"},
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Header is the fixed 20-byte RFC 9293 TCP header.
//
//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |          Source Port          |       Destination Port        |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                        Sequence Number                        |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                    Acknowledgment Number                      |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |  Data |       |C|E|U|A|P|R|S|F|                               |
// | Offset| Rsrvd |W|C|R|C|S|S|Y|I|            Window             |
// |       |       |R|E|G|K|H|T|N|N|                               |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |           Checksum            |         Urgent Pointer        |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // header length in 32-bit words
	Reserved   uint8
	Flags      Flags
	Window     uint16
	Checksum   uint16
	Urgent     uint16
}

// NewHeader builds an outbound header with the maximum window and no
// urgent data.
func NewHeader(srcPort, dstPort uint16, seq, ack uint32, flags Flags) Header {
	return Header{
		SrcPort:    srcPort,
		DstPort:    dstPort,
		Seq:        seq,
		Ack:        ack,
		DataOffset: HeaderLength / 4,
		Flags:      flags,
		Window:     65535,
	}
}

// ParseHeader decodes the leading 20 bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, core.ErrPacketTooShort
	}
	return Header{
		SrcPort:    binary.BigEndian.Uint16(b[0:2]),
		DstPort:    binary.BigEndian.Uint16(b[2:4]),
		Seq:        binary.BigEndian.Uint32(b[4:8]),
		Ack:        binary.BigEndian.Uint32(b[8:12]),
		DataOffset: b[12] >> 4,
		Reserved:   b[12] & 0x0F,
		Flags:      Flags(b[13]),
		Window:     binary.BigEndian.Uint16(b[14:16]),
		Checksum:   binary.BigEndian.Uint16(b[16:18]),
		Urgent:     binary.BigEndian.Uint16(b[18:20]),
	}, nil
}

// HeaderLen returns the header length in bytes as declared by the
// data offset.
func (h Header) HeaderLen() int {
	return int(h.DataOffset) * 4
}

// Marshal serializes the header and writes into bytes 16..18 the
// checksum over pseudo-header, header and payload. The IP header
// supplies the pseudo-header addresses.
func (h Header) Marshal(ip ipv4.Header, payload []byte) []byte {
	b := make([]byte, HeaderLength)
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint32(b[4:8], h.Seq)
	binary.BigEndian.PutUint32(b[8:12], h.Ack)
	b[12] = h.DataOffset<<4 | h.Reserved&0x0F
	b[13] = byte(h.Flags)
	binary.BigEndian.PutUint16(b[14:16], h.Window)
	binary.BigEndian.PutUint16(b[18:20], h.Urgent)

	sum := segmentChecksum(ip, b, payload)
	binary.BigEndian.PutUint16(b[16:18], sum)
	return b
}

// pseudoHeader builds the 12-byte synthetic header prepended for
// checksum computation only, never transmitted.
func pseudoHeader(ip ipv4.Header, segLen int) []byte {
	p := make([]byte, 12)
	copy(p[0:4], ip.SrcIP[:])
	copy(p[4:8], ip.DstIP[:])
	p[9] = ipv4.ProtocolTCP
	binary.BigEndian.PutUint16(p[10:12], uint16(segLen))
	return p
}

func segmentChecksum(ip ipv4.Header, header, payload []byte) uint16 {
	buf := pseudoHeader(ip, len(header)+len(payload))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return ipv4.Checksum(buf)
}

// VerifyChecksum reports whether the stored checksum of segment (TCP
// header plus payload) verifies against the pseudo-header derived
// from ip. Summing a correct segment including its checksum field
// yields 0xFFFF, so the complement is zero.
func VerifyChecksum(ip ipv4.Header, segment []byte) bool {
	buf := pseudoHeader(ip, len(segment))
	buf = append(buf, segment...)
	return ipv4.Checksum(buf) == 0
}
