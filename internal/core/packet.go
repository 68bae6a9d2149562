// Package core defines core data structures shared by all pipeline stages.
package core

// Packet is one raw frame read from (or bound for) the TUN device.
// Ownership transfers with the packet on every queue hop; a stage that
// pushed a Packet downstream must not touch it again.
type Packet struct {
	Data []byte
}

// NewPacket copies the first n bytes of buf into a fresh Packet.
// The TUN reader reuses its read buffer, so the copy is mandatory.
func NewPacket(buf []byte, n int) *Packet {
	data := make([]byte, n)
	copy(data, buf[:n])
	return &Packet{Data: data}
}

// Len returns the frame length in bytes.
func (p *Packet) Len() int {
	return len(p.Data)
}
