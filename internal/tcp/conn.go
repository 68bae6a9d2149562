package tcp

import (
	"fmt"
	"sync"

	"github.com/nissy-dev/tunstack/internal/metrics"
)

// Connection is one TCP session as seen from this (server) side.
// SrcPort/SrcIP belong to the remote peer, DstPort/DstIP to us,
// matching the orientation of the inbound segments.
type Connection struct {
	SrcPort uint16
	DstPort uint16
	SrcIP   [4]byte
	DstIP   [4]byte

	State State
	// NextSeq is the next sequence number this side will send.
	// SYN and FIN each consume one number, data consumes its length,
	// pure ACKs consume none.
	NextSeq uint32
	// NextAck is the acknowledgment number carried by the next
	// outbound segment that is not answering a specific inbound one
	// (application writes).
	NextAck uint32

	// Payload carries the data of the segment that made the
	// connection application-visible. Set only on the snapshot handed
	// out through Accept.
	Payload []byte
}

func (c *Connection) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d -> :%d state=%s",
		c.SrcIP[0], c.SrcIP[1], c.SrcIP[2], c.SrcIP[3], c.SrcPort, c.DstPort, c.State)
}

// table is the connection table, the only shared mutable structure in
// the stack. By default connections are keyed by the (src port, dst
// port) pair alone; fullTuple adds both addresses to the key.
type table struct {
	mu        sync.Mutex
	conns     []*Connection
	fullTuple bool
}

func newTable(fullTuple bool) *table {
	return &table{fullTuple: fullTuple}
}

func (t *table) match(c *Connection, seg *Segment) bool {
	if c.SrcPort != seg.Header.SrcPort || c.DstPort != seg.Header.DstPort {
		return false
	}
	if t.fullTuple {
		return c.SrcIP == seg.IPHeader.SrcIP && c.DstIP == seg.IPHeader.DstIP
	}
	return true
}

// ensure sweeps closed entries, then returns the connection for seg,
// creating it in Listen state when the segment is the first for its
// key.
func (t *table) ensure(seg *Segment) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Closed connections are garbage-collected lazily, on the next
	// lookup rather than at close time.
	kept := t.conns[:0]
	for _, c := range t.conns {
		if c.State != StateClosed {
			kept = append(kept, c)
		}
	}
	t.conns = kept
	metrics.ConnectionsOpen.Set(float64(len(t.conns)))

	for _, c := range t.conns {
		if t.match(c, seg) {
			return c
		}
	}

	conn := &Connection{
		SrcPort: seg.Header.SrcPort,
		DstPort: seg.Header.DstPort,
		SrcIP:   seg.IPHeader.SrcIP,
		DstIP:   seg.IPHeader.DstIP,
		State:   StateListen,
	}
	t.conns = append(t.conns, conn)
	metrics.ConnectionsOpen.Set(float64(len(t.conns)))
	return conn
}

// size returns the live entry count.
func (t *table) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
