package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/ipv4"
)

// fakeIPManager stands in for the IP layer: both sides are channels.
type fakeIPManager struct {
	in  chan *ipv4.IPPacket
	out chan *ipv4.IPPacket
}

func newFakeIPManager() *fakeIPManager {
	return &fakeIPManager{
		in:  make(chan *ipv4.IPPacket, 16),
		out: make(chan *ipv4.IPPacket, 16),
	}
}

func (f *fakeIPManager) Read() (*ipv4.IPPacket, error) {
	pkt, ok := <-f.in
	if !ok {
		return nil, core.ErrStackStopped
	}
	return pkt, nil
}

func (f *fakeIPManager) Write(pkt *ipv4.IPPacket) error {
	f.out <- pkt
	return nil
}

var (
	peerIP  = [4]byte{192, 0, 2, 1}
	localIP = [4]byte{192, 0, 2, 2}
)

// frame builds a checksummed inbound frame the way a remote peer
// would, using the stack's own codecs.
func frame(t *testing.T, srcPort, dstPort uint16, seq, ack uint32, flags Flags, payload []byte) *ipv4.IPPacket {
	t.Helper()
	return frameFrom(t, peerIP, srcPort, dstPort, seq, ack, flags, payload)
}

func frameFrom(t *testing.T, src [4]byte, srcPort, dstPort uint16, seq, ack uint32, flags Flags, payload []byte) *ipv4.IPPacket {
	t.Helper()
	ipHeader := ipv4.NewHeader(src, localIP, HeaderLength+len(payload))
	tcpHeader := NewHeader(srcPort, dstPort, seq, ack, flags)

	raw := ipHeader.Marshal()
	raw = append(raw, tcpHeader.Marshal(ipHeader, payload)...)
	raw = append(raw, payload...)

	parsed, err := ipv4.ParseHeader(raw)
	require.NoError(t, err)
	return &ipv4.IPPacket{Header: parsed, Packet: &core.Packet{Data: raw}}
}

// expectSegment waits for one outbound frame and parses its TCP header.
func expectSegment(t *testing.T, fake *fakeIPManager) (Header, []byte) {
	t.Helper()
	select {
	case pkt := <-fake.out:
		h, err := ParseHeader(pkt.Payload())
		require.NoError(t, err)
		payload := pkt.Payload()[h.HeaderLen():]
		return h, payload
	case <-time.After(time.Second):
		t.Fatal("expected an outbound segment, got none")
		return Header{}, nil
	}
}

func expectNoSegment(t *testing.T, fake *fakeIPManager) {
	t.Helper()
	select {
	case pkt := <-fake.out:
		h, _ := ParseHeader(pkt.Payload())
		t.Fatalf("expected no outbound segment, got %s", h.Flags)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectNoAccept(t *testing.T, m *PacketManager) {
	t.Helper()
	select {
	case conn := <-m.accepted:
		t.Fatalf("expected no accepted connection, got %s", conn.String())
	case <-time.After(50 * time.Millisecond):
	}
}

func startManager(t *testing.T, fullTuple bool) (*PacketManager, *fakeIPManager) {
	t.Helper()
	fake := newFakeIPManager()
	m := NewPacketManager(10, fullTuple)
	m.ManageQueue(fake)
	m.Listen()
	t.Cleanup(func() {
		close(fake.in)
		m.Stop()
	})
	return m, fake
}

func TestPassiveOpenEndToEnd(t *testing.T) {
	m, fake := startManager(t, false)
	request := []byte("GET / HTTP/1.1\r\n\r\n")

	// SYN: expect SYN|ACK with ack = seq+1 and our initial seq 0.
	fake.in <- frame(t, 12345, 80, 100, 0, FlagSYN, nil)
	reply, payload := expectSegment(t, fake)
	assert.Equal(t, FlagSYN|FlagACK, reply.Flags)
	assert.Equal(t, uint32(101), reply.Ack)
	assert.Equal(t, uint32(0), reply.Seq)
	assert.Equal(t, uint16(80), reply.SrcPort)
	assert.Equal(t, uint16(12345), reply.DstPort)
	assert.Empty(t, payload)

	// Handshake ACK: no reply, and accept must not fire yet.
	fake.in <- frame(t, 12345, 80, 101, 1, FlagACK, nil)
	expectNoSegment(t, fake)
	expectNoAccept(t, m)

	// PSH with the request: expect an ACK advancing by the payload
	// length, with our seq advanced past the SYN.
	fake.in <- frame(t, 12345, 80, 101, 1, FlagPSH|FlagACK, request)
	reply, _ = expectSegment(t, fake)
	assert.Equal(t, FlagACK, reply.Flags)
	assert.Equal(t, uint32(101)+uint32(len(request)), reply.Ack)
	assert.Equal(t, uint32(1), reply.Seq)

	// The connection surfaces through Accept with the request bytes.
	conn, err := m.Accept()
	require.NoError(t, err)
	assert.Equal(t, uint16(12345), conn.SrcPort)
	assert.Equal(t, uint16(80), conn.DstPort)
	assert.Equal(t, StateEstablished, conn.State)
	assert.Equal(t, request, conn.Payload)

	// FIN: expect ACK then FIN|ACK. Only the outgoing FIN|ACK counts
	// the FIN's sequence number; the plain ACK acknowledges the
	// (empty) inbound payload.
	finSeq := uint32(101) + uint32(len(request))
	fake.in <- frame(t, 12345, 80, finSeq, 1, FlagFIN|FlagACK, nil)
	reply, _ = expectSegment(t, fake)
	assert.Equal(t, FlagACK, reply.Flags)
	assert.Equal(t, finSeq, reply.Ack)
	reply, _ = expectSegment(t, fake)
	assert.Equal(t, FlagFIN|FlagACK, reply.Flags)
	assert.Equal(t, finSeq+1, reply.Ack)
	assert.Equal(t, uint32(1), reply.Seq)

	// Final ACK: silence, the connection is Closed and will be swept
	// by the next lookup.
	fake.in <- frame(t, 12345, 80, finSeq+1, 2, FlagACK, nil)
	expectNoSegment(t, fake)

	fake.in <- frame(t, 54321, 80, 7, 0, FlagSYN, nil)
	expectSegment(t, fake)
	assert.Equal(t, 1, m.table.size(), "closed connection should be garbage-collected on the next lookup")
}

func TestSequenceNumberLaw(t *testing.T) {
	m, fake := startManager(t, false)

	// Establish and surface a connection.
	fake.in <- frame(t, 12345, 80, 0, 0, FlagSYN, nil)
	expectSegment(t, fake)
	fake.in <- frame(t, 12345, 80, 1, 1, FlagACK, nil)
	fake.in <- frame(t, 12345, 80, 1, 1, FlagPSH|FlagACK, []byte("x"))
	expectSegment(t, fake)

	conn, err := m.Accept()
	require.NoError(t, err)
	require.Equal(t, uint32(1), conn.NextSeq, "SYN consumes exactly one sequence number")

	// Each write advances the sequence number by its payload length,
	// never skipping or repeating.
	payloads := [][]byte{[]byte("hello"), []byte("wo"), []byte("rld!")}
	want := conn.NextSeq
	for _, p := range payloads {
		require.NoError(t, m.Write(&conn, FlagPSH|FlagACK, p))
		h, body := expectSegment(t, fake)
		assert.Equal(t, want, h.Seq)
		assert.Equal(t, p, body)
		want += uint32(len(p))
		assert.Equal(t, want, conn.NextSeq)
	}
}

func TestWriteAddressesPeer(t *testing.T) {
	m, fake := startManager(t, false)

	fake.in <- frame(t, 12345, 80, 10, 0, FlagSYN, nil)
	expectSegment(t, fake)
	fake.in <- frame(t, 12345, 80, 11, 1, FlagACK, nil)
	fake.in <- frame(t, 12345, 80, 11, 1, FlagPSH|FlagACK, []byte("ping"))
	expectSegment(t, fake)

	conn, err := m.Accept()
	require.NoError(t, err)

	require.NoError(t, m.Write(&conn, FlagPSH|FlagACK, []byte("pong")))
	select {
	case pkt := <-fake.out:
		assert.Equal(t, localIP, pkt.Header.SrcIP)
		assert.Equal(t, peerIP, pkt.Header.DstIP)
		h, err := ParseHeader(pkt.Payload())
		require.NoError(t, err)
		assert.Equal(t, uint16(80), h.SrcPort)
		assert.Equal(t, uint16(12345), h.DstPort)
		assert.Equal(t, uint32(15), h.Ack, "write acknowledges everything received so far")
	case <-time.After(time.Second):
		t.Fatal("write never produced a segment")
	}
}

func TestBadChecksumSegmentIsDropped(t *testing.T) {
	m, fake := startManager(t, false)

	pkt := frame(t, 12345, 80, 0, 0, FlagSYN, nil)
	pkt.Packet.Data[len(pkt.Packet.Data)-1] ^= 0xFF
	fake.in <- pkt
	expectNoSegment(t, fake)
	assert.Equal(t, 0, m.table.size(), "corrupted segment must not create state")

	// An intact SYN afterwards proceeds normally.
	fake.in <- frame(t, 12345, 80, 0, 0, FlagSYN, nil)
	reply, _ := expectSegment(t, fake)
	assert.Equal(t, FlagSYN|FlagACK, reply.Flags)
}

func TestUnexpectedSegmentLeavesStateAlone(t *testing.T) {
	m, fake := startManager(t, false)

	// A bare ACK for an unknown connection creates a Listen entry but
	// triggers no transition and no reply.
	fake.in <- frame(t, 2000, 80, 5, 0, FlagACK, nil)
	expectNoSegment(t, fake)
	expectNoAccept(t, m)
	assert.Equal(t, 1, m.table.size())
}

func TestConnectionIdentityModes(t *testing.T) {
	otherIP := [4]byte{203, 0, 113, 9}

	t.Run("port pair only", func(t *testing.T) {
		m, fake := startManager(t, false)
		fake.in <- frame(t, 12345, 80, 0, 0, FlagSYN, nil)
		expectSegment(t, fake)
		// Same ports from a different address hit the same entry: the
		// SYN is unexpected in SynReceived.
		fake.in <- frameFrom(t, otherIP, 12345, 80, 0, 0, FlagSYN, nil)
		expectNoSegment(t, fake)
		assert.Equal(t, 1, m.table.size())
	})

	t.Run("full tuple", func(t *testing.T) {
		m, fake := startManager(t, true)
		fake.in <- frame(t, 12345, 80, 0, 0, FlagSYN, nil)
		expectSegment(t, fake)
		// A different peer address is a distinct connection.
		fake.in <- frameFrom(t, otherIP, 12345, 80, 0, 0, FlagSYN, nil)
		reply, _ := expectSegment(t, fake)
		assert.Equal(t, FlagSYN|FlagACK, reply.Flags)
		assert.Equal(t, 2, m.table.size())
	})
}

func TestAcceptAfterStop(t *testing.T) {
	fake := newFakeIPManager()
	m := NewPacketManager(10, false)
	m.ManageQueue(fake)
	m.Listen()

	close(fake.in)
	m.Stop()

	_, err := m.Accept()
	assert.ErrorIs(t, err, core.ErrStackStopped)
}
