package tcp

import (
	"context"
	"sync"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/ipv4"
	"github.com/nissy-dev/tunstack/internal/log"
	"github.com/nissy-dev/tunstack/internal/metrics"
)

// Segment pairs the parsed IP and TCP headers with the raw frame.
type Segment struct {
	IPHeader ipv4.Header
	Header   Header
	Packet   *core.Packet
}

// PayloadLen is the TCP payload length derived from the frame, not
// from the IP total-length field.
func (s *Segment) PayloadLen() int {
	return s.Packet.Len() - s.IPHeader.HeaderLen() - s.Header.HeaderLen()
}

// Payload returns the application bytes of the segment.
func (s *Segment) Payload() []byte {
	return s.Packet.Data[s.IPHeader.HeaderLen()+s.Header.HeaderLen():]
}

// IPManager is the layer below: the IP packet manager.
type IPManager interface {
	Read() (*ipv4.IPPacket, error)
	Write(*ipv4.IPPacket) error
}

// PacketManager drives the TCP state machine. Two pump goroutines
// translate IP packets to segments and back; one handler goroutine
// walks the passive-open state machine; Accept hands established
// connections to the application.
type PacketManager struct {
	table    *table
	incoming chan *Segment
	outgoing chan *Segment
	accepted chan Connection

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger
}

// NewPacketManager creates a manager with the given queue capacity.
// fullTuple selects 4-tuple connection identity instead of the
// default (src port, dst port) pair.
func NewPacketManager(queueCap int, fullTuple bool) *PacketManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &PacketManager{
		table:    newTable(fullTuple),
		incoming: make(chan *Segment, queueCap),
		outgoing: make(chan *Segment, queueCap),
		accepted: make(chan Connection, queueCap),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.GetLogger().WithField("component", "tcp"),
	}
}

// ManageQueue starts the two pump goroutines against the IP manager.
func (m *PacketManager) ManageQueue(ip IPManager) {
	m.wg.Add(2)
	go m.readLoop(ip)
	go m.writeLoop(ip)
}

func (m *PacketManager) readLoop(ip IPManager) {
	defer m.wg.Done()
	for {
		pkt, err := ip.Read()
		if err != nil {
			return
		}
		header, err := ParseHeader(pkt.Payload())
		if err != nil {
			m.logger.WithError(err).Fatalf("truncated TCP segment (%d bytes)", pkt.Packet.Len())
		}
		// A failed checksum is the one anomaly that originates from
		// the wire: drop the segment, let the peer retransmit.
		if !VerifyChecksum(pkt.Header, pkt.Payload()) {
			metrics.SegmentsTotal.WithLabelValues("bad_checksum").Inc()
			m.logger.WithError(core.ErrBadChecksum).WithFields(map[string]interface{}{
				"src_port": header.SrcPort,
				"dst_port": header.DstPort,
			}).Warn("dropping segment")
			continue
		}
		seg := &Segment{IPHeader: pkt.Header, Header: header, Packet: pkt.Packet}
		select {
		case m.incoming <- seg:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *PacketManager) writeLoop(ip IPManager) {
	defer m.wg.Done()
	for {
		select {
		case seg := <-m.outgoing:
			if err := ip.Write(&ipv4.IPPacket{Header: seg.IPHeader, Packet: seg.Packet}); err != nil {
				return
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// Listen starts the handler goroutine that walks the passive-open
// state machine for every inbound segment.
func (m *PacketManager) Listen() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			seg, err := m.nextSegment()
			if err != nil {
				return
			}
			m.passiveHandle(seg)
		}
	}()
}

func (m *PacketManager) nextSegment() (*Segment, error) {
	select {
	case seg := <-m.incoming:
		return seg, nil
	case <-m.ctx.Done():
		return nil, core.ErrStackStopped
	}
}

// passiveHandle applies one inbound segment to its connection. The
// table lock is only held for the lookup; all mutation happens on
// this single goroutine, so the connection itself needs no lock, and
// a blocking send cannot stall table access from Accept callers.
func (m *PacketManager) passiveHandle(seg *Segment) {
	conn := m.table.ensure(seg)

	m.logger.WithFields(map[string]interface{}{
		"state": conn.State.String(),
		"flags": seg.Header.Flags.String(),
	}).Debug("handling segment")

	steps, accepted, handled := transition(conn.State, seg.Header.Flags)
	if !handled {
		metrics.SegmentsTotal.WithLabelValues("unexpected").Inc()
		m.logger.WithFields(map[string]interface{}{
			"state": conn.State.String(),
			"flags": seg.Header.Flags.String(),
		}).Info("unexpected condition")
		return
	}
	metrics.SegmentsTotal.WithLabelValues("ok").Inc()

	for _, st := range steps {
		if st.send != 0 {
			if err := m.reply(conn, seg, st.send); err != nil {
				return
			}
		}
		conn.State = st.enter
		m.logger.WithField("state", conn.State.String()).Debug("connection state changed")
	}

	if accepted {
		snapshot := *conn
		snapshot.Payload = append([]byte(nil), seg.Payload()...)
		select {
		case m.accepted <- snapshot:
			metrics.ConnectionsAccepted.Inc()
		case <-m.ctx.Done():
		}
	}
}

// reply builds and sends the response to one inbound segment. The
// acknowledgment number follows the TCP contract: SYN and FIN on the
// outbound segment acknowledge one sequence number, anything else
// acknowledges the inbound payload length.
func (m *PacketManager) reply(conn *Connection, in *Segment, flags Flags) error {
	var inc uint32
	if flags.Has(FlagSYN | FlagFIN) {
		inc = 1
	} else {
		inc = uint32(in.PayloadLen())
	}
	ack := in.Header.Seq + inc
	return m.send(conn, in.IPHeader.DstIP, in.IPHeader.SrcIP, in.Header.DstPort, in.Header.SrcPort, ack, flags, nil)
}

// send serializes one outbound segment and queues it toward the IP
// layer, then advances the connection's sequence number.
func (m *PacketManager) send(conn *Connection, srcIP, dstIP [4]byte, srcPort, dstPort uint16, ack uint32, flags Flags, data []byte) error {
	ipHeader := ipv4.NewHeader(srcIP, dstIP, HeaderLength+len(data))
	tcpHeader := NewHeader(srcPort, dstPort, conn.NextSeq, ack, flags)

	raw := ipHeader.Marshal()
	raw = append(raw, tcpHeader.Marshal(ipHeader, data)...)
	raw = append(raw, data...)

	seg := &Segment{
		IPHeader: ipHeader,
		Header:   tcpHeader,
		Packet:   &core.Packet{Data: raw},
	}
	m.logger.WithFields(map[string]interface{}{
		"flags": flags.String(),
		"seq":   tcpHeader.Seq,
		"ack":   tcpHeader.Ack,
		"len":   len(data),
	}).Debug("sending segment")

	select {
	case m.outgoing <- seg:
	case <-m.ctx.Done():
		return core.ErrStackStopped
	}

	conn.NextAck = ack
	if flags.Has(FlagSYN | FlagFIN) {
		conn.NextSeq++
	} else {
		conn.NextSeq += uint32(len(data))
	}
	return nil
}

// Accept blocks until a connection has received its first data
// segment, then returns a snapshot of it. The snapshot's Payload
// holds that segment's data.
func (m *PacketManager) Accept() (Connection, error) {
	select {
	case conn := <-m.accepted:
		return conn, nil
	case <-m.ctx.Done():
		return Connection{}, core.ErrStackStopped
	}
}

// Write pushes application payload to the peer of conn with the given
// flags (the HTTP layer uses PSH|ACK).
func (m *PacketManager) Write(conn *Connection, flags Flags, data []byte) error {
	if conn.State == StateClosed {
		return core.ErrConnectionClosed
	}
	return m.send(conn, conn.DstIP, conn.SrcIP, conn.DstPort, conn.SrcPort, conn.NextAck, flags, data)
}

// Stop cancels all goroutines belonging to this manager.
func (m *PacketManager) Stop() {
	m.cancel()
	m.wg.Wait()
}
