package ipv4

import (
	"context"
	"sync"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/log"
)

// Device is the layer below: the TUN device pumps.
type Device interface {
	Read() (*core.Packet, error)
	Write(*core.Packet) error
}

// PacketManager translates raw frames to IP packets and back. One
// goroutine per direction, bounded queues on both.
type PacketManager struct {
	incoming chan *IPPacket
	outgoing chan *IPPacket

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger
}

// NewPacketManager creates a manager with the given queue capacity.
func NewPacketManager(queueCap int) *PacketManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &PacketManager{
		incoming: make(chan *IPPacket, queueCap),
		outgoing: make(chan *IPPacket, queueCap),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.GetLogger().WithField("component", "ipv4"),
	}
}

// ManageQueue starts the two pump goroutines against the device.
func (m *PacketManager) ManageQueue(dev Device) {
	m.wg.Add(2)
	go m.readLoop(dev)
	go m.writeLoop(dev)
}

func (m *PacketManager) readLoop(dev Device) {
	defer m.wg.Done()
	for {
		pkt, err := dev.Read()
		if err != nil {
			return
		}
		header, err := ParseHeader(pkt.Data)
		if err != nil {
			// The TUN device delivers whole frames; a short one means
			// the process is broken, not the network.
			m.logger.WithError(err).Fatalf("malformed frame from TUN device (%d bytes)", pkt.Len())
		}
		ip := &IPPacket{Header: header, Packet: pkt}
		select {
		case m.incoming <- ip:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *PacketManager) writeLoop(dev Device) {
	defer m.wg.Done()
	for {
		select {
		case ip := <-m.outgoing:
			if err := dev.Write(ip.Packet); err != nil {
				return
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// Read blocks until one inbound IP packet is available.
func (m *PacketManager) Read() (*IPPacket, error) {
	select {
	case ip := <-m.incoming:
		return ip, nil
	case <-m.ctx.Done():
		return nil, core.ErrStackStopped
	}
}

// Write queues one IP packet for transmission, blocking while the
// outbound queue is full.
func (m *PacketManager) Write(ip *IPPacket) error {
	select {
	case m.outgoing <- ip:
		return nil
	case <-m.ctx.Done():
		return core.ErrStackStopped
	}
}

// Stop cancels both pumps and waits for them to exit.
func (m *PacketManager) Stop() {
	m.cancel()
	m.wg.Wait()
}
