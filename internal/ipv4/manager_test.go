package ipv4

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissy-dev/tunstack/internal/core"
)

// fakeDevice stands in for the TUN device: both sides are channels.
type fakeDevice struct {
	in  chan *core.Packet
	out chan *core.Packet
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		in:  make(chan *core.Packet, 16),
		out: make(chan *core.Packet, 16),
	}
}

func (d *fakeDevice) Read() (*core.Packet, error) {
	pkt, ok := <-d.in
	if !ok {
		return nil, core.ErrStackStopped
	}
	return pkt, nil
}

func (d *fakeDevice) Write(pkt *core.Packet) error {
	d.out <- pkt
	return nil
}

func TestManagerParsesInboundFrames(t *testing.T) {
	dev := newFakeDevice()
	m := NewPacketManager(10)
	m.ManageQueue(dev)
	defer func() {
		close(dev.in)
		m.Stop()
	}()

	h := NewHeader([4]byte{192, 0, 2, 1}, [4]byte{192, 0, 2, 2}, 2)
	raw := append(h.Marshal(), 0xCA, 0xFE)
	dev.in <- &core.Packet{Data: raw}

	got, err := m.Read()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), got.Header.Version)
	assert.Equal(t, [4]byte{192, 0, 2, 1}, got.Header.SrcIP)
	assert.Equal(t, []byte{0xCA, 0xFE}, got.Payload())
}

func TestManagerForwardsOutboundBytes(t *testing.T) {
	dev := newFakeDevice()
	m := NewPacketManager(10)
	m.ManageQueue(dev)
	defer func() {
		close(dev.in)
		m.Stop()
	}()

	h := NewHeader([4]byte{192, 0, 2, 2}, [4]byte{192, 0, 2, 1}, 0)
	pkt := &core.Packet{Data: h.Marshal()}
	require.NoError(t, m.Write(&IPPacket{Header: h, Packet: pkt}))

	select {
	case out := <-dev.out:
		assert.Equal(t, pkt.Data, out.Data)
	case <-time.After(time.Second):
		t.Fatal("outbound frame never reached the device")
	}
}

func TestManagerReadAfterStop(t *testing.T) {
	dev := newFakeDevice()
	m := NewPacketManager(10)
	m.ManageQueue(dev)

	// Closing the device side lets the read pump exit so Stop can
	// join it.
	close(dev.in)
	m.Stop()
	_, err := m.Read()
	assert.ErrorIs(t, err, core.ErrStackStopped)
}
