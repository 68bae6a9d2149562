// Package netdev bridges a TUN interface to the in-process packet queues.
package netdev

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/log"
	"github.com/nissy-dev/tunstack/internal/metrics"
)

const tunPath = "/dev/net/tun"

// Device owns the TUN file handle and the two bounded queues at the
// bottom of the pipeline. One goroutine pumps frames from the device
// into incoming, another drains outgoing back to the device.
type Device struct {
	rw      io.ReadWriter
	bufSize int

	incoming chan *core.Packet
	outgoing chan *core.Packet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger
}

// Open opens /dev/net/tun and attaches it to the named interface as a
// point-to-point IPv4 tunnel without the packet-information prefix.
func Open(name string, queueCap, bufSize int) (*Device, error) {
	f, err := os.OpenFile(tunPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", tunPath, err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("invalid interface name %q: %w", name, err)
	}
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(int(f.Fd()), unix.TUNSETIFF, ifr); err != nil {
		f.Close()
		return nil, fmt.Errorf("TUNSETIFF ioctl failed for %q: %w", name, err)
	}

	log.GetLogger().WithField("interface", name).Info("TUN device attached")
	return New(f, queueCap, bufSize), nil
}

// New wraps an already-open device handle. Tests pass an in-memory
// io.ReadWriter here to run the pumps without a kernel interface.
func New(rw io.ReadWriter, queueCap, bufSize int) *Device {
	ctx, cancel := context.WithCancel(context.Background())
	return &Device{
		rw:       rw,
		bufSize:  bufSize,
		incoming: make(chan *core.Packet, queueCap),
		outgoing: make(chan *core.Packet, queueCap),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.GetLogger().WithField("component", "netdev"),
	}
}

// Bind starts the reader and writer pumps.
func (d *Device) Bind() {
	d.wg.Add(2)
	go d.readLoop()
	go d.writeLoop()
}

func (d *Device) readLoop() {
	defer d.wg.Done()
	buf := make([]byte, d.bufSize)
	for {
		n, err := d.rw.Read(buf)
		if err != nil {
			if d.ctx.Err() != nil || err == io.EOF {
				return
			}
			// Device I/O failures indicate misconfiguration, not a
			// transient network condition. Nothing to recover.
			d.logger.WithError(err).Fatal("failed to read from TUN device")
		}
		pkt := core.NewPacket(buf, n)
		metrics.PacketsTotal.WithLabelValues("in").Inc()
		select {
		case d.incoming <- pkt:
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Device) writeLoop() {
	defer d.wg.Done()
	for {
		select {
		case pkt := <-d.outgoing:
			if _, err := d.rw.Write(pkt.Data); err != nil {
				if d.ctx.Err() != nil {
					return
				}
				d.logger.WithError(err).Fatal("failed to write to TUN device")
			}
			metrics.PacketsTotal.WithLabelValues("out").Inc()
		case <-d.ctx.Done():
			return
		}
	}
}

// Read blocks until one inbound frame is available.
func (d *Device) Read() (*core.Packet, error) {
	select {
	case pkt := <-d.incoming:
		return pkt, nil
	case <-d.ctx.Done():
		return nil, core.ErrStackStopped
	}
}

// Write queues one frame for transmission, blocking while the outbound
// queue is full.
func (d *Device) Write(pkt *core.Packet) error {
	select {
	case d.outgoing <- pkt:
		return nil
	case <-d.ctx.Done():
		return core.ErrStackStopped
	}
}

// Stop cancels both pumps. The reader may stay blocked inside the read
// syscall until the device delivers one more frame or is closed; every
// channel operation observes the cancellation immediately.
func (d *Device) Stop() {
	d.cancel()
	if c, ok := d.rw.(io.Closer); ok {
		c.Close()
	}
	d.wg.Wait()
}
