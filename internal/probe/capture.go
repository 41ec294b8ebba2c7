// Package probe captures frames from a network interface and carries reports over NATS.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"nettop/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"
)

// ErrCaptureSetup reports that the capture source could not be opened or is unusable.
var ErrCaptureSetup = errors.New("capture setup failed")

// PacketSource is satisfied by *pcap.Handle and *pcapgo.Reader.
type PacketSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// FrameSink accepts captured frames. Enqueue must not block.
type FrameSink interface {
	Enqueue(f model.Frame) bool
}

// Options configures a live capture.
type Options struct {
	Interface   string
	SnapshotLen int32
	Promiscuous bool
	ReadTimeout time.Duration
}

// Capture is a live capture on one interface.
type Capture struct {
	handle *pcap.Handle
	iface  string
	log    logrus.FieldLogger
}

// Open starts a live capture. The read timeout keeps Run responsive to cancellation on an
// idle link.
func Open(opts Options, log logrus.FieldLogger) (*Capture, error) {
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	handle, err := pcap.OpenLive(opts.Interface, opts.SnapshotLen, opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: error opening device %s: %v", ErrCaptureSetup, opts.Interface, err)
	}
	if err := CheckLinkType(handle); err != nil {
		handle.Close()
		return nil, fmt.Errorf("%s: %w", opts.Interface, err)
	}

	log.WithFields(logrus.Fields{
		"interface":   opts.Interface,
		"snaplen":     opts.SnapshotLen,
		"promiscuous": opts.Promiscuous,
	}).Info("Capture started")
	return &Capture{handle: handle, iface: opts.Interface, log: log}, nil
}

// Run feeds captured frames to sink until ctx is done.
func (c *Capture) Run(ctx context.Context, sink FrameSink) error {
	return Pump(ctx, c.handle, sink)
}

// Close logs the kernel drop counters and releases the handle.
func (c *Capture) Close() {
	if stats, err := c.handle.Stats(); err == nil {
		c.log.WithFields(logrus.Fields{
			"received":          stats.PacketsReceived,
			"dropped":           stats.PacketsDropped,
			"interface_dropped": stats.PacketsIfDropped,
		}).Info("Capture closed")
	}
	c.handle.Close()
}

// CheckLinkType accepts only Ethernet sources.
func CheckLinkType(src PacketSource) error {
	if lt := src.LinkType(); lt != layers.LinkTypeEthernet {
		return fmt.Errorf("%w: unsupported link type %s, only Ethernet is supported", ErrCaptureSetup, lt)
	}
	return nil
}

// Pump reads frames from src into sink until ctx is done or the source is exhausted. Read
// timeouts are not errors.
func Pump(ctx context.Context, src PacketSource, sink FrameSink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, ci, err := src.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return fmt.Errorf("failed to read packet: %w", err)
		}

		sink.Enqueue(model.Frame{Timestamp: ci.Timestamp, Data: data})
	}
}
