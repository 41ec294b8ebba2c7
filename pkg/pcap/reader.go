// Package pcap replays capture files through the window controller.
package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"nettop/internal/model"
	"nettop/internal/probe"

	"github.com/google/gopacket/pcapgo"
)

// Observer is the part of the window controller a replay drives.
type Observer interface {
	Observe(f model.Frame)
	Advance(now time.Time) bool
	Flush(now time.Time)
}

// Reader reads frames from an Ethernet pcap file.
type Reader struct {
	file *os.File
	r    *pcapgo.Reader
}

// NewReader opens the pcap file at filePath.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", probe.ErrCaptureSetup, filePath, err)
	}
	if err := probe.CheckLinkType(r); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return &Reader{file: f, r: r}, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Next returns the next frame, or io.EOF at the end of the file.
func (r *Reader) Next() (model.Frame, error) {
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		return model.Frame{}, err
	}
	return model.Frame{Timestamp: ci.Timestamp, Data: data}, nil
}

// Replay feeds every frame to obs in file order. Window boundaries follow the packet
// timestamps, and the last partial window is flushed at the end of the file. It returns the
// number of frames read.
func (r *Reader) Replay(obs Observer) (int, error) {
	var (
		count int
		last  time.Time
	)
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read packet %d: %w", count+1, err)
		}

		obs.Advance(f.Timestamp)
		obs.Observe(f)
		last = f.Timestamp
		count++
	}

	if count > 0 {
		obs.Flush(last)
	}
	return count, nil
}
