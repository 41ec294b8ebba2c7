package probe

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nettop/internal/model"
	"nettop/internal/testutil"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSink struct {
	frames []model.Frame
}

func (s *sliceSink) Enqueue(f model.Frame) bool {
	s.frames = append(s.frames, f)
	return true
}

type scriptedSource struct {
	errs []error
}

func (s *scriptedSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if len(s.errs) == 0 {
		return []byte{0x01}, gopacket.CaptureInfo{}, nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return nil, gopacket.CaptureInfo{}, err
}

func (s *scriptedSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func openPcap(t *testing.T, frames []model.Frame) *pcapgo.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, testutil.WritePcap(path, frames))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	return r
}

func TestPump_ReadsUntilEOF(t *testing.T) {
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	src := openPcap(t, []model.Frame{
		testutil.At(base, 0, testutil.TCP("10.0.0.1", "10.0.0.2", 1234, 80, 60)),
		testutil.At(base, 10*time.Millisecond, testutil.UDP("10.0.0.1", "10.0.0.3", 5000, 53, 20)),
		testutil.At(base, 20*time.Millisecond, testutil.ARP()),
	})
	require.NoError(t, CheckLinkType(src))

	sink := &sliceSink{}
	require.NoError(t, Pump(context.Background(), src, sink))
	require.Len(t, sink.frames, 3)
	assert.True(t, sink.frames[1].Timestamp.Equal(base.Add(10*time.Millisecond)))
	assert.Len(t, sink.frames[0].Data, 14+20+20+60)
}

func TestPump_TimeoutsAreSkipped(t *testing.T) {
	src := &scriptedSource{errs: []error{pcap.NextErrorTimeoutExpired, io.EOF}}
	sink := &sliceSink{}
	require.NoError(t, Pump(context.Background(), src, sink))
	assert.Empty(t, sink.frames)
}

func TestPump_ReadError(t *testing.T) {
	src := &scriptedSource{errs: []error{errors.New("device went away")}}
	err := Pump(context.Background(), src, &sliceSink{})
	assert.ErrorContains(t, err, "device went away")
}

func TestPump_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &sliceSink{}
	require.NoError(t, Pump(ctx, &scriptedSource{}, sink))
	assert.Empty(t, sink.frames)
}

func TestCheckLinkType_RejectsNonEthernet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeRaw))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)

	assert.ErrorIs(t, CheckLinkType(r), ErrCaptureSetup)
}
