package ranking

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"nettop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBits(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 "},
		{999, "999 "},
		{1000, "1K"},
		{1500, "1.5K"},
		{2_000_000, "2M"},
		{2_345_000, "2.3M"},
		{1e12, "1T"},
		{1e15, "1P"},
		{1e18, "1000P"},
		{0.5, "0.5 "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBits(tt.in), "FormatBits(%v)", tt.in)
	}
}

func TestFormatPackets(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 "},
		{999, "999 "},
		{1000, "1K"},
		{12_500, "12.5K"},
		{3e9, "3G"},
		{4e12, "4000G"},
		{2.5, "2.5 "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPackets(tt.in), "FormatPackets(%v)", tt.in)
	}
}

func TestFormatEndpoint(t *testing.T) {
	v4 := netip.MustParseAddr("10.1.2.3")
	v6 := netip.MustParseAddr("2001:db8::1")

	assert.Equal(t, "10.1.2.3:443", FormatEndpoint(v4, 443))
	assert.Equal(t, "[2001:db8::1]:53", FormatEndpoint(v6, 53))
	assert.Equal(t, "10.1.2.3", FormatEndpoint(v4, model.NoPort))
	assert.Equal(t, "[2001:db8::1]", FormatEndpoint(v6, model.NoPort))
	assert.Equal(t, "10.1.2.3:0", FormatEndpoint(v4, 0), "port zero is data, not the sentinel")
}

func entry(port model.Port, bytes, packets uint64) model.Entry {
	return model.Entry{
		Key: model.FlowKey{
			Addr1: netip.MustParseAddr("10.0.0.1"),
			Addr2: netip.MustParseAddr("10.0.0.2"),
			Port1: port,
			Port2: 80,
			Proto: model.ProtocolTCP,
		},
		Stats: model.FlowStats{BytesTx: bytes, PacketsTx: packets},
	}
}

func TestRender_ByteAndPacketOrder(t *testing.T) {
	snap := model.Snapshot{
		entry(1, 500, 3),
		entry(2, 1500, 1),
		entry(3, 1000, 2),
	}

	rows := Render(snap, model.SortBytes, time.Second, DefaultTopN)
	require.Len(t, rows, 3)
	assert.Equal(t, []uint64{1500, 1000, 500}, []uint64{rows[0].Stats.Bytes(), rows[1].Stats.Bytes(), rows[2].Stats.Bytes()})

	rows = Render(snap, model.SortPackets, time.Second, DefaultTopN)
	require.Len(t, rows, 3)
	assert.Equal(t, []uint64{3, 2, 1}, []uint64{rows[0].Stats.Packets(), rows[1].Stats.Packets(), rows[2].Stats.Packets()})

	for i, r := range rows {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRender_TieBreakIsDeterministic(t *testing.T) {
	a := model.Snapshot{entry(9, 100, 1), entry(3, 100, 1), entry(5, 100, 1)}
	b := model.Snapshot{entry(5, 100, 1), entry(9, 100, 1), entry(3, 100, 1)}

	ra := Render(a, model.SortBytes, time.Second, DefaultTopN)
	rb := Render(b, model.SortBytes, time.Second, DefaultTopN)

	require.Len(t, ra, 3)
	assert.Equal(t, ra, rb)
	assert.Equal(t, "10.0.0.1:3", ra[0].Src)
	assert.Equal(t, "10.0.0.1:9", ra[2].Src)
}

func TestRender_TopN(t *testing.T) {
	var snap model.Snapshot
	for i := 0; i < 25; i++ {
		snap = append(snap, entry(model.Port(1000+i), uint64(i+1), 1))
	}

	rows := Render(snap, model.SortBytes, time.Second, 0)
	require.Len(t, rows, DefaultTopN)
	assert.Equal(t, uint64(25), rows[0].Stats.Bytes())
	assert.Equal(t, uint64(16), rows[DefaultTopN-1].Stats.Bytes())

	assert.Len(t, Render(snap, model.SortBytes, time.Second, 3), 3)
	assert.Len(t, snap, 25, "input snapshot is not truncated")
}

func TestRender_RatesUseInterval(t *testing.T) {
	e := model.Entry{
		Key: model.FlowKey{
			Addr1: netip.MustParseAddr("fe80::1"),
			Addr2: netip.MustParseAddr("fe80::2"),
			Port1: model.NoPort,
			Port2: model.NoPort,
			Proto: model.ProtocolICMPv6,
		},
		Stats: model.FlowStats{BytesTx: 750, PacketsTx: 3, BytesRx: 250, PacketsRx: 1},
	}

	rows := Render(model.Snapshot{e}, model.SortBytes, 2*time.Second, DefaultTopN)
	require.Len(t, rows, 1)
	r := rows[0]

	assert.Equal(t, "[fe80::1]", r.Src)
	assert.Equal(t, "[fe80::2]", r.Dst)
	assert.Equal(t, "icmp6", r.Proto)
	assert.InDelta(t, 3000.0, r.TxBitRate, 1e-9)
	assert.InDelta(t, 1.5, r.TxPacketRate, 1e-9)
	assert.Equal(t, "3K", r.TxBits)
	assert.Equal(t, "1.5 ", r.TxPackets)
	assert.Equal(t, "1K", r.RxBits)
	assert.Equal(t, "0.5 ", r.RxPackets)
}

func ExampleFormatBits() {
	fmt.Printf("%q %q %q\n", FormatBits(0), FormatBits(1000), FormatBits(1500))
	// Output: "0 " "1K" "1.5K"
}
