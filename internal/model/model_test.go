package model

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol(t *testing.T) {
	assert.Equal(t, "tcp", ProtocolTCP.String())
	assert.Equal(t, "udp", ProtocolUDP.String())
	assert.Equal(t, "icmp", ProtocolICMP.String())
	assert.Equal(t, "icmp6", ProtocolICMPv6.String())
	assert.Equal(t, "47", Protocol(47).String())

	assert.True(t, ProtocolTCP.HasPorts())
	assert.True(t, ProtocolUDP.HasPorts())
	assert.False(t, ProtocolICMP.HasPorts())
	assert.False(t, ProtocolICMPv6.HasPorts())
}

func TestPort(t *testing.T) {
	assert.True(t, Port(0).Valid())
	assert.Equal(t, "0", Port(0).String())
	assert.Equal(t, "65535", Port(65535).String())
	assert.False(t, NoPort.Valid())
	assert.Empty(t, NoPort.String())
}

func TestFlowKey_Reverse(t *testing.T) {
	k := FlowKey{
		Addr1: netip.MustParseAddr("10.0.0.1"), Port1: 1234,
		Addr2: netip.MustParseAddr("10.0.0.2"), Port2: 80,
		Proto: ProtocolTCP,
	}
	r := k.Reverse()
	assert.Equal(t, k.Addr2, r.Addr1)
	assert.Equal(t, k.Port2, r.Port1)
	assert.Equal(t, ProtocolTCP, r.Proto)
	assert.Equal(t, k, r.Reverse())
	assert.NotEqual(t, k, r)
}

func TestFlowKey_Compare(t *testing.T) {
	base := FlowKey{
		Addr1: netip.MustParseAddr("10.0.0.1"), Port1: 1234,
		Addr2: netip.MustParseAddr("10.0.0.2"), Port2: 80,
		Proto: ProtocolTCP,
	}
	assert.Zero(t, base.Compare(base))

	tests := []struct {
		name   string
		mutate func(*FlowKey)
	}{
		{"addr1", func(k *FlowKey) { k.Addr1 = netip.MustParseAddr("10.0.0.9") }},
		{"addr2", func(k *FlowKey) { k.Addr2 = netip.MustParseAddr("10.0.0.9") }},
		{"port1", func(k *FlowKey) { k.Port1 = 2000 }},
		{"port2", func(k *FlowKey) { k.Port2 = 81 }},
		{"proto", func(k *FlowKey) { k.Proto = ProtocolUDP }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bigger := base
			tt.mutate(&bigger)
			assert.Negative(t, base.Compare(bigger))
			assert.Positive(t, bigger.Compare(base))
		})
	}

	// Addr1 dominates the later fields.
	a := base
	a.Addr1 = netip.MustParseAddr("10.0.0.0")
	a.Port1 = 65000
	assert.Negative(t, a.Compare(base))
}

func TestFlowStats(t *testing.T) {
	assert.True(t, FlowStats{}.IsZero())
	s := FlowStats{BytesTx: 150, PacketsTx: 2, BytesRx: 200, PacketsRx: 1}
	assert.False(t, s.IsZero())
	assert.Equal(t, uint64(350), s.Bytes())
	assert.Equal(t, uint64(3), s.Packets())
	assert.False(t, FlowStats{PacketsRx: 1}.IsZero())
}

func TestParseSortMode(t *testing.T) {
	m, err := ParseSortMode("b")
	require.NoError(t, err)
	assert.Equal(t, SortBytes, m)
	assert.Equal(t, "b", m.String())

	m, err = ParseSortMode("p")
	require.NoError(t, err)
	assert.Equal(t, SortPackets, m)

	for _, bad := range []string{"", "B", "bytes", "x"} {
		_, err := ParseSortMode(bad)
		assert.Error(t, err, bad)
	}
}
