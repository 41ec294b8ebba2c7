package model

import (
	"cmp"
	"net/netip"
)

// FlowKey identifies a conversation. It is directional as stored: Addr1/Port1 is the side
// that sent the first packet observed for the conversation.
type FlowKey struct {
	Addr1 netip.Addr
	Addr2 netip.Addr
	Port1 Port
	Port2 Port
	Proto Protocol
}

// Reverse returns the key for the opposite physical direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{
		Addr1: k.Addr2,
		Addr2: k.Addr1,
		Port1: k.Port2,
		Port2: k.Port1,
		Proto: k.Proto,
	}
}

// Compare orders keys by Addr1, Addr2, Port1, Port2 and Proto.
func (k FlowKey) Compare(o FlowKey) int {
	if c := k.Addr1.Compare(o.Addr1); c != 0 {
		return c
	}
	if c := k.Addr2.Compare(o.Addr2); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Port1, o.Port1); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Port2, o.Port2); c != 0 {
		return c
	}
	return cmp.Compare(k.Proto, o.Proto)
}

// FlowStats holds the counters of one conversation for the current window.
type FlowStats struct {
	BytesTx   uint64
	BytesRx   uint64
	PacketsTx uint64
	PacketsRx uint64
}

// IsZero reports whether all four counters are zero.
func (s FlowStats) IsZero() bool {
	return s.BytesTx == 0 && s.BytesRx == 0 && s.PacketsTx == 0 && s.PacketsRx == 0
}

// Bytes returns the bytes seen in both directions.
func (s FlowStats) Bytes() uint64 {
	return s.BytesTx + s.BytesRx
}

// Packets returns the packets seen in both directions.
func (s FlowStats) Packets() uint64 {
	return s.PacketsTx + s.PacketsRx
}

// Entry is one flow table row.
type Entry struct {
	Key   FlowKey
	Stats FlowStats
}

// Snapshot is a point-in-time copy of the flow table.
type Snapshot []Entry
