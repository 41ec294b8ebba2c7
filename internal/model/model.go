package model

import (
	"net/netip"
	"strconv"
	"time"
)

// Protocol is the upper-layer protocol tag of a flow.
type Protocol uint8

// Supported upper-layer protocols, numbered as in the IP protocol field.
const (
	ProtocolICMP   Protocol = 1
	ProtocolTCP    Protocol = 6
	ProtocolUDP    Protocol = 17
	ProtocolICMPv6 Protocol = 58
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolICMP:
		return "icmp"
	case ProtocolICMPv6:
		return "icmp6"
	}
	return strconv.Itoa(int(p))
}

// HasPorts reports whether flows of this protocol are keyed by port numbers.
func (p Protocol) HasPorts() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// Port is a transport port number, or NoPort for protocols without ports.
type Port int32

// NoPort marks the port fields of ICMP and ICMPv6 flows.
const NoPort Port = -1

// Valid reports whether p carries a real port number.
func (p Port) Valid() bool {
	return p >= 0
}

func (p Port) String() string {
	if !p.Valid() {
		return ""
	}
	return strconv.Itoa(int(p))
}

// Record is the normalized form of one decoded frame.
type Record struct {
	Timestamp  time.Time
	SrcAddr    netip.Addr
	DstAddr    netip.Addr
	SrcPort    Port
	DstPort    Port
	Proto      Protocol
	WireLength uint64
}

// Key returns the flow key in the direction the record travelled.
func (r Record) Key() FlowKey {
	return FlowKey{
		Addr1: r.SrcAddr,
		Addr2: r.DstAddr,
		Port1: r.SrcPort,
		Port2: r.DstPort,
		Proto: r.Proto,
	}
}

// Frame is a raw link-layer frame as delivered by a capture source.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}
