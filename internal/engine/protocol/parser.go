package protocol

import (
	"errors"
	"fmt"
	"net/netip"

	"nettop/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ipv6HeaderLen is the fixed IPv6 header size. The IPv6 payload length field excludes it.
const ipv6HeaderLen = 40

var (
	// ErrUnsupported is returned for frames that are valid but not tracked: non-IP ethertypes,
	// non-first IPv4 fragments, IPv6 extension headers other than a leading hop-by-hop header,
	// and upper-layer protocols other than TCP, UDP, ICMP, ICMPv6.
	ErrUnsupported = errors.New("unsupported frame")
	// ErrMalformed is returned when a header is shorter than its fixed layout requires.
	ErrMalformed = errors.New("malformed frame")
)

// Decoder classifies raw Ethernet frames. It reuses its layer structs between calls and is
// therefore not safe for concurrent use; create one per goroutine.
type Decoder struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth     layers.Ethernet
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	icmp4   layers.ICMPv4
	icmp6   layers.ICMPv6
	payload gopacket.Payload
}

// NewDecoder creates a Decoder for Ethernet-framed traffic.
func NewDecoder() *Decoder {
	d := &Decoder{decoded: make([]gopacket.LayerType, 0, 4)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.ip4, &d.ip6, &d.tcp, &d.udp, &d.icmp4, &d.icmp6, &d.payload)
	return d
}

// Decode uses a throwaway Decoder; hot paths should keep their own.
func Decode(data []byte) (model.Record, error) {
	return NewDecoder().Decode(data)
}

// Decode extracts addresses, ports, protocol and wire length from a frame.
func (d *Decoder) Decode(data []byte) (model.Record, error) {
	var rec model.Record

	err := d.parser.DecodeLayers(data, &d.decoded)
	if err != nil {
		var unsupported gopacket.UnsupportedLayerType
		if !errors.As(err, &unsupported) {
			return rec, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		// Layers past the transport header (ICMPv6 bodies, for instance) are not registered
		// with the parser; what was decoded up to that point is still usable.
	}

	haveL3, haveL4, fragment := false, false, false
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			rec.SrcAddr = addrFrom(d.ip4.SrcIP)
			rec.DstAddr = addrFrom(d.ip4.DstIP)
			rec.Proto = model.Protocol(d.ip4.Protocol)
			rec.WireLength = uint64(d.ip4.Length)
			haveL3 = true
			fragment = d.ip4.Flags&layers.IPv4MoreFragments != 0 || d.ip4.FragOffset != 0
		case layers.LayerTypeIPv6:
			rec.SrcAddr = addrFrom(d.ip6.SrcIP)
			rec.DstAddr = addrFrom(d.ip6.DstIP)
			rec.Proto = model.Protocol(d.ip6.NextHeader)
			rec.WireLength = ipv6HeaderLen + uint64(d.ip6.Length)
			haveL3 = true
		case layers.LayerTypeTCP:
			rec.Proto = model.ProtocolTCP
			rec.SrcPort = model.Port(d.tcp.SrcPort)
			rec.DstPort = model.Port(d.tcp.DstPort)
			haveL4 = true
		case layers.LayerTypeUDP:
			rec.Proto = model.ProtocolUDP
			rec.SrcPort = model.Port(d.udp.SrcPort)
			rec.DstPort = model.Port(d.udp.DstPort)
			haveL4 = true
		case layers.LayerTypeICMPv4:
			rec.Proto = model.ProtocolICMP
			rec.SrcPort, rec.DstPort = model.NoPort, model.NoPort
			haveL4 = true
		case layers.LayerTypeICMPv6:
			rec.Proto = model.ProtocolICMPv6
			rec.SrcPort, rec.DstPort = model.NoPort, model.NoPort
			haveL4 = true
		}
	}

	if !haveL3 {
		return rec, fmt.Errorf("%w: no IPv4 or IPv6 layer", ErrUnsupported)
	}
	if fragment && !haveL4 {
		if d.ip4.FragOffset != 0 {
			return rec, fmt.Errorf("%w: non-first IPv4 fragment", ErrUnsupported)
		}
		return d.decodeFirstFragment(rec)
	}
	if !haveL4 {
		return rec, fmt.Errorf("%w: upper-layer protocol %d", ErrUnsupported, rec.Proto)
	}
	return rec, nil
}

// decodeFirstFragment reads the transport header at the start of a first IPv4 fragment. The
// parser stops at the fragment layer, so the header is decoded from the IPv4 payload directly.
func (d *Decoder) decodeFirstFragment(rec model.Record) (model.Record, error) {
	payload := d.ip4.Payload
	switch d.ip4.Protocol {
	case layers.IPProtocolTCP:
		if err := d.tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return rec, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		rec.SrcPort = model.Port(d.tcp.SrcPort)
		rec.DstPort = model.Port(d.tcp.DstPort)
	case layers.IPProtocolUDP:
		if err := d.udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return rec, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		rec.SrcPort = model.Port(d.udp.SrcPort)
		rec.DstPort = model.Port(d.udp.DstPort)
	case layers.IPProtocolICMPv4:
		if err := d.icmp4.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return rec, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		rec.SrcPort, rec.DstPort = model.NoPort, model.NoPort
	default:
		return rec, fmt.Errorf("%w: upper-layer protocol %d", ErrUnsupported, rec.Proto)
	}
	return rec, nil
}

func addrFrom(ip []byte) netip.Addr {
	addr, _ := netip.AddrFromSlice(ip)
	return addr.Unmap()
}
