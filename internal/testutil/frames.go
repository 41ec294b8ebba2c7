// Package testutil builds synthetic Ethernet frames and pcap files for tests.
package testutil

import (
	"encoding/binary"
	"net"
	"os"
	"time"

	"nettop/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// TCP returns an Ethernet/IP/TCP frame carrying payloadLen bytes. IPv4 or IPv6 is picked from
// the address family of src.
func TCP(src, dst string, sport, dport uint16, payloadLen int) []byte {
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), ACK: true, Window: 14600}
	return build(src, dst, layers.IPProtocolTCP, tcp, payloadLen)
}

// UDP returns an Ethernet/IP/UDP frame carrying payloadLen bytes.
func UDP(src, dst string, sport, dport uint16, payloadLen int) []byte {
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	return build(src, dst, layers.IPProtocolUDP, udp, payloadLen)
}

// ICMP returns an echo request frame; ICMPv6 when src is an IPv6 address.
func ICMP(src, dst string, payloadLen int) []byte {
	if isV6(src) {
		icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
		// Identifier and sequence number of the echo body.
		return build(src, dst, layers.IPProtocolICMPv6, icmp, payloadLen+4)
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return build(src, dst, layers.IPProtocolICMPv4, icmp, payloadLen)
}

// GRE returns an IP frame whose upper-layer protocol is GRE, which is not tracked.
func GRE(src, dst string, payloadLen int) []byte {
	return build(src, dst, layers.IPProtocolGRE, nil, payloadLen)
}

// UDPFragment returns an IPv4 fragment of a UDP datagram. offset is in 8-byte units; the
// fragment starts with the UDP header only when offset is zero.
func UDPFragment(src, dst string, sport, dport uint16, payloadLen int, moreFragments bool, offset uint16) []byte {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP(src).To4(), DstIP: net.ParseIP(dst).To4(),
		FragOffset: offset,
	}
	if moreFragments {
		ip.Flags = layers.IPv4MoreFragments
	}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	return serialize(eth, ip, udp, gopacket.Payload(make([]byte, payloadLen)))
}

// IPv6WithExtension returns an IPv6 frame whose first header after the fixed one is ext,
// followed by an 8-byte UDP header and payloadLen bytes.
func IPv6WithExtension(src, dst string, ext layers.IPProtocol, sport, dport uint16, payloadLen int) []byte {
	udpLen := 8 + payloadLen
	body := make([]byte, 8+udpLen)
	// Extension header: next header, length in 8-byte units past the first 8, PadN option.
	body[0] = byte(layers.IPProtocolUDP)
	body[1] = 0
	body[2], body[3] = 1, 4
	binary.BigEndian.PutUint16(body[8:], sport)
	binary.BigEndian.PutUint16(body[10:], dport)
	binary.BigEndian.PutUint16(body[12:], uint16(udpLen))

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: ext, SrcIP: net.ParseIP(src), DstIP: net.ParseIP(dst)}
	return serialize(eth, ip, gopacket.Payload(body))
}

// ARP returns a non-IP Ethernet frame.
func ARP() []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: net.ParseIP("10.0.0.1").To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    net.ParseIP("10.0.0.2").To4(),
	}
	return serialize(eth, arp)
}

// WritePcap writes frames to an Ethernet pcap file at path.
func WritePcap(path string, frames []model.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     fr.Timestamp,
			CaptureLength: len(fr.Data),
			Length:        len(fr.Data),
		}
		if err := w.WritePacket(ci, fr.Data); err != nil {
			return err
		}
	}
	return nil
}

// At pairs frame data with a timestamp offset from base.
func At(base time.Time, offset time.Duration, data []byte) model.Frame {
	return model.Frame{Timestamp: base.Add(offset), Data: data}
}

func build(src, dst string, proto layers.IPProtocol, l4 gopacket.SerializableLayer, payloadLen int) []byte {
	srcIP, dstIP := net.ParseIP(src), net.ParseIP(dst)

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}
	var l3 gopacket.SerializableLayer
	if isV6(src) {
		eth.EthernetType = layers.EthernetTypeIPv6
		l3 = &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: proto, SrcIP: srcIP, DstIP: dstIP}
	} else {
		eth.EthernetType = layers.EthernetTypeIPv4
		l3 = &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: proto, SrcIP: srcIP.To4(), DstIP: dstIP.To4()}
	}

	stack := []gopacket.SerializableLayer{eth, l3}
	if l4 != nil {
		stack = append(stack, l4)
	}
	stack = append(stack, gopacket.Payload(make([]byte, payloadLen)))
	return serialize(stack...)
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func isV6(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil
}
