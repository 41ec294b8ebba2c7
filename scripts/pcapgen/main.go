package main

import (
	"flag"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

var (
	clientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	serverMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// conversation is one synthetic flow between a client and a server.
type conversation struct {
	client, server net.IP
	cport, sport   uint16
	proto          layers.IPProtocol
	weight         int // relative share of the traffic
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 10000, "Number of packets to generate")
	flowCount := flag.Int("flows", 25, "Number of conversations")
	duration := flag.Duration("d", 10*time.Second, "Capture time span covered by the packets")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	log := logrus.New()
	rng := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	convs := make([]conversation, *flowCount)
	total := 0
	for i := range convs {
		convs[i] = newConversation(rng, i)
		total += convs[i].weight
	}

	log.WithFields(logrus.Fields{"packets": *packetCount, "flows": *flowCount, "file": *outputFile}).Info("Generating packets")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := *duration / time.Duration(max(*packetCount, 1))
	for i := 0; i < *packetCount; i++ {
		c := pick(rng, convs, total)
		// Servers answer with larger packets about a third of the time.
		reply := rng.Intn(3) == 0
		payloadSize := rng.Intn(200) + 20
		if reply {
			payloadSize = rng.Intn(1200) + 200
		}

		data, err := c.serialize(rng, reply, payloadSize)
		if err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * step),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Infof("Successfully generated %d packets into %s", *packetCount, *outputFile)
}

func newConversation(rng *rand.Rand, i int) conversation {
	c := conversation{
		cport:  uint16(rng.Intn(65535-1024) + 1024),
		weight: rng.Intn(20) + 1,
	}
	if i%4 == 3 {
		c.client = net.IP{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(i)}
		c.server = net.IP{0x20, 0x01, 0x0d, 0xb8, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(rng.Intn(8) + 1)}
	} else {
		c.client = net.IP{192, 168, 1, byte(i%250 + 2)}
		c.server = net.IP{10, 0, byte(rng.Intn(4)), byte(rng.Intn(250) + 1)}
	}

	switch i % 5 {
	case 0, 1, 2:
		c.proto = layers.IPProtocolTCP
		c.sport = []uint16{80, 443, 22}[rng.Intn(3)]
	case 3:
		c.proto = layers.IPProtocolUDP
		c.sport = 53
	default:
		c.proto = layers.IPProtocolICMPv4
		if c.client.To4() == nil {
			c.proto = layers.IPProtocolICMPv6
		}
	}
	return c
}

func pick(rng *rand.Rand, convs []conversation, total int) conversation {
	n := rng.Intn(total)
	for _, c := range convs {
		if n < c.weight {
			return c
		}
		n -= c.weight
	}
	return convs[len(convs)-1]
}

func (c conversation) serialize(rng *rand.Rand, reply bool, payloadSize int) ([]byte, error) {
	src, dst := c.client, c.server
	sport, dport := c.cport, c.sport
	smac, dmac := clientMAC, serverMAC
	if reply {
		src, dst = dst, src
		sport, dport = dport, sport
		smac, dmac = dmac, smac
	}

	eth := &layers.Ethernet{SrcMAC: smac, DstMAC: dmac}
	var ip gopacket.NetworkLayer
	var ipLayer gopacket.SerializableLayer
	if src.To4() != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		v4 := &layers.IPv4{SrcIP: src, DstIP: dst, Version: 4, TTL: 64, Protocol: c.proto}
		ip, ipLayer = v4, v4
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		v6 := &layers.IPv6{SrcIP: src, DstIP: dst, Version: 6, HopLimit: 64, NextHeader: c.proto}
		ip, ipLayer = v6, v6
	}

	var l4 gopacket.SerializableLayer
	switch c.proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(sport),
			DstPort: layers.TCPPort(dport),
			Seq:     rng.Uint32(),
			Ack:     rng.Uint32(),
			ACK:     true,
			PSH:     true,
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		l4 = tcp
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
		udp.SetNetworkLayerForChecksum(ip)
		l4 = udp
	case layers.IPProtocolICMPv6:
		icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
		if reply {
			icmp.TypeCode = layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoReply, 0)
		}
		icmp.SetNetworkLayerForChecksum(ip)
		l4 = icmp
		payloadSize += 4
	default:
		icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1}
		if reply {
			icmp.TypeCode = layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0)
		}
		l4 = icmp
	}

	payload := make([]byte, payloadSize)
	rng.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, eth, ipLayer, l4, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
