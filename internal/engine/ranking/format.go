package ranking

import (
	"fmt"
	"math"
	"net/netip"

	"nettop/internal/model"
)

var (
	bitSuffixes    = []string{" ", "K", "M", "G", "T", "P"}
	packetSuffixes = []string{" ", "K", "M", "G"}
)

// FormatBits renders a bit rate with a decimal SI suffix, e.g. "1.5K".
func FormatBits(bitsPerSec float64) string {
	return scale(bitsPerSec, bitSuffixes)
}

// FormatPackets renders a packet rate with a decimal SI suffix, capped at G.
func FormatPackets(packetsPerSec float64) string {
	return scale(packetsPerSec, packetSuffixes)
}

// scale divides v by 1000 while it is at least 1000 and a larger suffix is available. Whole
// values print without a fractional part; everything else gets one decimal.
func scale(v float64, suffixes []string) string {
	i := 0
	for ; v >= 1000 && i < len(suffixes)-1; i++ {
		v /= 1000
	}
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d%s", int64(v), suffixes[i])
	}
	return fmt.Sprintf("%.1f%s", v, suffixes[i])
}

// FormatAddr brackets IPv6 literals so a port can be appended.
func FormatAddr(addr netip.Addr) string {
	s := addr.String()
	if addr.Is6() {
		return "[" + s + "]"
	}
	return s
}

// FormatEndpoint renders "addr:port", or the bare address for flows without ports.
func FormatEndpoint(addr netip.Addr, port model.Port) string {
	if !port.Valid() {
		return FormatAddr(addr)
	}
	return FormatAddr(addr) + ":" + port.String()
}
