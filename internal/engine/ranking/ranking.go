package ranking

import (
	"sort"
	"time"

	"nettop/internal/model"
)

// DefaultTopN is the number of rows a report shows.
const DefaultTopN = 10

// Render orders a snapshot by the active metric and formats the top n entries. Rates are the
// window counters divided by the interval length in seconds.
func Render(snap model.Snapshot, mode model.SortMode, interval time.Duration, n int) []model.Row {
	if n <= 0 {
		n = DefaultTopN
	}

	entries := make([]model.Entry, len(snap))
	copy(entries, snap)
	Sort(entries, mode)
	if len(entries) > n {
		entries = entries[:n]
	}

	secs := interval.Seconds()
	if secs <= 0 {
		secs = 1
	}

	rows := make([]model.Row, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, formatRow(i+1, e, secs))
	}
	return rows
}

// Sort orders entries descending by total bytes (SortBytes) or total packets (SortPackets).
// Equal totals fall back to key order so the result does not depend on map iteration.
func Sort(entries []model.Entry, mode model.SortMode) {
	metric := func(s model.FlowStats) uint64 { return s.Bytes() }
	if mode == model.SortPackets {
		metric = func(s model.FlowStats) uint64 { return s.Packets() }
	}

	sort.SliceStable(entries, func(i, j int) bool {
		mi, mj := metric(entries[i].Stats), metric(entries[j].Stats)
		if mi == mj {
			return entries[i].Key.Compare(entries[j].Key) < 0
		}
		return mi > mj
	})
}

func formatRow(rank int, e model.Entry, secs float64) model.Row {
	k, st := e.Key, e.Stats
	row := model.Row{
		Rank:  rank,
		Key:   k,
		Stats: st,
		Src:   FormatEndpoint(k.Addr1, k.Port1),
		Dst:   FormatEndpoint(k.Addr2, k.Port2),
		Proto: k.Proto.String(),

		RxBitRate:    float64(st.BytesRx*8) / secs,
		RxPacketRate: float64(st.PacketsRx) / secs,
		TxBitRate:    float64(st.BytesTx*8) / secs,
		TxPacketRate: float64(st.PacketsTx) / secs,
	}
	row.RxBits = FormatBits(row.RxBitRate)
	row.RxPackets = FormatPackets(row.RxPacketRate)
	row.TxBits = FormatBits(row.TxBitRate)
	row.TxPackets = FormatPackets(row.TxPacketRate)
	return row
}
