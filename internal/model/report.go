package model

import (
	"fmt"
	"time"
)

// SortMode selects the metric a report is ranked by.
type SortMode byte

const (
	SortBytes   SortMode = 'b'
	SortPackets SortMode = 'p'
)

// ParseSortMode converts the command-line form ("b" or "p") into a SortMode.
func ParseSortMode(s string) (SortMode, error) {
	switch s {
	case "b":
		return SortBytes, nil
	case "p":
		return SortPackets, nil
	}
	return 0, fmt.Errorf("invalid sort mode %q: want b or p", s)
}

func (m SortMode) String() string {
	return string(m)
}

// Row is one ranked, formatted line of a report.
type Row struct {
	Rank  int
	Key   FlowKey
	Stats FlowStats

	Src   string
	Dst   string
	Proto string

	RxBits    string
	RxPackets string
	TxBits    string
	TxPackets string

	// Raw rates per second.
	RxBitRate    float64
	RxPacketRate float64
	TxBitRate    float64
	TxPacketRate float64
}

// Report is the output of one window boundary.
type Report struct {
	RunID      string
	Sequence   uint64
	Interface  string
	Timestamp  time.Time
	Interval   time.Duration
	Mode       SortMode
	TotalFlows int
	Trimmed    int
	Rows       []Row
}
