package display

import (
	"fmt"

	"nettop/internal/model"
)

const rowFormat = "| %-34s | %-34s | %-5s | %-7s | %-7s | %-7s | %-7s |"

// Column titles, Rx before Tx.
var columns = []string{"Src IP:port", "Dst IP:port", "Proto", "Rx b/s", "Rx p/s", "Tx b/s", "Tx p/s"}

var headerLines = []string{
	"|                                    |                                    |       |         Rx        |         Tx        |",
	fmt.Sprintf(rowFormat, "Src IP:port", "Dst IP:port", "Proto", "b/s", "p/s", "b/s", "p/s"),
	"+------------------------------------+------------------------------------+-------+---------+---------+---------+---------+",
}

// Cells returns a row's columns in display order.
func Cells(r model.Row) []string {
	return []string{r.Src, r.Dst, r.Proto, r.RxBits, r.RxPackets, r.TxBits, r.TxPackets}
}

// FormatRow renders a row as a fixed-width table line.
func FormatRow(r model.Row) string {
	return fmt.Sprintf(rowFormat, r.Src, r.Dst, r.Proto, r.RxBits, r.RxPackets, r.TxBits, r.TxPackets)
}
