// Package v1 is the wire form of a report, shared by the NATS exporter, its subscriber and the
// HTTP API. Reports travel as google.protobuf.Struct messages.
package v1

import (
	"fmt"
	"net/netip"
	"time"

	"nettop/internal/model"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReportToStruct converts a report into its wire message. Counters are carried as JSON numbers.
func ReportToStruct(r *model.Report) (*structpb.Struct, error) {
	rows := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, map[string]any{
			"rank":       row.Rank,
			"addr1":      row.Key.Addr1.String(),
			"addr2":      row.Key.Addr2.String(),
			"port1":      int(row.Key.Port1),
			"port2":      int(row.Key.Port2),
			"protocol":   int(row.Key.Proto),
			"bytes_tx":   row.Stats.BytesTx,
			"bytes_rx":   row.Stats.BytesRx,
			"packets_tx": row.Stats.PacketsTx,
			"packets_rx": row.Stats.PacketsRx,
			"src":        row.Src,
			"dst":        row.Dst,
			"proto":      row.Proto,
			"rx_bits":    row.RxBits,
			"rx_packets": row.RxPackets,
			"tx_bits":    row.TxBits,
			"tx_packets": row.TxPackets,
			"rx_bps":     row.RxBitRate,
			"rx_pps":     row.RxPacketRate,
			"tx_bps":     row.TxBitRate,
			"tx_pps":     row.TxPacketRate,
		})
	}

	s, err := structpb.NewStruct(map[string]any{
		"run_id":           r.RunID,
		"sequence":         r.Sequence,
		"interface":        r.Interface,
		"timestamp":        r.Timestamp.UTC().Format(time.RFC3339Nano),
		"interval_seconds": r.Interval.Seconds(),
		"sort":             r.Mode.String(),
		"total_flows":      r.TotalFlows,
		"trimmed":          r.Trimmed,
		"rows":             rows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build report message: %w", err)
	}
	return s, nil
}

// ReportFromStruct converts a wire message back into a report.
func ReportFromStruct(s *structpb.Struct) (*model.Report, error) {
	f := fields{s.GetFields()}

	ts, err := time.Parse(time.RFC3339Nano, f.str("timestamp"))
	if err != nil {
		return nil, fmt.Errorf("invalid report timestamp: %w", err)
	}
	mode, err := model.ParseSortMode(f.str("sort"))
	if err != nil {
		return nil, err
	}

	r := &model.Report{
		RunID:      f.str("run_id"),
		Sequence:   uint64(f.num("sequence")),
		Interface:  f.str("interface"),
		Timestamp:  ts,
		Interval:   time.Duration(f.num("interval_seconds") * float64(time.Second)),
		Mode:       mode,
		TotalFlows: int(f.num("total_flows")),
		Trimmed:    int(f.num("trimmed")),
	}

	for i, v := range s.GetFields()["rows"].GetListValue().GetValues() {
		row, err := rowFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		r.Rows = append(r.Rows, row)
	}
	return r, nil
}

func rowFromStruct(s *structpb.Struct) (model.Row, error) {
	if s == nil {
		return model.Row{}, fmt.Errorf("row is not an object")
	}
	f := fields{s.GetFields()}

	a1, err := netip.ParseAddr(f.str("addr1"))
	if err != nil {
		return model.Row{}, fmt.Errorf("invalid addr1: %w", err)
	}
	a2, err := netip.ParseAddr(f.str("addr2"))
	if err != nil {
		return model.Row{}, fmt.Errorf("invalid addr2: %w", err)
	}

	return model.Row{
		Rank: int(f.num("rank")),
		Key: model.FlowKey{
			Addr1: a1,
			Addr2: a2,
			Port1: model.Port(f.num("port1")),
			Port2: model.Port(f.num("port2")),
			Proto: model.Protocol(f.num("protocol")),
		},
		Stats: model.FlowStats{
			BytesTx:   uint64(f.num("bytes_tx")),
			BytesRx:   uint64(f.num("bytes_rx")),
			PacketsTx: uint64(f.num("packets_tx")),
			PacketsRx: uint64(f.num("packets_rx")),
		},
		Src:          f.str("src"),
		Dst:          f.str("dst"),
		Proto:        f.str("proto"),
		RxBits:       f.str("rx_bits"),
		RxPackets:    f.str("rx_packets"),
		TxBits:       f.str("tx_bits"),
		TxPackets:    f.str("tx_packets"),
		RxBitRate:    f.num("rx_bps"),
		RxPacketRate: f.num("rx_pps"),
		TxBitRate:    f.num("tx_bps"),
		TxPacketRate: f.num("tx_pps"),
	}, nil
}

// MarshalReport encodes a report in protobuf binary form.
func MarshalReport(r *model.Report) ([]byte, error) {
	s, err := ReportToStruct(r)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// UnmarshalReport decodes a report produced by MarshalReport.
func UnmarshalReport(data []byte) (*model.Report, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return ReportFromStruct(&s)
}

// MarshalReportJSON encodes a report as JSON.
func MarshalReportJSON(r *model.Report) ([]byte, error) {
	s, err := ReportToStruct(r)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

type fields struct {
	m map[string]*structpb.Value
}

func (f fields) str(name string) string {
	return f.m[name].GetStringValue()
}

func (f fields) num(name string) float64 {
	return f.m[name].GetNumberValue()
}
