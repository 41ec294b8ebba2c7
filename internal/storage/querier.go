package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nettop/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultHistoryLimit = 10

// HistoryQuery selects stored rows to total up per flow.
type HistoryQuery struct {
	Interface string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// FlowTotal is one flow's traffic summed over the stored windows it appeared in.
type FlowTotal struct {
	Addr1     string    `json:"addr1"`
	Port1     int32     `json:"port1"`
	Addr2     string    `json:"addr2"`
	Port2     int32     `json:"port2"`
	Protocol  string    `json:"protocol"`
	Bytes     uint64    `json:"bytes"`
	Packets   uint64    `json:"packets"`
	Windows   uint64    `json:"windows"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Querier defines the interface for querying stored reports.
type Querier interface {
	TopFlows(ctx context.Context, q HistoryQuery) ([]FlowTotal, error)
	Close() error
}

type clickhouseQuerier struct {
	conn  driver.Conn
	table string
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	table, err := resolveTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn, table: table}, nil
}

// TopFlows returns the flows with the most bytes over the selected windows.
func (q *clickhouseQuerier) TopFlows(ctx context.Context, hq HistoryQuery) ([]FlowTotal, error) {
	query, args := buildTopFlowsQuery(q.table, hq)

	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var totals []FlowTotal
	for rows.Next() {
		var t FlowTotal
		if err := rows.Scan(&t.Addr1, &t.Port1, &t.Addr2, &t.Port2, &t.Protocol,
			&t.Bytes, &t.Packets, &t.Windows, &t.FirstSeen, &t.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan flow total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read flow totals: %w", err)
	}
	return totals, nil
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}

func buildTopFlowsQuery(table string, hq HistoryQuery) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			Addr1, Port1, Addr2, Port2, Protocol,
			SUM(BytesTx + BytesRx) AS Bytes,
			SUM(PacketsTx + PacketsRx) AS Packets,
			COUNT(*) AS Windows,
			toDateTime64(MIN(Timestamp), 3) AS FirstSeen,
			toDateTime64(MAX(Timestamp), 3) AS LastSeen
		FROM `)
	b.WriteString(table)

	var where []string
	var args []any
	if hq.Interface != "" {
		where = append(where, "Interface = ?")
		args = append(args, hq.Interface)
	}
	if !hq.Since.IsZero() {
		where = append(where, "Timestamp >= ?")
		args = append(args, hq.Since)
	}
	if !hq.Until.IsZero() {
		where = append(where, "Timestamp <= ?")
		args = append(args, hq.Until)
	}
	if len(where) > 0 {
		b.WriteString("\n\t\tWHERE " + strings.Join(where, " AND "))
	}

	limit := hq.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	b.WriteString(`
		GROUP BY Addr1, Port1, Addr2, Port2, Protocol
		ORDER BY Bytes DESC, Addr1, Addr2, Port1, Port2
		LIMIT ?`)
	args = append(args, limit)

	return b.String(), args
}
