// Package storage keeps window reports in ClickHouse and queries them back.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"nettop/internal/config"
	"nettop/internal/factory"
	"nettop/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

// DefaultTable is used when the exporter definition names none.
const DefaultTable = "top_flows"

const writeTimeout = 5 * time.Second

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp   DateTime64(3),
    RunID       String,
    Sequence    UInt64,
    Interface   LowCardinality(String),
    Rank        UInt16,
    Addr1       String,
    Port1       Int32,
    Addr2       String,
    Port2       Int32,
    Protocol    LowCardinality(String),
    BytesTx     UInt64,
    BytesRx     UInt64,
    PacketsTx   UInt64,
    PacketsRx   UInt64,
    TxBitRate   Float64,
    RxBitRate   Float64,
    TxPktRate   Float64,
    RxPktRate   Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMMDD(Timestamp)
ORDER BY (Interface, Timestamp, Rank);
`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	factory.RegisterWriter("clickhouse", func(def config.ExporterDef, log logrus.FieldLogger) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, log)
	})
}

// ClickHouseWriter stores one row per ranked flow per window.
type ClickHouseWriter struct {
	conn  driver.Conn
	table string
	log   logrus.FieldLogger
}

// NewClickHouseWriter connects and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, log logrus.FieldLogger) (*ClickHouseWriter, error) {
	table, err := resolveTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.WithField("table", table).Info("Connected to ClickHouse and ensured table exists")

	return &ClickHouseWriter{conn: conn, table: table, log: log}, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

// Write inserts the report's ranked rows in one batch.
func (w *ClickHouseWriter) Write(r *model.Report) error {
	if len(r.Rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range r.Rows {
		if err := batch.Append(rowValues(r, row)...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	w.log.WithFields(logrus.Fields{"rows": len(r.Rows), "window": r.Sequence}).Debug("Wrote flows to ClickHouse")
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// rowValues lists a row's column values in table order.
func rowValues(r *model.Report, row model.Row) []any {
	return []any{
		r.Timestamp,
		r.RunID,
		r.Sequence,
		r.Interface,
		uint16(row.Rank),
		row.Key.Addr1.String(),
		int32(row.Key.Port1),
		row.Key.Addr2.String(),
		int32(row.Key.Port2),
		row.Proto,
		row.Stats.BytesTx,
		row.Stats.BytesRx,
		row.Stats.PacketsTx,
		row.Stats.PacketsRx,
		row.TxBitRate,
		row.RxBitRate,
		row.TxPacketRate,
		row.RxPacketRate,
	}
}

func resolveTable(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !tableName.MatchString(name) {
		return "", fmt.Errorf("%w: invalid clickhouse table name %q", config.ErrConfig, name)
	}
	return name, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}
