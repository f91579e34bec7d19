package lifetime

import (
	"context"
	"fmt"
	"time"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

// TableName is the ClickHouse table holding connection lifetimes.
const TableName = "connection_lifetimes"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS connection_lifetimes (
    Timestamp   DateTime,
    RunID       String,
    Source      String,
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    StartOffset Float64,
    Duration    Float64,
    Quality     LowCardinality(String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, StartOffset);
`

// ClickHouseWriter inserts every report as one batch into connection_lifetimes.
type ClickHouseWriter struct {
	conn driver.Conn
	now  func() time.Time
}

// NewClickHouseWriter connects, ensures the table exists and returns the writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn, now: time.Now}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
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

func (w *ClickHouseWriter) Type() string { return "clickhouse" }

func (w *ClickHouseWriter) Close() error { return w.conn.Close() }

// Write inserts the report's results into the connection_lifetimes table.
func (w *ClickHouseWriter) Write(report *model.Report) error {
	if len(report.Results) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO "+TableName)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range clickHouseRows(report, w.now().UTC()) {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append connection to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d connections to ClickHouse for run '%s'", len(report.Results), report.RunID)
	return nil
}

// clickHouseRows lays out results in the column order of createTableStatement.
func clickHouseRows(report *model.Report, ts time.Time) [][]any {
	rows := make([][]any, 0, len(report.Results))
	for _, res := range report.Results {
		rows = append(rows, []any{
			ts,
			report.RunID,
			report.Source,
			res.Key.SrcAddr.String(),
			res.Key.DstAddr.String(),
			res.Key.SrcPort,
			res.Key.DstPort,
			res.StartOffset,
			res.Duration,
			model.ClassifyResult(res).String(),
		})
	}
	return rows
}
