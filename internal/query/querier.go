package query

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ErrRunNotFound is returned when no connections are stored for a run.
var ErrRunNotFound = errors.New("run not found")

// RunInfo summarizes one stored run.
type RunInfo struct {
	RunID        string    `json:"run_id"`
	Source       string    `json:"source"`
	Connections  uint64    `json:"connections"`
	Unterminated uint64    `json:"unterminated"`
	WrittenAt    time.Time `json:"written_at"`
}

// ConnectionFilter narrows the connections returned for a run.
type ConnectionFilter struct {
	RunID   string
	Quality string
	// MinStart and MaxStart bound the start offset, inclusive, when set.
	MinStart *float64
	MaxStart *float64
	Limit    int
}

// narrowed reports whether the filter can exclude rows of an existing run.
func (f ConnectionFilter) narrowed() bool {
	return f.Quality != "" || f.MinStart != nil || f.MaxStart != nil || f.Limit > 0
}

// Querier defines the interface for querying stored connection lifetimes.
type Querier interface {
	ListRuns(ctx context.Context) ([]RunInfo, error)
	Connections(ctx context.Context, filter ConnectionFilter) (*model.Report, error)
	Close() error
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}

const listRunsQuery = `
	SELECT
		RunID,
		any(Source) AS Source,
		count() AS Connections,
		countIf(Quality = 'unterminated') AS Unterminated,
		max(Timestamp) AS WrittenAt
	FROM connection_lifetimes
	GROUP BY RunID
	ORDER BY RunID
`

// ListRuns returns one summary per stored run.
func (q *clickhouseQuerier) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := q.conn.Query(ctx, listRunsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var run RunInfo
		if err := rows.Scan(&run.RunID, &run.Source, &run.Connections, &run.Unterminated, &run.WrittenAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// buildConnectionsQuery renders the filter as a parameterized query.
func buildConnectionsQuery(filter ConnectionFilter) (string, []any, error) {
	if filter.RunID == "" {
		return "", nil, fmt.Errorf("run id is required")
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT Source, SrcIP, DstIP, SrcPort, DstPort, StartOffset, Duration
		FROM connection_lifetimes
	`)

	whereClauses := []string{"RunID = ?"}
	args := []any{filter.RunID}

	if filter.Quality != "" {
		switch filter.Quality {
		case model.QualityOK.String(), model.QualityUnterminated.String(), model.QualityProbableCaptureDisorder.String():
		default:
			return "", nil, fmt.Errorf("unsupported quality: %s", filter.Quality)
		}
		whereClauses = append(whereClauses, "Quality = ?")
		args = append(args, filter.Quality)
	}
	if filter.MinStart != nil {
		whereClauses = append(whereClauses, "StartOffset >= ?")
		args = append(args, *filter.MinStart)
	}
	if filter.MaxStart != nil {
		whereClauses = append(whereClauses, "StartOffset <= ?")
		args = append(args, *filter.MaxStart)
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	queryBuilder.WriteString(" ORDER BY StartOffset, SrcIP, SrcPort")
	if filter.Limit > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}
	return queryBuilder.String(), args, nil
}

// Connections returns the stored connections of a run as a report. Totals are not
// stored in ClickHouse and stay zero.
func (q *clickhouseQuerier) Connections(ctx context.Context, filter ConnectionFilter) (*model.Report, error) {
	query, args, err := buildConnectionsQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	report := &model.Report{RunID: filter.RunID}
	for rows.Next() {
		var (
			src, dst        string
			sport, dport    uint16
			start, duration float64
		)
		if err := rows.Scan(&report.Source, &src, &dst, &sport, &dport, &start, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		res, err := toResult(src, dst, sport, dport, start, duration)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(report.Results) == 0 {
		if filter.narrowed() {
			exists, err := q.runExists(ctx, filter.RunID)
			if err != nil {
				return nil, err
			}
			if exists {
				return report, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, filter.RunID)
	}
	return report, nil
}

const runExistsQuery = `SELECT count() FROM connection_lifetimes WHERE RunID = ?`

func (q *clickhouseQuerier) runExists(ctx context.Context, runID string) (bool, error) {
	var n uint64
	if err := q.conn.QueryRow(ctx, runExistsQuery, runID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check run '%s': %w", runID, err)
	}
	return n > 0, nil
}

func toResult(src, dst string, sport, dport uint16, start, duration float64) (model.ConnectionResult, error) {
	srcAddr, err := netip.ParseAddr(src)
	if err != nil {
		return model.ConnectionResult{}, fmt.Errorf("invalid stored source address '%s': %w", src, err)
	}
	dstAddr, err := netip.ParseAddr(dst)
	if err != nil {
		return model.ConnectionResult{}, fmt.Errorf("invalid stored destination address '%s': %w", dst, err)
	}
	return model.ConnectionResult{
		Key:         model.FlowKey{SrcAddr: srcAddr, DstAddr: dstAddr, SrcPort: sport, DstPort: dport},
		StartOffset: start,
		Duration:    duration,
	}, nil
}
