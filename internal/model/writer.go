package model

// Writer defines a generic interface for persisting finalized reports.
type Writer interface {
	// Write persists a single report. Implementations must not modify it.
	Write(report *Report) error

	// Type returns the configured writer type, e.g. "csv" or "clickhouse".
	Type() string

	// Close releases any resources held by the writer.
	Close() error
}
