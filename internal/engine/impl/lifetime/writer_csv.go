package lifetime

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ConnSpectra/internal/model"

	log "github.com/sirupsen/logrus"
)

var csvHeader = []string{"src", "sport", "dst", "dport", "start_offset", "duration", "quality"}

// CSVWriter writes one <run_id>.csv file per report.
type CSVWriter struct {
	rootPath string
}

// NewCSVWriter creates a writer rooted at rootPath.
func NewCSVWriter(rootPath string) (*CSVWriter, error) {
	if err := requireRoot("csv", rootPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory: %w", err)
	}
	return &CSVWriter{rootPath: rootPath}, nil
}

func (w *CSVWriter) Type() string { return "csv" }

func (w *CSVWriter) Close() error { return nil }

// Write renders every result of the report as a csv row.
func (w *CSVWriter) Write(report *model.Report) error {
	filePath := filepath.Join(w.rootPath, report.RunID+".csv")
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create csv file '%s': %w", filePath, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, res := range report.Results {
		if err := cw.Write(csvRow(res)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv file '%s': %w", filePath, err)
	}

	log.Printf("Wrote %d connections to %s", len(report.Results), filePath)
	return nil
}

func csvRow(res model.ConnectionResult) []string {
	return []string{
		res.Key.SrcAddr.String(),
		strconv.Itoa(int(res.Key.SrcPort)),
		res.Key.DstAddr.String(),
		strconv.Itoa(int(res.Key.DstPort)),
		strconv.FormatFloat(res.StartOffset, 'f', 6, 64),
		strconv.FormatFloat(res.Duration, 'f', 6, 64),
		model.ClassifyResult(res).String(),
	}
}
