package lifetime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/model"
)

// SeriesWriter writes the plot-ready scatter series of a report as <run_id>.series.json.
type SeriesWriter struct {
	rootPath string
	window   analysis.Window
}

// NewSeriesWriter creates a writer rooted at rootPath that marks window on every series.
func NewSeriesWriter(rootPath string, window analysis.Window) (*SeriesWriter, error) {
	if err := requireRoot("series", rootPath); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create series directory: %w", err)
	}
	return &SeriesWriter{rootPath: rootPath, window: window}, nil
}

func (w *SeriesWriter) Type() string { return "series" }

func (w *SeriesWriter) Close() error { return nil }

func (w *SeriesWriter) Write(report *model.Report) error {
	filePath := filepath.Join(w.rootPath, report.RunID+".series.json")
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create series file '%s': %w", filePath, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(analysis.Series(report, w.window)); err != nil {
		return fmt.Errorf("failed to encode series to json: %w", err)
	}
	return nil
}
