package lifetime

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ConnSpectra/internal/model"
)

// ResultsFile is the name of the gob-encoded []model.ConnectionResult in a run directory.
const ResultsFile = "results.dat"

// SummaryData holds the metadata for a run, written next to the results file.
type SummaryData struct {
	RunID        string `json:"run_id"`
	Source       string `json:"source"`
	TotalFlows   int    `json:"total_flows"`
	Unterminated int    `json:"unterminated"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	Timestamp    string `json:"timestamp"`
}

// GobWriter writes <root>/<run_id>/results.dat and summary.json.
type GobWriter struct {
	rootPath string
}

// NewGobWriter creates a writer rooted at rootPath.
func NewGobWriter(rootPath string) (*GobWriter, error) {
	if err := requireRoot("gob", rootPath); err != nil {
		return nil, err
	}
	return &GobWriter{rootPath: rootPath}, nil
}

func (w *GobWriter) Type() string { return "gob" }

func (w *GobWriter) Close() error { return nil }

// Write serializes the report's results and summary to disk.
func (w *GobWriter) Write(report *model.Report) error {
	runDir := filepath.Join(w.rootPath, report.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	filePath := filepath.Join(runDir, ResultsFile)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create results file '%s': %w", filePath, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(report.Results); err != nil {
		return fmt.Errorf("failed to encode results to gob for file '%s': %w", filePath, err)
	}

	summary := SummaryData{
		RunID:        report.RunID,
		Source:       report.Source,
		TotalFlows:   len(report.Results),
		Unterminated: report.Unterminated(),
		TotalBytes:   report.TotalBytes,
		TotalPackets: report.TotalPackets,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	summaryFile, err := os.Create(filepath.Join(runDir, "summary.json"))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

// ReadResults decodes a results file written by GobWriter.
func ReadResults(filePath string) ([]model.ConnectionResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	var results []model.ConnectionResult
	if err := gob.NewDecoder(file).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return results, nil
}
