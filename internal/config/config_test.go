package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
analysis:
  attack_begin: 20
  attack_finish: 120
manager:
  num_workers: 4
writers:
  - type: csv
    enabled: true
    csv:
      root_path: out/csv
  - type: clickhouse
    enabled: false
    clickhouse:
      host: localhost
      database: default
nats:
  enabled: true
  url: nats://127.0.0.1:4222
alerter:
  enabled: true
  rules:
    - name: flood
      metric: unterminated_ratio
      phase: during
      operator: ">"
      threshold: 0.5
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Analysis.AttackBegin != 20 || cfg.Analysis.AttackFinish != 120 {
		t.Errorf("Unexpected attack window %+v", cfg.Analysis)
	}
	if cfg.Manager.NumWorkers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Manager.NumWorkers)
	}
	if cfg.Manager.SizeOfResultChannel != 16 || cfg.Reader.ProgressEvery != 100000 {
		t.Errorf("Defaults were not applied: %+v %+v", cfg.Manager, cfg.Reader)
	}
	if cfg.NATS.Subject != "connspectra.results" {
		t.Errorf("Expected default subject, got %q", cfg.NATS.Subject)
	}
	if cfg.Writers[1].ClickHouse.Port != 9000 {
		t.Errorf("Expected default ClickHouse port, got %d", cfg.Writers[1].ClickHouse.Port)
	}
	if _, ok := cfg.ClickHouse(); ok {
		t.Errorf("Disabled ClickHouse writer must not be returned")
	}
	if len(cfg.Alerter.Rules) != 1 || cfg.Alerter.Rules[0].Threshold != 0.5 {
		t.Errorf("Unexpected alerter rules %+v", cfg.Alerter.Rules)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"inverted window": "analysis: {attack_begin: 50, attack_finish: 10}",
		"unknown writer":  "writers: [{type: parquet, enabled: true}]",
		"negative workers": "manager: {num_workers: -2}",
		"nats without url": "nats: {enabled: true}",
		"bad operator":     "alerter: {rules: [{name: x, metric: connections, operator: '!='}]}",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("analysis: [")); err == nil {
		t.Errorf("Expected a YAML error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}
	if cfg.Analysis.AttackBegin != 20 || cfg.Analysis.AttackFinish != 120 {
		t.Errorf("Unexpected default window %+v", cfg.Analysis)
	}
}
