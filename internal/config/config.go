package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// AnalysisConfig holds the attack window, in seconds since capture start.
type AnalysisConfig struct {
	AttackBegin  float64 `yaml:"attack_begin"`
	AttackFinish float64 `yaml:"attack_finish"`
}

// ManagerConfig controls how many captures are reconstructed concurrently.
type ManagerConfig struct {
	NumWorkers          int `yaml:"num_workers"`
	SizeOfResultChannel int `yaml:"size_of_result_channel"`
}

// ReaderConfig controls capture reading.
type ReaderConfig struct {
	ProgressEvery int `yaml:"progress_every"`
}

// ClickHouseConfig holds connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CSVConfig holds settings for the csv writer.
type CSVConfig struct {
	RootPath string `yaml:"root_path"`
}

// GobConfig holds settings for the gob writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// SeriesConfig holds settings for the plot series writer.
type SeriesConfig struct {
	RootPath string `yaml:"root_path"`
}

// WriterDef defines a single result writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	CSV        CSVConfig        `yaml:"csv"`
	Gob        GobConfig        `yaml:"gob"`
	Series     SeriesConfig     `yaml:"series"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig holds settings for publishing results to NATS.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig holds settings for the query API.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// AlerterRule defines a single threshold rule evaluated against a report.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Phase     string  `yaml:"phase"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the alerting rules.
type AlerterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Rules   []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the mail server used by the alerter.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// LogConfig holds the logging level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Manager  ManagerConfig  `yaml:"manager"`
	Reader   ReaderConfig   `yaml:"reader"`
	Writers  []WriterDef    `yaml:"writers"`
	NATS     NATSConfig     `yaml:"nats"`
	API      APIConfig      `yaml:"api"`
	Alerter  AlerterConfig  `yaml:"alerter"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns a configuration usable without a config file: the attack window
// of the reference SYN-flood experiment, one worker and a csv writer in ./results.
func Default() *Config {
	cfg := &Config{
		Analysis: AnalysisConfig{AttackBegin: 20.0, AttackFinish: 120.0},
		Writers: []WriterDef{
			{Type: "csv", Enabled: true, CSV: CSVConfig{RootPath: "results"}},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Manager.NumWorkers == 0 {
		c.Manager.NumWorkers = 1
	}
	if c.Manager.SizeOfResultChannel == 0 {
		c.Manager.SizeOfResultChannel = 16
	}
	if c.Reader.ProgressEvery == 0 {
		c.Reader.ProgressEvery = 100000
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "connspectra.results"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Writers {
		if c.Writers[i].Type == "clickhouse" && c.Writers[i].ClickHouse.Port == 0 {
			c.Writers[i].ClickHouse.Port = 9000
		}
	}
}

var knownWriterTypes = map[string]bool{
	"csv":        true,
	"gob":        true,
	"series":     true,
	"clickhouse": true,
}

var knownOperators = map[string]bool{">": true, "<": true, "=": true, ">=": true, "<=": true}

// Validate checks the configuration for values the pipeline cannot work with.
func (c *Config) Validate() error {
	if c.Analysis.AttackFinish < c.Analysis.AttackBegin {
		return fmt.Errorf("%w: attack_finish (%v) is before attack_begin (%v)",
			ErrInvalidConfig, c.Analysis.AttackFinish, c.Analysis.AttackBegin)
	}
	if c.Manager.NumWorkers < 1 {
		return fmt.Errorf("%w: num_workers must be at least 1, got %d", ErrInvalidConfig, c.Manager.NumWorkers)
	}
	if c.Reader.ProgressEvery < 0 {
		return fmt.Errorf("%w: progress_every must not be negative", ErrInvalidConfig)
	}
	for i, w := range c.Writers {
		if !knownWriterTypes[w.Type] {
			return fmt.Errorf("%w: writers[%d] has unknown type '%s'", ErrInvalidConfig, i, w.Type)
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url is required when nats is enabled", ErrInvalidConfig)
	}
	for i, rule := range c.Alerter.Rules {
		if !knownOperators[rule.Operator] {
			return fmt.Errorf("%w: alerter rule %d (%s) has unknown operator '%s'", ErrInvalidConfig, i, rule.Name, rule.Operator)
		}
	}
	return nil
}

// ClickHouse returns the first enabled ClickHouse writer config, if any.
func (c *Config) ClickHouse() (ClickHouseConfig, bool) {
	for _, w := range c.Writers {
		if w.Enabled && w.Type == "clickhouse" {
			return w.ClickHouse, true
		}
	}
	return ClickHouseConfig{}, false
}
