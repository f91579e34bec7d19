package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/engine/reconstructor"
	"ConnSpectra/internal/model"
	"ConnSpectra/pkg/pcap"

	log "github.com/sirupsen/logrus"
)

// ErrNoCaptures is returned by Run when it is given no capture paths.
var ErrNoCaptures = errors.New("no captures to analyze")

// Publisher receives every finalized report, e.g. to fan it out over NATS.
type Publisher interface {
	Publish(report *model.Report) error
}

// Checker inspects every finalized report, e.g. to raise alerts.
type Checker interface {
	Check(report *model.Report) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher hands every report to p after the writers.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithChecker hands every report to c after the writers.
func WithChecker(c Checker) Option {
	return func(m *Manager) { m.checker = c }
}

// Manager reconstructs a set of captures with a worker pool and fans the reports out.
type Manager struct {
	writers   []model.Writer
	publisher Publisher
	checker   Checker

	numWorkers          int
	sizeOfResultChannel int
	progressEvery       int
}

// NewManager creates a new Manager.
func NewManager(cfg *config.Config, writers []model.Writer, opts ...Option) (*Manager, error) {
	if cfg.Manager.NumWorkers < 1 {
		return nil, fmt.Errorf("%w: num_workers must be at least 1", config.ErrInvalidConfig)
	}
	m := &Manager{
		writers:             writers,
		numWorkers:          cfg.Manager.NumWorkers,
		sizeOfResultChannel: cfg.Manager.SizeOfResultChannel,
		progressEvery:       cfg.Reader.ProgressEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type job struct {
	path  string
	runID string
}

type outcome struct {
	job    job
	report *model.Report
	err    error
}

// Run reconstructs every capture in paths, one Reconstructor per capture, and returns
// the reports sorted by source path. Captures that fail are reported in the joined
// error; their partial reports are returned but not handed to writers.
func (m *Manager) Run(ctx context.Context, paths []string) ([]*model.Report, error) {
	if len(paths) == 0 {
		return nil, ErrNoCaptures
	}

	jobs := make(chan job)
	results := make(chan outcome, m.sizeOfResultChannel)

	numWorkers := min(m.numWorkers, len(paths))
	var workerWg sync.WaitGroup
	workerWg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer workerWg.Done()
			for j := range jobs {
				report, err := m.process(ctx, j)
				results <- outcome{job: j, report: report, err: err}
			}
		}()
	}
	log.Printf("Manager started with %d workers for %d captures.", numWorkers, len(paths))

	go func() {
		defer close(jobs)
		for _, j := range assignRunIDs(paths) {
			select {
			case jobs <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		workerWg.Wait()
		close(results)
	}()

	var reports []*model.Report
	var errs []error
	for out := range results {
		if out.report != nil {
			reports = append(reports, out.report)
		}
		if out.err != nil {
			log.WithField("capture", out.job.path).Errorf("Reconstruction failed: %v", out.err)
			errs = append(errs, fmt.Errorf("capture '%s': %w", out.job.path, out.err))
			continue
		}
		m.deliver(out.report)
	}

	if len(reports)+len(errs) < len(paths) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
		}
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Source < reports[j].Source })
	return reports, errors.Join(errs...)
}

func (m *Manager) process(ctx context.Context, j job) (*model.Report, error) {
	reader, err := pcap.NewReader(j.path, pcap.WithProgressEvery(m.progressEvery))
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer reader.Close()

	start := time.Now()
	r := reconstructor.New()
	report, err := r.Run(ctx, reader)
	report.RunID = j.runID
	report.Source = j.path

	stats := r.Stats()
	log.WithFields(log.Fields{
		"run":     j.runID,
		"packets": report.TotalPackets,
		"tcp":     stats.TCPRecords,
		"ignored": stats.IgnoredRecords,
		"flows":   stats.Flows,
		"opened":  len(report.Results),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("Capture reconstructed.")
	return report, err
}

// deliver hands a report to every writer, then to the publisher and the checker.
// Failures are logged and never stop the other sinks.
func (m *Manager) deliver(report *model.Report) {
	for _, w := range m.writers {
		if err := w.Write(report); err != nil {
			log.Printf("Error writing run '%s' with %s writer: %v", report.RunID, w.Type(), err)
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(report); err != nil {
			log.Printf("Error publishing run '%s': %v", report.RunID, err)
		}
	}
	if m.checker != nil {
		if err := m.checker.Check(report); err != nil {
			log.Printf("Error checking alerts for run '%s': %v", report.RunID, err)
		}
	}
}

// Close closes every writer.
func (m *Manager) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s writer: %w", w.Type(), err))
		}
	}
	return errors.Join(errs...)
}

// RunID derives a run identifier from a capture path: its base name without extension.
func RunID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// assignRunIDs gives every path a unique run id. Repeated base names get the
// first free suffix among -2, -3...
func assignRunIDs(paths []string) []job {
	taken := make(map[string]bool, len(paths))
	jobs := make([]job, 0, len(paths))
	for _, p := range paths {
		base := RunID(p)
		id := base
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		taken[id] = true
		jobs = append(jobs, job{path: p, runID: id})
	}
	return jobs
}

// Merge combines finalized reports into one. Start offsets stay relative to each
// report's own first TCP packet.
func Merge(runID string, reports []*model.Report) *model.Report {
	merged := &model.Report{RunID: runID}
	var sources []string
	for _, r := range reports {
		if r == nil {
			continue
		}
		sources = append(sources, r.Source)
		merged.Results = append(merged.Results, r.Results...)
		merged.TotalPackets += r.TotalPackets
		merged.TotalBytes += r.TotalBytes
		if !r.FirstTCPTime.IsZero() && (merged.FirstTCPTime.IsZero() || r.FirstTCPTime.Before(merged.FirstTCPTime)) {
			merged.FirstTCPTime = r.FirstTCPTime
		}
	}
	merged.Source = strings.Join(sources, ",")
	merged.SortResults()
	return merged
}
