// Package analysis splits a connection report around an attack window and derives the
// per-phase statistics and the scatter series used to plot connection durations.
package analysis

import (
	"fmt"
	"sort"

	"ConnSpectra/internal/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window is the attack interval in seconds since the first TCP packet of a capture.
type Window struct {
	Begin  float64 `json:"attack_begin"`
	Finish float64 `json:"attack_finish"`
}

// Validate rejects windows that end before they begin.
func (w Window) Validate() error {
	if w.Finish < w.Begin {
		return fmt.Errorf("attack window ends (%v) before it begins (%v)", w.Finish, w.Begin)
	}
	return nil
}

// Phase is the position of a connection's start relative to the attack window.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseDuring Phase = "during"
	PhaseAfter  Phase = "after"
)

// Phases lists every phase in chronological order.
var Phases = []Phase{PhaseBefore, PhaseDuring, PhaseAfter}

// PhaseOf places a start offset in a phase. The window is half-open: [Begin, Finish).
func (w Window) PhaseOf(startOffset float64) Phase {
	switch {
	case startOffset < w.Begin:
		return PhaseBefore
	case startOffset < w.Finish:
		return PhaseDuring
	default:
		return PhaseAfter
	}
}

// PhaseStats summarizes the connections that opened within one phase.
type PhaseStats struct {
	Connections  int `json:"connections"`
	Unterminated int `json:"unterminated"`
	Disorder     int `json:"disorder"`
	// Duration statistics cover completed connections only.
	Completed      int     `json:"completed"`
	MeanDuration   float64 `json:"mean_duration"`
	MedianDuration float64 `json:"median_duration"`
	MaxDuration    float64 `json:"max_duration"`
}

// UnterminatedRatio is the share of connections that never closed, 0 for an empty phase.
func (s PhaseStats) UnterminatedRatio() float64 {
	if s.Connections == 0 {
		return 0
	}
	return float64(s.Unterminated) / float64(s.Connections)
}

// Summary is the per-phase view of a report.
type Summary struct {
	RunID   string               `json:"run_id"`
	Window  Window               `json:"window"`
	Phases  map[Phase]PhaseStats `json:"phases"`
	Overall PhaseStats           `json:"overall"`
}

// Analyze computes per-phase and whole-capture statistics for report.
func Analyze(report *model.Report, window Window) Summary {
	byPhase := make(map[Phase][]model.ConnectionResult, len(Phases))
	for _, res := range report.Results {
		phase := window.PhaseOf(res.StartOffset)
		byPhase[phase] = append(byPhase[phase], res)
	}

	stats := make(map[Phase]PhaseStats, len(Phases))
	for _, p := range Phases {
		stats[p] = describe(byPhase[p])
	}
	return Summary{
		RunID:   report.RunID,
		Window:  window,
		Phases:  stats,
		Overall: describe(report.Results),
	}
}

func describe(results []model.ConnectionResult) PhaseStats {
	var s PhaseStats
	var durations []float64
	for _, res := range results {
		s.Connections++
		switch model.ClassifyResult(res) {
		case model.QualityUnterminated:
			s.Unterminated++
		case model.QualityProbableCaptureDisorder:
			s.Disorder++
		default:
			durations = append(durations, res.Duration)
		}
	}
	if len(durations) == 0 {
		return s
	}

	sort.Float64s(durations)
	s.Completed = len(durations)
	s.MeanDuration = stat.Mean(durations, nil)
	s.MedianDuration = stat.Quantile(0.5, stat.Empirical, durations, nil)
	s.MaxDuration = floats.Max(durations)
	return s
}

// Point is one connection in the scatter plot: x is the start offset, y the duration.
type Point struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Key          string  `json:"key"`
	Unterminated bool    `json:"unterminated"`
}

// Marker is a labelled vertical line on the plot.
type Marker struct {
	Label string  `json:"label"`
	X     float64 `json:"x"`
}

// ScatterSeries is everything needed to draw duration against start time.
type ScatterSeries struct {
	RunID   string   `json:"run_id"`
	XLabel  string   `json:"x_label"`
	YLabel  string   `json:"y_label"`
	Points  []Point  `json:"points"`
	Markers []Marker `json:"markers"`
}

// Series converts a report into a scatter series with the attack window markers.
func Series(report *model.Report, window Window) ScatterSeries {
	points := make([]Point, 0, len(report.Results))
	for _, res := range report.Results {
		points = append(points, Point{
			X:            res.StartOffset,
			Y:            res.Duration,
			Key:          res.Key.String(),
			Unterminated: res.Unterminated(),
		})
	}
	return ScatterSeries{
		RunID:  report.RunID,
		XLabel: "connection start time (s)",
		YLabel: "connection duration (s)",
		Points: points,
		Markers: []Marker{
			{Label: "attack_begin", X: window.Begin},
			{Label: "attack_finish", X: window.Finish},
		},
	}
}
