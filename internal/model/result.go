package model

import (
	"sort"
	"time"
)

// SentinelDuration is the duration reported for a connection that was seen to open
// but never seen to close before the end of the capture.
const SentinelDuration = 100.0

// ConnectionResult is the lifecycle timing of one flow, in seconds.
type ConnectionResult struct {
	Key FlowKey
	// StartOffset is the open time relative to the first TCP packet of the capture.
	StartOffset float64
	Duration    float64
}

// Unterminated reports whether the result carries the sentinel duration.
func (r ConnectionResult) Unterminated() bool {
	return r.Duration == SentinelDuration
}

// Quality classifies a result for downstream reporting.
type Quality int

const (
	QualityOK Quality = iota
	QualityUnterminated
	QualityProbableCaptureDisorder
)

func (q Quality) String() string {
	switch q {
	case QualityUnterminated:
		return "unterminated"
	case QualityProbableCaptureDisorder:
		return "probable_capture_disorder"
	default:
		return "ok"
	}
}

// ClassifyResult flags sentinel durations and negative times. Negative values can only
// come from records that were ingested out of chronological order.
func ClassifyResult(r ConnectionResult) Quality {
	switch {
	case r.Unterminated():
		return QualityUnterminated
	case r.Duration < 0 || r.StartOffset < 0:
		return QualityProbableCaptureDisorder
	default:
		return QualityOK
	}
}

// Report is the finalized output of one reconstruction run.
type Report struct {
	RunID        string
	Source       string
	Results      []ConnectionResult
	TotalPackets uint64
	TotalBytes   uint64
	// FirstTCPTime anchors StartOffset; zero when the capture held no TCP packet.
	FirstTCPTime time.Time
}

// SortResults orders results by start offset, then by key, for stable output.
func (r *Report) SortResults() {
	sort.SliceStable(r.Results, func(i, j int) bool {
		a, b := r.Results[i], r.Results[j]
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		return a.Key.String() < b.Key.String()
	})
}

// Unterminated counts the results carrying the sentinel duration.
func (r *Report) Unterminated() int {
	n := 0
	for _, res := range r.Results {
		if res.Unterminated() {
			n++
		}
	}
	return n
}
