// Package reconstructor rebuilds per-flow TCP connection lifetimes from an
// arrival-ordered sequence of packet records.
//
// A Reconstructor is single-threaded and owns its flow table exclusively. To process
// several captures in parallel, use one Reconstructor per capture and merge only the
// finalized reports.
package reconstructor

import (
	"ConnSpectra/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// RecordSource yields packet records in capture order. Next returns io.EOF once the
// capture is exhausted.
type RecordSource interface {
	Next() (*model.PacketRecord, error)
}

// Stats holds diagnostic counters of a run.
type Stats struct {
	Flows          int
	TCPRecords     uint64
	IgnoredRecords uint64
	// LateRecords counts records offered after Finalize; they are dropped.
	LateRecords uint64
}

// Reconstructor tracks flow lifecycle evidence for one capture.
type Reconstructor struct {
	table *flowTable

	totalPackets uint64
	totalBytes   uint64

	firstTCPTime time.Time
	seenTCP      bool

	stats  Stats
	report *model.Report
}

// New creates an empty Reconstructor.
func New() *Reconstructor {
	return &Reconstructor{table: newFlowTable()}
}

// Ingest applies one record. It never fails: records that are not TCP over IPv4/IPv6
// only count toward the packet and byte totals. Records are trusted to arrive in
// non-decreasing timestamp order; out-of-order input is replayed literally.
//
// Once Finalize has been called the table is frozen and Ingest drops the record.
func (r *Reconstructor) Ingest(rec *model.PacketRecord) {
	if rec == nil {
		return
	}
	if r.report != nil {
		r.stats.LateRecords++
		return
	}

	r.totalPackets++
	if rec.Length > 0 {
		r.totalBytes += uint64(rec.Length)
	}

	if !rec.IsTCP() {
		r.stats.IgnoredRecords++
		return
	}
	r.stats.TCPRecords++

	if !r.seenTCP {
		r.firstTCPTime = rec.Timestamp
		r.seenTCP = true
	}

	r.table.lookupOrCreate(rec.Key()).apply(rec.Timestamp, rec.Flags)
}

// Finalize produces one result per flow that was seen to open. Flows without close
// evidence get model.SentinelDuration.
//
// Finalize is idempotent: later calls return a copy of the first report, and records
// ingested in between are dropped.
func (r *Reconstructor) Finalize() *model.Report {
	if r.report != nil {
		return cloneReport(r.report)
	}

	results := make([]model.ConnectionResult, 0, r.table.len())
	for key, state := range r.table.flows {
		if !state.opened {
			continue
		}
		res := model.ConnectionResult{
			Key:         key,
			StartOffset: state.openTime.Sub(r.firstTCPTime).Seconds(),
			Duration:    model.SentinelDuration,
		}
		if state.closed {
			res.Duration = state.closeTime.Sub(state.openTime).Seconds()
		}
		results = append(results, res)
	}

	report := &model.Report{
		Results:      results,
		TotalPackets: r.totalPackets,
		TotalBytes:   r.totalBytes,
	}
	if r.seenTCP {
		report.FirstTCPTime = r.firstTCPTime
	}
	// Map iteration order is random; sorting keeps output files reproducible.
	report.SortResults()

	r.report = report
	return cloneReport(report)
}

// Run ingests every record of src and finalizes. Cancelling ctx stops ingestion
// between records; the partial report is still returned together with ctx.Err().
func (r *Reconstructor) Run(ctx context.Context, src RecordSource) (*model.Report, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.Finalize(), err
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return r.Finalize(), nil
		}
		if err != nil {
			return r.Finalize(), fmt.Errorf("failed to read packet record: %w", err)
		}
		r.Ingest(rec)
	}
}

// State returns a copy of the state tracked for key.
func (r *Reconstructor) State(key model.FlowKey) (FlowState, bool) {
	state, ok := r.table.get(key)
	if !ok {
		return FlowState{}, false
	}
	return *state, true
}

// Stats returns the diagnostic counters collected so far.
func (r *Reconstructor) Stats() Stats {
	s := r.stats
	s.Flows = r.table.len()
	return s
}

func cloneReport(src *model.Report) *model.Report {
	dst := *src
	dst.Results = append([]model.ConnectionResult(nil), src.Results...)
	return &dst
}
