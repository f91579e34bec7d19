package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/model"
	"ConnSpectra/internal/query"
)

type fakeQuerier struct {
	runs       []query.RunInfo
	reports    map[string]*model.Report
	lastFilter query.ConnectionFilter
}

func (q *fakeQuerier) ListRuns(ctx context.Context) ([]query.RunInfo, error) {
	return q.runs, nil
}

func (q *fakeQuerier) Connections(ctx context.Context, filter query.ConnectionFilter) (*model.Report, error) {
	q.lastFilter = filter
	report, ok := q.reports[filter.RunID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", query.ErrRunNotFound, filter.RunID)
	}
	return report, nil
}

func (q *fakeQuerier) Close() error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *fakeQuerier) {
	t.Helper()
	key := func(port uint16) model.FlowKey {
		return model.FlowKey{
			SrcAddr: netip.MustParseAddr("10.0.0.1"), SrcPort: port,
			DstAddr: netip.MustParseAddr("10.0.0.2"), DstPort: 80,
		}
	}
	q := &fakeQuerier{
		runs: []query.RunInfo{{RunID: "flood", Source: "flood.pcap", Connections: 3, Unterminated: 1,
			WrittenAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}},
		reports: map[string]*model.Report{
			"flood": {RunID: "flood", Results: []model.ConnectionResult{
				{Key: key(1), StartOffset: 1, Duration: 0.5},
				{Key: key(2), StartOffset: 25, Duration: model.SentinelDuration},
				{Key: key(3), StartOffset: 130, Duration: 2},
			}},
			"quiet": {RunID: "quiet"},
		},
	}
	h := &APIHandler{querier: q, window: analysis.Window{Begin: 20, Finish: 120}}
	srv := httptest.NewServer(newRouter(h))
	t.Cleanup(srv.Close)
	return srv, q
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode response of %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestListRuns(t *testing.T) {
	srv, _ := newTestServer(t)
	var runs []query.RunInfo
	if code := getJSON(t, srv.URL+"/api/v1/runs", &runs); code != http.StatusOK {
		t.Fatalf("Unexpected status %d", code)
	}
	if len(runs) != 1 || runs[0].RunID != "flood" || runs[0].Unterminated != 1 {
		t.Errorf("Unexpected runs %+v", runs)
	}
}

func TestConnections(t *testing.T) {
	srv, q := newTestServer(t)
	var views []connectionView
	url := srv.URL + "/api/v1/runs/flood/connections?quality=unterminated&min_start=20&limit=10"
	if code := getJSON(t, url, &views); code != http.StatusOK {
		t.Fatalf("Unexpected status %d", code)
	}
	if len(views) != 3 || views[1].Quality != "unterminated" || views[0].Src != "10.0.0.1" {
		t.Errorf("Unexpected connections %+v", views)
	}
	f := q.lastFilter
	if f.RunID != "flood" || f.Quality != "unterminated" || f.MinStart == nil || *f.MinStart != 20 || f.MaxStart != nil || f.Limit != 10 {
		t.Errorf("Unexpected filter %+v", f)
	}
}

func TestConnections_BadParams(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, params := range []string{"min_start=abc", "max_start=x", "limit=-1", "limit=many"} {
		if code := getJSON(t, srv.URL+"/api/v1/runs/flood/connections?"+params, nil); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", params, code)
		}
	}
}

func TestSeries(t *testing.T) {
	srv, _ := newTestServer(t)
	var series analysis.ScatterSeries
	if code := getJSON(t, srv.URL+"/api/v1/runs/flood/series?attack_begin=10", &series); code != http.StatusOK {
		t.Fatalf("Unexpected status %d", code)
	}
	if len(series.Points) != 3 || series.Markers[0].X != 10 || series.Markers[1].X != 120 {
		t.Errorf("Unexpected series %+v", series)
	}

	if code := getJSON(t, srv.URL+"/api/v1/runs/flood/series?attack_begin=200", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an inverted window, got %d", code)
	}
}

func TestSummary(t *testing.T) {
	srv, _ := newTestServer(t)
	var summary analysis.Summary
	if code := getJSON(t, srv.URL+"/api/v1/runs/flood/summary", &summary); code != http.StatusOK {
		t.Fatalf("Unexpected status %d", code)
	}
	if summary.Phases[analysis.PhaseDuring].Unterminated != 1 || summary.Phases[analysis.PhaseAfter].Connections != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}
}

func TestUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := getJSON(t, srv.URL+"/api/v1/runs/nope/connections", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestConnections_EmptyMatchOnKnownRun(t *testing.T) {
	srv, _ := newTestServer(t)
	var views []connectionView
	url := srv.URL + "/api/v1/runs/quiet/connections?quality=probable_capture_disorder"
	if code := getJSON(t, url, &views); code != http.StatusOK {
		t.Fatalf("Expected 200 for a known run without matches, got %d", code)
	}
	if views == nil || len(views) != 0 {
		t.Errorf("Expected an empty list, got %+v", views)
	}
}
