package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/model"
	"ConnSpectra/internal/query"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
	window  analysis.Window
}

func newRouter(h *APIHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/runs", h.listRunsHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{run}/connections", h.connectionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{run}/series", h.seriesHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{run}/summary", h.summaryHandler).Methods("GET")
	return r
}

type connectionView struct {
	Src         string  `json:"src"`
	SrcPort     uint16  `json:"sport"`
	Dst         string  `json:"dst"`
	DstPort     uint16  `json:"dport"`
	StartOffset float64 `json:"start_offset"`
	Duration    float64 `json:"duration"`
	Quality     string  `json:"quality"`
}

func (h *APIHandler) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := h.querier.ListRuns(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list runs: %v", err), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []query.RunInfo{}
	}
	writeJSON(w, runs)
}

// connectionsHandler lists the connections of a run. Optional query parameters:
// quality, min_start, max_start and limit.
func (h *APIHandler) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	filter := query.ConnectionFilter{RunID: mux.Vars(r)["run"]}
	params := r.URL.Query()
	filter.Quality = params.Get("quality")

	var err error
	if filter.MinStart, err = optionalFloat(params.Get("min_start")); err != nil {
		http.Error(w, fmt.Sprintf("invalid min_start: %v", err), http.StatusBadRequest)
		return
	}
	if filter.MaxStart, err = optionalFloat(params.Get("max_start")); err != nil {
		http.Error(w, fmt.Sprintf("invalid max_start: %v", err), http.StatusBadRequest)
		return
	}
	if v := params.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			http.Error(w, fmt.Sprintf("invalid limit: %q", v), http.StatusBadRequest)
			return
		}
	}

	report, ok := h.fetch(w, r, filter)
	if !ok {
		return
	}
	views := make([]connectionView, 0, len(report.Results))
	for _, res := range report.Results {
		views = append(views, connectionView{
			Src:         res.Key.SrcAddr.String(),
			SrcPort:     res.Key.SrcPort,
			Dst:         res.Key.DstAddr.String(),
			DstPort:     res.Key.DstPort,
			StartOffset: res.StartOffset,
			Duration:    res.Duration,
			Quality:     model.ClassifyResult(res).String(),
		})
	}
	writeJSON(w, views)
}

func (h *APIHandler) seriesHandler(w http.ResponseWriter, r *http.Request) {
	window, err := h.windowFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, ok := h.fetch(w, r, query.ConnectionFilter{RunID: mux.Vars(r)["run"]})
	if !ok {
		return
	}
	writeJSON(w, analysis.Series(report, window))
}

func (h *APIHandler) summaryHandler(w http.ResponseWriter, r *http.Request) {
	window, err := h.windowFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, ok := h.fetch(w, r, query.ConnectionFilter{RunID: mux.Vars(r)["run"]})
	if !ok {
		return
	}
	writeJSON(w, analysis.Analyze(report, window))
}

func (h *APIHandler) fetch(w http.ResponseWriter, r *http.Request, filter query.ConnectionFilter) (*model.Report, bool) {
	report, err := h.querier.Connections(r.Context(), filter)
	switch {
	case errors.Is(err, query.ErrRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	case err != nil:
		http.Error(w, fmt.Sprintf("failed to query connections: %v", err), http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}

// windowFrom overrides the configured attack window with attack_begin/attack_finish.
func (h *APIHandler) windowFrom(r *http.Request) (analysis.Window, error) {
	window := h.window
	params := r.URL.Query()
	if v := params.Get("attack_begin"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return window, fmt.Errorf("invalid attack_begin: %q", v)
		}
		window.Begin = f
	}
	if v := params.Get("attack_finish"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return window, fmt.Errorf("invalid attack_finish: %q", v)
		}
		window.Finish = f
	}
	return window, window.Validate()
}

func optionalFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
