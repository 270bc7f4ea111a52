package http

import (
	"encoding/json"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"segloader/datasets"
	"segloader/monitoring"
	"segloader/pipeline"
)

type handlers struct {
	metrics *monitoring.MetricsCollector
	hub     *monitoring.Hub
	loader  *pipeline.Loader
}

func RegisterHandlers(mux *http.ServeMux, h *handlers) {
	mux.HandleFunc("GET /healthz", handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", gzhttp.GzipHandler(http.HandlerFunc(h.handleMetrics)))
		mux.Handle("GET /metrics.json", gzhttp.GzipHandler(http.HandlerFunc(h.handleMetricsJSON)))
	}
	if h.loader != nil {
		mux.HandleFunc("GET /datasets", h.handleDatasets)
	}
	if h.hub != nil {
		mux.Handle("GET /ws", h.hub)
		mux.HandleFunc("GET /ws/stats", h.handleStreamStats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.metrics.ExportPrometheus()))
}

func (h *handlers) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	body, err := h.metrics.ExportJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

type datasetStatus struct {
	Path    string `json:"path"`
	Samples int    `json:"samples"`
}

type phaseStatus struct {
	Phase    datasets.Phase  `json:"phase"`
	Samples  int             `json:"samples"`
	Datasets []datasetStatus `json:"datasets"`
}

type loaderStatus struct {
	Phases []phaseStatus        `json:"phases"`
	Stats  pipeline.LoaderStats `json:"stats"`
}

func (h *handlers) handleDatasets(w http.ResponseWriter, r *http.Request) {
	status := loaderStatus{Phases: []phaseStatus{}, Stats: h.loader.Stats()}
	for _, phase := range h.loader.Phases() {
		coll := h.loader.Current(phase)
		if coll == nil {
			continue
		}
		ps := phaseStatus{Phase: phase, Samples: coll.Len(), Datasets: []datasetStatus{}}
		for _, ds := range coll.Datasets() {
			ps.Datasets = append(ps.Datasets, datasetStatus{Path: ds.FilePath(), Samples: ds.Len()})
		}
		status.Phases = append(status.Phases, ps)
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}
