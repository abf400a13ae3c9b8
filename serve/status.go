package serve

import (
	"encoding/json"
	"net/http"

	"edgecam/video"
)

// Pipeline is the part of the running pipeline exposed over HTTP.
type Pipeline interface {
	Status() video.Status
	ToggleEdgeDetection() bool
	EdgeDetectionEnabled() bool
}

// StatusServer reports the pipeline's counters as JSON.
type StatusServer struct {
	Pipeline Pipeline
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Pipeline.Status())
}

// ToggleResponse is returned by ToggleServer.
type ToggleResponse struct {
	EdgeDetection bool `json:"edge_detection"`
}

// ToggleServer flips edge detection on POST and reports the flag on GET.
type ToggleServer struct {
	Pipeline Pipeline
}

func (s *ToggleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		writeJSON(w, &ToggleResponse{EdgeDetection: s.Pipeline.ToggleEdgeDetection()})
	case http.MethodGet:
		writeJSON(w, &ToggleResponse{EdgeDetection: s.Pipeline.EdgeDetectionEnabled()})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
