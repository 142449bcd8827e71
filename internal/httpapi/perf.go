package httpapi

import "net/http"

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"window_size": 0,
			"tasks":       0,
			"outcomes":    map[string]int{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.TaskLatency())
}
