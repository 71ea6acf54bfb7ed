package httpapi

import (
	"net/http"
	"strings"

	"github.com/aarso/diaa/internal/observability"
)

type perfLatencyResponse struct {
	observability.StageSnapshot
	ActiveSessions int `json:"active_sessions"`
}

// handlePerfLatency reports rolling per-stage latency. ?stage=a,b narrows the
// stage list.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	resp := perfLatencyResponse{StageSnapshot: s.metrics.SnapshotStages()}
	if resp.Stages == nil {
		resp.Stages = []observability.StageStats{}
	}
	if s.sessions != nil {
		resp.ActiveSessions = s.sessions.ActiveCount()
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		want := make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			want[strings.TrimSpace(name)] = true
		}
		kept := resp.Stages[:0]
		for _, st := range resp.Stages {
			if want[st.Stage] {
				kept = append(kept, st)
			}
		}
		resp.Stages = kept
	}
	respondJSON(w, http.StatusOK, resp)
}
