package main

import (
	"net/http"
	"time"
)

// handleDashboardJSON serves the same view the HTML dashboard renders, for
// scripted consumers. Authentication runs through the same session cookie.
func (s *DashboardServer) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	u, ok, err := s.currentUser(r)
	if err != nil {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	data, err := buildDashboardData(r.Context(), u, s.Config(), s.nodes, s.ledger)
	if err != nil {
		logger.Error("build dashboard json failed", "user_id", u.ID, "error", err)
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	payload, err := fastJSONMarshal(data)
	if err != nil {
		logger.Error("marshal dashboard json failed", "error", err)
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

type healthResponse struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_sec"`
	Version   string `json:"version"`
}

func (s *DashboardServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.start).Seconds()),
		Version:   buildTime,
	}
	payload, err := fastJSONMarshal(resp)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}
