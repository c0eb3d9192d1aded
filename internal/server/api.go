package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vexmx/avotex/internal/models"
	"github.com/vexmx/avotex/internal/recommend"
)

// Read-only JSON views of a grower's history, for dashboards that do not
// hold a websocket.

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	scans, err := s.db.ListScans(r.Context(), userID)
	if err != nil {
		s.logger.Error("error retrieving scans", "user_id", userID, "error", err)
		http.Error(w, "failed to retrieve scans", http.StatusInternalServerError)
		return
	}
	if scans == nil {
		scans = []models.ScanRecord{}
	}
	s.writeJSON(w, scans)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	scans, err := s.db.ListScans(r.Context(), userID)
	if err != nil {
		s.logger.Error("error retrieving scans", "user_id", userID, "error", err)
		http.Error(w, "failed to retrieve summary", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, recommend.Summarize(scans))
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	labels, err := s.db.ScanLabels(r.Context(), userID)
	if err != nil {
		s.logger.Error("error retrieving scans", "user_id", userID, "error", err)
		http.Error(w, "failed to retrieve recommendations", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, recommend.Recommend(labels))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("error writing response", "error", err)
	}
}
