package api

import (
	"net/http"
	"strconv"

	"github.com/doorwatch/doorwatch-core/internal/control"
)

// maxActivityLimit caps ?limit= on /api/activities/recent.
const maxActivityLimit = 100

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecentActivities(w http.ResponseWriter, r *http.Request) {
	limit := control.RecentActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	activities, err := s.repo.RecentActivities(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}
