package api

import (
	"net/http"
	"strconv"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
)

const defaultLeaderboardLimit = 10

// handleLeaderboard handles GET /leaderboard/{role}?limit=N.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	role, err := model.ParseRole(r.PathValue("role"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	n := defaultLeaderboardLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > s.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	entries, err := s.engine.Leaderboard(r.Context(), role, n)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if entries == nil {
		entries = []repository.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRatings handles GET /ratings/{participant}.
func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ratings"
	rows, err := s.engine.Ratings(r.Context(), r.PathValue("participant"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if len(rows) == 0 {
		s.fail(w, r, op, repository.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
