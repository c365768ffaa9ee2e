package api

import (
	"net/http"
	"strings"

	"github.com/okian/inhouse/internal/domain/model"
)

// handleListSessions handles GET /sessions: proposed and unresolved games.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.engine.OngoingSessions()
	if sessions == nil {
		sessions = []*model.GameSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleGetSession handles GET /sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	sess, err := s.engine.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleVoidSession handles DELETE /sessions/{id}.
func (s *Server) handleVoidSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.void_session"
	if err := s.engine.VoidSession(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "voided"})
}

// handleReset handles POST /admin/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_reset"
	var req participantRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		s.fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	if err := s.engine.ResetParticipant(r.Context(), req.ParticipantID); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "reset"})
}
