package api

import (
	"net/http"
	"strings"
)

type readyCheckRequest struct {
	ParticipantID string `json:"participant_id"`
	CheckID       string `json:"check_id"`
	Accept        *bool  `json:"accept"`
}

// handleReadyCheck handles POST /ready-check.
func (s *Server) handleReadyCheck(w http.ResponseWriter, r *http.Request) {
	const op = "api.ready_check"
	var req readyCheckRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" || req.Accept == nil {
		s.fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	if err := s.engine.OnReadyCheckSignal(r.Context(), req.ParticipantID, req.CheckID, *req.Accept); err != nil {
		s.fail(w, r, op, err)
		return
	}
	status := "accepted"
	if !*req.Accept {
		status = "declined"
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: status})
}

type resultRequest struct {
	ParticipantID string `json:"participant_id"`
	Win           *bool  `json:"win"`
}

// handleResult handles POST /results.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.result"
	var req resultRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" || req.Win == nil {
		s.fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	out, err := s.engine.OnResultReport(r.Context(), req.ParticipantID, *req.Win)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type participantRequest struct {
	ParticipantID string `json:"participant_id"`
}

// handleOverride handles POST /results/override.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	const op = "api.override"
	var req participantRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		s.fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	if err := s.engine.OnOverrideSignal(r.Context(), req.ParticipantID); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "overridden"})
}

type championRequest struct {
	ParticipantID string `json:"participant_id"`
	SessionID     string `json:"session_id"`
	Champion      string `json:"champion"`
}

type championResponse struct {
	Champion string `json:"champion"`
}

// handleChampion handles POST /champions.
func (s *Server) handleChampion(w http.ResponseWriter, r *http.Request) {
	const op = "api.champion"
	var req championRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" || strings.TrimSpace(req.Champion) == "" {
		s.fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	name, err := s.engine.SetChampion(r.Context(), req.ParticipantID, req.SessionID, req.Champion)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, championResponse{Champion: name})
}
