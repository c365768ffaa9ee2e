package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/domain/model"
)

type enqueueRequest struct {
	ParticipantID string   `json:"participant_id"`
	Name          string   `json:"name"`
	ChannelID     string   `json:"channel_id"`
	Roles         []string `json:"roles"`
	RoleText      string   `json:"role_text"`
}

func (e enqueueRequest) validate() error {
	switch {
	case strings.TrimSpace(e.ParticipantID) == "":
		return errors.New("missing participant_id")
	case strings.TrimSpace(e.ChannelID) == "":
		return errors.New("missing channel_id")
	case len(e.Roles) == 0 && strings.TrimSpace(e.RoleText) == "":
		return errors.New("missing roles or role_text")
	}
	return nil
}

type enqueueResponse struct {
	Queued []model.QueueEntry `json:"queued"`
}

// handleEnqueue handles POST /queue.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.enqueue"
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	roles := make([]model.Role, 0, len(req.Roles))
	for _, name := range req.Roles {
		role, err := model.ParseRole(name)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		roles = append(roles, role)
	}

	added, err := s.engine.OnEnqueueRequest(r.Context(), app.EnqueueRequest{
		ParticipantID: req.ParticipantID,
		Name:          req.Name,
		Channel:       req.ChannelID,
		Roles:         roles,
		RoleText:      req.RoleText,
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if added == nil {
		added = []model.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, enqueueResponse{Queued: added})
}

type dequeueRequest struct {
	ParticipantID string `json:"participant_id"`
	ChannelID     string `json:"channel_id"`
}

// handleDequeue handles DELETE /queue. An empty channel_id leaves every
// channel.
func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	const op = "api.dequeue"
	var req dequeueRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		s.fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	if err := s.engine.OnDequeueRequest(r.Context(), req.ParticipantID, req.ChannelID); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "dequeued"})
}

// handleQueueSnapshot handles GET /queue/{channel}.
func (s *Server) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot(r.Context(), r.PathValue("channel"))
	out := make(map[string][]model.Participant, model.NumRoles)
	for _, role := range model.Roles() {
		list := snap[role]
		if list == nil {
			list = []model.Participant{}
		}
		out[role.String()] = list
	}
	writeJSON(w, http.StatusOK, out)
}
