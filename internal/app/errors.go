package app

import (
	"errors"

	"github.com/okian/inhouse/internal/domain/model"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is.
var (
	// ErrParticipantInGame rejects queueing while the participant holds an
	// unresolved session. A session whose scoring failed stays Reported but
	// has already released its participants, so they may queue again.
	ErrParticipantInGame       = errors.New("participant is in an unresolved game")
	ErrParticipantInReadyCheck = errors.New("participant is in a pending ready check")
	// ErrStaleReadyCheckSignal marks a signal for a check that already
	// resolved or never included the sender. Callers treat it as a no-op.
	ErrStaleReadyCheckSignal = errors.New("stale ready check signal")
	ErrRatingSnapshotMissing = errors.New("rating snapshot missing or incomplete")
	ErrNoUnresolvedSession   = errors.New("participant has no unresolved session")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionAlreadyScored  = errors.New("session already scored")
	ErrNoDispute             = errors.New("session is not in dispute review")
	ErrNotInSession          = errors.New("participant is not part of the session")
	ErrChampionUnknown       = errors.New("champion not recognised")
	ErrNoRoles               = errors.New("no roles requested")
	ErrEngineClosed          = errors.New("engine is shut down")

	ErrInvalidTransition = model.ErrInvalidTransition
	ErrUnknownRole       = model.ErrUnknownRole
)
