package model

import "time"

// EventKind names an outbound event.
type EventKind string

const (
	EventCompositionProposed EventKind = "composition_proposed"
	EventSessionConfirmed    EventKind = "session_confirmed"
	EventSessionCancelled    EventKind = "session_cancelled"
	EventRatingsUpdated      EventKind = "ratings_updated"
	EventResultReported      EventKind = "result_reported"
	EventDisputeOpened       EventKind = "dispute_opened"
	EventDisputeResolved     EventKind = "dispute_resolved"
	EventSessionVoided       EventKind = "session_voided"
	EventScoringFailed       EventKind = "scoring_failed"
)

// Event is an outbound notification for the transport layer to render.
// Payload holds one of the *Payload types below matching Kind.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Channel   string    `json:"channel"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload"`
}

// CompositionProposedPayload announces a ready check.
type CompositionProposedPayload struct {
	CheckID        string      `json:"check_id"`
	Composition    Composition `json:"composition"`
	BalanceScore   float64     `json:"balance_score"`
	WinProbability float64     `json:"blue_win_probability"`
	Mismatch       bool        `json:"mismatch"`
	Deadline       time.Time   `json:"deadline"`
}

// SessionConfirmedPayload announces a game that all ten accepted.
type SessionConfirmedPayload struct {
	Composition Composition       `json:"composition"`
	Snapshot    map[string]Rating `json:"snapshot"`
}

// CancelReason explains why a ready check did not confirm.
type CancelReason string

const (
	CancelDeclined CancelReason = "declined"
	CancelTimeout  CancelReason = "timeout"
	CancelVoided   CancelReason = "voided"
	CancelShutdown CancelReason = "shutdown"
)

// SessionCancelledPayload announces a failed ready check.
type SessionCancelledPayload struct {
	CheckID  string       `json:"check_id"`
	Reason   CancelReason `json:"reason"`
	Decliner string       `json:"decliner,omitempty"`
	// Accepted lists who had accepted before the check resolved.
	Accepted []string `json:"accepted"`
	// Missing lists who had not accepted.
	Missing []string `json:"missing"`
}

// RatingDelta is one participant's change after scoring.
type RatingDelta struct {
	ParticipantID string  `json:"participant_id"`
	Role          Role    `json:"role"`
	Team          Team    `json:"team"`
	Before        Rating  `json:"before"`
	After         Rating  `json:"after"`
	DeltaMu       float64 `json:"delta_mu"`
}

// RatingsUpdatedPayload announces a scored session.
type RatingsUpdatedPayload struct {
	Winner Team          `json:"winner"`
	Deltas []RatingDelta `json:"deltas"`
}

// ResultReportedPayload acknowledges a result report.
type ResultReportedPayload struct {
	Reporter  string `json:"reporter"`
	Winner    Team   `json:"winner"`
	Duplicate bool   `json:"duplicate"`
	// ScoresAt is when scoring runs unless a dispute intervenes.
	ScoresAt time.Time `json:"scores_at"`
}

// DisputeOpenedPayload announces contradicting reports.
type DisputeOpenedPayload struct {
	OriginalWinner Team      `json:"original_winner"`
	ClaimedWinner  Team      `json:"claimed_winner"`
	Claimant       string    `json:"claimant"`
	Deadline       time.Time `json:"deadline"`
}

// DisputeResolvedPayload announces the winner that will be scored.
type DisputeResolvedPayload struct {
	Winner     Team   `json:"winner"`
	Overridden bool   `json:"overridden"`
	By         string `json:"by,omitempty"`
}

// SessionVoidedPayload announces an admin void.
type SessionVoidedPayload struct {
	PreviousState SessionState `json:"previous_state"`
}

// ScoringFailedPayload surfaces a session that could not be scored.
type ScoringFailedPayload struct {
	Error string `json:"error"`
}
