package model

import (
	"fmt"
	"maps"
	"time"
)

// SessionState is the lifecycle state of a GameSession.
type SessionState uint8

const (
	StateProposed SessionState = iota + 1
	StateConfirmed
	StateCancelled
	StateReported
	StateDisputeReview
	StateScored
	StateVoided
)

var stateNames = map[SessionState]string{
	StateProposed:      "proposed",
	StateConfirmed:     "confirmed",
	StateCancelled:     "cancelled",
	StateReported:      "reported",
	StateDisputeReview: "dispute_review",
	StateScored:        "scored",
	StateVoided:        "voided",
}

// transitions lists the allowed next states for each state.
var transitions = map[SessionState][]SessionState{
	StateProposed:      {StateConfirmed, StateCancelled, StateVoided},
	StateConfirmed:     {StateReported, StateVoided},
	StateReported:      {StateDisputeReview, StateScored, StateVoided},
	StateDisputeReview: {StateScored, StateVoided},
}

func (s SessionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ParseSessionState parses the String form of a state.
func ParseSessionState(v string) (SessionState, error) {
	for s, name := range stateNames {
		if name == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSessionState, v)
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionState) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateCancelled || s == StateScored || s == StateVoided
}

// Unresolved reports whether a participant holding a session in this state
// is barred from queueing: confirmed but not yet scored or voided.
func (s SessionState) Unresolved() bool {
	return s == StateConfirmed || s == StateReported || s == StateDisputeReview
}

// GameSession is one proposed or played game.
type GameSession struct {
	ID          string       `json:"id"`
	Channel     string       `json:"channel"`
	CheckID     string       `json:"check_id,omitempty"`
	State       SessionState `json:"state"`
	Composition Composition  `json:"composition"`

	BalanceScore   float64 `json:"balance_score"`
	WinProbability float64 `json:"blue_win_probability"`
	Mismatch       bool    `json:"mismatch"`

	// Snapshot holds the pre-game ratings keyed by participant id, captured
	// when the session is confirmed.
	Snapshot map[string]Rating `json:"snapshot,omitempty"`

	Winner          Team      `json:"winner,omitempty"`
	Reporter        string    `json:"reporter,omitempty"`
	ClaimedWinner   Team      `json:"claimed_winner,omitempty"`
	Claimant        string    `json:"claimant,omitempty"`
	DisputeDeadline time.Time `json:"dispute_deadline,omitempty"`
	Overridden      bool      `json:"overridden,omitempty"`

	Champions    map[string]string `json:"champions,omitempty"`
	ScoringError string            `json:"scoring_error,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	ReportedAt  time.Time `json:"reported_at,omitempty"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
}

// Transition moves the session to next or returns ErrInvalidTransition.
func (g *GameSession) Transition(next SessionState) error {
	if !CanTransition(g.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.State, next)
	}
	g.State = next
	return nil
}

// TeamOf returns the side participant id plays on.
func (g *GameSession) TeamOf(id string) (Team, bool) {
	s, ok := g.Composition.SlotOf(id)
	if !ok {
		return TeamNone, false
	}
	return s.Team, true
}

// Clone returns a deep copy safe to hand across goroutines.
func (g *GameSession) Clone() *GameSession {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Snapshot = maps.Clone(g.Snapshot)
	cp.Champions = maps.Clone(g.Champions)
	return &cp
}
