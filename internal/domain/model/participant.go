package model

import "time"

// Participant is a player known to the engine.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rating is a skill estimate: mean Mu with uncertainty Sigma.
type Rating struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Conservative returns Mu - 3*Sigma, the leaderboard ordering key.
func (r Rating) Conservative() float64 { return r.Mu - 3*r.Sigma }

// RoleRating is a stored rating row for one participant and role.
type RoleRating struct {
	ParticipantID string    `json:"participant_id"`
	Role          Role      `json:"role"`
	Rating        Rating    `json:"rating"`
	Games         int       `json:"games"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QueueEntry records one participant waiting in a (channel, role) queue.
type QueueEntry struct {
	Channel       string    `json:"channel"`
	Role          Role      `json:"role"`
	ParticipantID string    `json:"participant_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}
