// Package simulate drives a running matchmaking service through full game
// rounds over its HTTP API: queueing, ready checks, result reports and
// disputes.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL string        // Base URL of the service
	Channel string        // Channel every player queues in
	Players int           // Number of simulated players, at least 10
	Rounds  int           // Number of queue/play rounds
	Workers int           // Concurrent HTTP workers
	Timeout time.Duration // HTTP request timeout
	// SettleTimeout bounds how long a round waits for sessions to confirm
	// and score.
	SettleTimeout time.Duration
	TopN          int     // Leaderboard entries fetched per role at the end
	DeclineRate   float64 // Chance a proposed game gets declined
	DisputeRate   float64 // Chance a game's first report is a lie
	Seed          uint64  // Seed for reproducible runs
	Verbose       bool
}

// Stats holds run statistics.
type Stats struct {
	Rounds          int
	Enqueued        int
	EnqueueFailed   int
	GamesProposed   int
	GamesConfirmed  int
	GamesCancelled  int
	GamesScored     int
	Disputes        int
	ReportsRejected int
	SkillAgreement  float64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
