package matchmaking

import "github.com/okian/inhouse/internal/domain/rating"

// Option configures a Matchmaker.
type Option func(*Matchmaker)

// WithEnv sets the rating environment used for win probabilities.
func WithEnv(env rating.Env) Option {
	return func(m *Matchmaker) {
		m.env = env
	}
}

// WithMaxCandidates bounds the raw Cartesian product size. Zero or less disables the bound.
func WithMaxCandidates(n int) Option {
	return func(m *Matchmaker) {
		m.maxCandidates = n
	}
}
