package matchmaking

import "errors"

var (
	// ErrNoViableComposition is a normal outcome: some role has fewer than two
	// eligible participants or every candidate reuses a participant.
	ErrNoViableComposition = errors.New("no viable composition")
	// ErrSearchSpaceTooLarge is returned when the raw candidate count exceeds
	// the configured bound.
	ErrSearchSpaceTooLarge = errors.New("search space too large")
)
