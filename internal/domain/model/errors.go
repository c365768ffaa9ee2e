package model

import "errors"

// Sentinel errors for model parsing and validation.
var (
	ErrUnknownRole         = errors.New("unknown role")
	ErrUnknownTeam         = errors.New("unknown team")
	ErrUnknownSessionState = errors.New("unknown session state")
	ErrInvalidComposition  = errors.New("invalid composition")
)

// ErrInvalidTransition is returned for a lifecycle step the state machine forbids.
var ErrInvalidTransition = errors.New("invalid session transition")
