package model

import (
	"fmt"
	"strings"
)

// Team identifies a side. The zero value means unset.
type Team uint8

const (
	TeamNone Team = iota
	TeamBlue
	TeamRed
)

// Teams returns both sides, blue first.
func Teams() [2]Team { return [2]Team{TeamBlue, TeamRed} }

func (t Team) String() string {
	switch t {
	case TeamBlue:
		return "blue"
	case TeamRed:
		return "red"
	case TeamNone:
		return ""
	default:
		return fmt.Sprintf("team(%d)", uint8(t))
	}
}

// Opponent returns the other side; TeamNone stays TeamNone.
func (t Team) Opponent() Team {
	switch t {
	case TeamBlue:
		return TeamRed
	case TeamRed:
		return TeamBlue
	default:
		return TeamNone
	}
}

// ParseTeam parses "blue" or "red".
func ParseTeam(s string) (Team, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blue":
		return TeamBlue, nil
	case "red":
		return TeamRed, nil
	case "":
		return TeamNone, nil
	}
	return TeamNone, fmt.Errorf("%w: %q", ErrUnknownTeam, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Team) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Team) UnmarshalText(b []byte) error {
	parsed, err := ParseTeam(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// index maps blue/red to 0/1.
func (t Team) index() int {
	if t == TeamRed {
		return 1
	}
	return 0
}
