package model

import (
	"encoding/json"
	"fmt"
)

// Slot is a (team, role) position in a Composition.
type Slot struct {
	Team Team `json:"team"`
	Role Role `json:"role"`
}

func (s Slot) String() string { return s.Team.String() + "/" + s.Role.String() }

// Slots returns the ten slots in canonical order: roles in enumeration order,
// blue before red within a role.
func Slots() [2 * NumRoles]Slot {
	var out [2 * NumRoles]Slot
	for i, r := range Roles() {
		out[2*i] = Slot{Team: TeamBlue, Role: r}
		out[2*i+1] = Slot{Team: TeamRed, Role: r}
	}
	return out
}

// Lineup is one team's participants indexed by role.
type Lineup [NumRoles]string

// MarshalJSON renders a lineup as {"top": id, ...}.
func (l Lineup) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, NumRoles)
	for i, id := range l {
		m[roleNames[i]] = id
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses the object form produced by MarshalJSON.
func (l *Lineup) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Lineup
	for name, id := range m {
		r, err := ParseRole(name)
		if err != nil {
			return err
		}
		out[r] = id
	}
	*l = out
	return nil
}

// Composition assigns a participant id to each of the ten slots.
type Composition struct {
	Blue Lineup `json:"blue"`
	Red  Lineup `json:"red"`
}

// At returns the participant in slot s.
func (c Composition) At(s Slot) string {
	if s.Team == TeamRed {
		return c.Red[s.Role]
	}
	return c.Blue[s.Role]
}

// Set assigns participant id to slot s.
func (c *Composition) Set(s Slot, id string) {
	if s.Team == TeamRed {
		c.Red[s.Role] = id
		return
	}
	c.Blue[s.Role] = id
}

// Team returns the lineup for t.
func (c Composition) Team(t Team) Lineup {
	if t == TeamRed {
		return c.Red
	}
	return c.Blue
}

// Participants returns all ten ids in canonical slot order.
func (c Composition) Participants() []string {
	out := make([]string, 0, 2*NumRoles)
	for _, s := range Slots() {
		out = append(out, c.At(s))
	}
	return out
}

// SlotOf finds the slot held by participant id.
func (c Composition) SlotOf(id string) (Slot, bool) {
	for _, s := range Slots() {
		if c.At(s) == id {
			return s, true
		}
	}
	return Slot{}, false
}

// Contains reports whether id holds any slot.
func (c Composition) Contains(id string) bool {
	_, ok := c.SlotOf(id)
	return ok
}

// Validate checks that every slot is filled by ten pairwise distinct participants.
func (c Composition) Validate() error {
	seen := make(map[string]struct{}, 2*NumRoles)
	for _, s := range Slots() {
		id := c.At(s)
		if id == "" {
			return fmt.Errorf("%w: slot %s is empty", ErrInvalidComposition, s)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s appears twice", ErrInvalidComposition, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
