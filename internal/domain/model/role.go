// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Role is one of the five fixed in-game positions.
type Role uint8

// Roles in their fixed enumeration order. The order drives matchmaking
// iteration and therefore tie-breaking.
const (
	RoleTop Role = iota
	RoleJungle
	RoleMid
	RoleBot
	RoleSupport

	NumRoles = 5
)

var roleNames = [NumRoles]string{"top", "jungle", "mid", "bot", "support"}

// Roles returns all roles in enumeration order.
func Roles() [NumRoles]Role {
	return [NumRoles]Role{RoleTop, RoleJungle, RoleMid, RoleBot, RoleSupport}
}

// RoleNames returns the canonical lowercase role names in enumeration order.
func RoleNames() []string {
	return append([]string(nil), roleNames[:]...)
}

// RoleAliases maps common shorthand to canonical role names.
var RoleAliases = map[string]string{
	"jg":       "jungle",
	"jgl":      "jungle",
	"jungler":  "jungle",
	"middle":   "mid",
	"adc":      "bot",
	"ad":       "bot",
	"bottom":   "bot",
	"marksman": "bot",
	"sup":      "support",
	"supp":     "support",
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", uint8(r))
	}
	return roleNames[r]
}

// Valid reports whether r is one of the five roles.
func (r Role) Valid() bool { return r < NumRoles }

// ParseRole parses an exact role name or alias, case-insensitively.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := RoleAliases[s]; ok {
		s = alias
	}
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
