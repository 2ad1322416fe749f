package model

import "fmt"

// Role is the single trust level carried by a user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleGameMaster Role = "game_master"
	RolePlayer     Role = "player"
)

// Roles lists every role, most trusted first.
var Roles = []Role{RoleAdmin, RoleModerator, RoleGameMaster, RolePlayer}

// ParseRole converts a stored or user supplied string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleModerator, RoleGameMaster, RolePlayer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Rank orders roles by trust. Higher is more trusted; unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 4
	case RoleModerator:
		return 3
	case RoleGameMaster:
		return 2
	case RolePlayer:
		return 1
	}
	return 0
}

// IsStaff reports whether the role bypasses character based visibility.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleGameMaster:
		return true
	}
	return false
}

func (r Role) Valid() bool { return r.Rank() > 0 }

func (r Role) String() string { return string(r) }
