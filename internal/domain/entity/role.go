package entity

import (
	"fmt"
	"strings"
)

// Role is the approval-chain role supplied by the authorization layer
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleDirector Role = "director"
)

// ParseRole parses a role name, case-insensitively
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleEmployee, RoleManager, RoleDirector:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrUnauthorized, s)
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Actor is the authenticated caller of a core operation. The core trusts it
// as-is; it is always passed explicitly, never read from ambient state.
type Actor struct {
	Identity string
	Role     Role
}

// NewActor builds an actor, rejecting empty identities and unknown roles
func NewActor(identity, role string) (Actor, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Actor{}, fmt.Errorf("%w: missing identity", ErrUnauthorized)
	}
	r, err := ParseRole(role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{Identity: identity, Role: r}, nil
}
