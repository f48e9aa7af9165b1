package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles a principal can hold.
type Role string

const (
	RoleClinician    Role = "Clinician"
	RoleReceptionist Role = "Receptionist"
	RolePatient      Role = "Patient"
	// RoleAdmin is a legacy superuser kept for existing accounts.
	RoleAdmin Role = "Admin"
)

// Roles lists every role in a stable order.
func Roles() []Role {
	return []Role{RoleClinician, RoleReceptionist, RolePatient, RoleAdmin}
}

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleClinician, RoleReceptionist, RolePatient, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts the canonical names case-insensitively.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
