package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of roles an identity can hold.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleUniversity Role = "UNIVERSITY"
	RoleSponsor    Role = "SPONSOR"
	RoleStudent    Role = "STUDENT"
	RoleUser       Role = "USER"
)

// Roles lists every known role, most privileged first.
var Roles = []Role{RoleAdmin, RoleUniversity, RoleSponsor, RoleStudent, RoleUser}

const legacyRolePrefix = "ROLE_"

// ParseRole converts a stored or user-supplied value into a Role. The legacy
// "ROLE_" prefix and any letter case are accepted; anything else is rejected.
func ParseRole(raw string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.TrimPrefix(v, legacyRolePrefix)
	r := Role(v)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUniversity, RoleSponsor, RoleStudent, RoleUser:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// Identity is a registered account as seen by the auth subsystem.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Affiliation  string
	FirstName    string
	LastName     string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name, skipping empty parts.
func (i Identity) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
}

// IdentityContext is the authenticated caller of a single request. It is
// built once by the gate and passed by value to authorization checks.
type IdentityContext struct {
	IdentityID  string
	Subject     string
	Role        Role
	Affiliation string
}

// IsZero reports whether no identity has been resolved.
func (ic IdentityContext) IsZero() bool {
	return ic.Subject == ""
}

func newIdentityContext(id *Identity) IdentityContext {
	return IdentityContext{
		IdentityID:  id.ID,
		Subject:     id.Email,
		Role:        id.Role,
		Affiliation: id.Affiliation,
	}
}

// NormalizeEmail trims and lower-cases an email used as subject.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
