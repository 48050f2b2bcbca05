package domain

import (
	"slices"
	"strings"
	"time"
)

type Role string

const (
	RoleDeveloper         Role = "developer"
	RoleReviewer          Role = "reviewer"
	RoleQAEngineer        Role = "qa_engineer"
	RoleSecurityEngineer  Role = "security_engineer"
	RoleComplianceOfficer Role = "compliance_officer"
	RoleAdmin             Role = "admin"
)

var knownRoles = []Role{
	RoleDeveloper,
	RoleReviewer,
	RoleQAEngineer,
	RoleSecurityEngineer,
	RoleComplianceOfficer,
	RoleAdmin,
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(knownRoles, r) {
		return "", NewValidationError("unknown role %q", s)
	}
	return r, nil
}

// User is an immutable identity. Roles are kept sorted and unique.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUser(id, username, email, fullName string, roles []Role, createdAt time.Time) (User, error) {
	u := User{
		ID:        id,
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Roles:     normalizeRoles(roles),
		CreatedAt: createdAt,
	}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (u User) Validate() error {
	if u.ID == "" {
		return NewValidationError("user id cannot be empty")
	}
	if u.Username == "" {
		return NewValidationError("username cannot be empty")
	}
	if !strings.Contains(u.Email, "@") {
		return NewValidationError("email must be valid")
	}
	for _, r := range u.Roles {
		if !slices.Contains(knownRoles, r) {
			return NewValidationError("unknown role %q", r)
		}
	}
	return nil
}

func (u User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

func (u User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// WithRole returns a copy of u that also has role.
func (u User) WithRole(role Role) User {
	roles := append(slices.Clone(u.Roles), role)
	u.Roles = normalizeRoles(roles)
	return u
}

// WithoutRole returns a copy of u without role.
func (u User) WithoutRole(role Role) User {
	u.Roles = normalizeRoles(slices.DeleteFunc(slices.Clone(u.Roles), func(r Role) bool { return r == role }))
	return u
}

func normalizeRoles(roles []Role) []Role {
	out := slices.Clone(roles)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []Role{}
	}
	return out
}
