package types

import (
	"slices"
	"strings"
)

type Role string

const (
	RoleJuniorEngineer    Role = "JUNIOR_ENGINEER"
	RoleAssistantEngineer Role = "ASSISTANT_ENGINEER"
	RoleExecutiveEngineer Role = "EXECUTIVE_ENGINEER"
	RoleCityEngineer      Role = "CITY_ENGINEER"
	RoleClerk             Role = "CLERK"

	// RoleApplicant owns PAYMENT_PENDING. It never signs; payment intake
	// advances the stage on its behalf.
	RoleApplicant Role = "APPLICANT"
)

var reviewerRoles = []Role{
	RoleJuniorEngineer,
	RoleAssistantEngineer,
	RoleExecutiveEngineer,
	RoleCityEngineer,
	RoleClerk,
}

// ParseRole normalizes a role name. Unknown names come back as-is and fail
// Valid.
func ParseRole(v string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(v)))
}

func (r Role) Valid() bool {
	return r == RoleApplicant || slices.Contains(reviewerRoles, r)
}

// Reviewer reports whether the role signs with an OTP.
func (r Role) Reviewer() bool {
	return slices.Contains(reviewerRoles, r)
}

// Stages returns every stage the role may act on, in stage order.
func (r Role) Stages() []Stage {
	out := make([]Stage, 0, 2)
	for _, s := range Stages() {
		if s.Owner() == r && r != "" {
			out = append(out, s)
		}
	}
	return out
}

// Owns reports whether the role may act on the stage.
func (r Role) Owns(s Stage) bool {
	return r != "" && s.Owner() == r
}
