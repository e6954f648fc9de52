package types

import (
	"fmt"
	"strconv"
)

// Stage is the position of an application in the approval chain. The integer
// codes are part of the external contract and must stay ordered.
type Stage int

const (
	StageJuniorEngineerPending Stage = iota
	StageDocumentVerificationPending
	StageAssistantEngineerPending
	StageExecutiveEngineerPending
	StageCityEngineerPending
	StagePaymentPending
	StageClerkPending
	StageExecutiveEngineerSignPending
	StageCityEngineerSignPending
	StageApproved
	StageRejected
)

type stageInfo struct {
	name  string
	label string
	owner Role
}

var stageTable = map[Stage]stageInfo{
	StageJuniorEngineerPending:        {"JUNIOR_ENGINEER_PENDING", "Pending Junior Engineer review", RoleJuniorEngineer},
	StageDocumentVerificationPending:  {"DOCUMENT_VERIFICATION_PENDING", "Pending document verification", RoleJuniorEngineer},
	StageAssistantEngineerPending:     {"ASSISTANT_ENGINEER_PENDING", "Pending Assistant Engineer review", RoleAssistantEngineer},
	StageExecutiveEngineerPending:     {"EXECUTIVE_ENGINEER_PENDING", "Pending Executive Engineer review", RoleExecutiveEngineer},
	StageCityEngineerPending:          {"CITY_ENGINEER_PENDING", "Pending City Engineer approval", RoleCityEngineer},
	StagePaymentPending:               {"PAYMENT_PENDING", "Awaiting fee payment", RoleApplicant},
	StageClerkPending:                 {"CLERK_PENDING", "Pending Clerk processing", RoleClerk},
	StageExecutiveEngineerSignPending: {"EXECUTIVE_ENGINEER_SIGN_PENDING", "Pending Executive Engineer digital signature", RoleExecutiveEngineer},
	StageCityEngineerSignPending:      {"CITY_ENGINEER_SIGN_PENDING", "Pending City Engineer digital signature", RoleCityEngineer},
	StageApproved:                     {"APPROVED", "Approved, certificate issued", ""},
	StageRejected:                     {"REJECTED", "Rejected", ""},
}

// Stages lists every stage in code order.
func Stages() []Stage {
	out := make([]Stage, 0, len(stageTable))
	for s := StageJuniorEngineerPending; s <= StageRejected; s++ {
		out = append(out, s)
	}
	return out
}

func (s Stage) Valid() bool {
	_, ok := stageTable[s]
	return ok
}

func (s Stage) String() string {
	if info, ok := stageTable[s]; ok {
		return info.name
	}
	return "STAGE(" + strconv.Itoa(int(s)) + ")"
}

func (s Stage) Label() string {
	return stageTable[s].label
}

// Owner is the role designated to process the stage. Terminal and side
// states have no owner.
func (s Stage) Owner() Role {
	return stageTable[s].owner
}

// Next is the stage that follows s on a successful signature. ok is false for
// APPROVED and REJECTED.
func (s Stage) Next() (Stage, bool) {
	if s < StageJuniorEngineerPending || s >= StageApproved {
		return s, false
	}
	return s + 1, true
}

// Rejectable reports whether an owner may reject at this stage. The payment
// and stage-2 signing stages only move forward.
func (s Stage) Rejectable() bool {
	switch s {
	case StageJuniorEngineerPending,
		StageDocumentVerificationPending,
		StageAssistantEngineerPending,
		StageExecutiveEngineerPending,
		StageCityEngineerPending,
		StageClerkPending:
		return true
	}
	return false
}

// FinalRejection reports whether a rejection at this stage closes the
// application for good.
func (s Stage) FinalRejection() bool {
	return s == StageCityEngineerPending
}

// ParseStage accepts either the integer code or the stage name.
func ParseStage(v string) (Stage, error) {
	if code, err := strconv.Atoi(v); err == nil {
		s := Stage(code)
		if !s.Valid() {
			return 0, fmt.Errorf("unknown stage code %d", code)
		}
		return s, nil
	}
	for s, info := range stageTable {
		if info.name == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", v)
}

// StageDescriptor is the wire form of one row of the stage table.
type StageDescriptor struct {
	Code  int    `json:"code"`
	Name  string `json:"name"`
	Label string `json:"label"`
	Owner Role   `json:"owner,omitempty"`
}

func StageTable() []StageDescriptor {
	out := make([]StageDescriptor, 0, len(stageTable))
	for _, s := range Stages() {
		out = append(out, StageDescriptor{
			Code:  int(s),
			Name:  s.String(),
			Label: s.Label(),
			Owner: s.Owner(),
		})
	}
	return out
}
