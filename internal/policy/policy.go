// Package policy decides whether a principal may perform an action.
// Decisions are pure: every fact needed is passed in.
package policy

import (
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

// Action is one of a closed set of operation tags.
type Action string

const (
	AdminOnly Action = "AdminOnly"

	AccessOwnAccount Action = "AccessOwnAccount"

	CreatePatientProfile   Action = "CreatePatientProfile"
	ReadAnyPatientRecord   Action = "ReadAnyPatientRecord"
	ReadOwnPatientRecord   Action = "ReadOwnPatientRecord"
	WriteOwnPatientRecord  Action = "WriteOwnPatientRecord"
	WriteOwnClinicalRecord Action = "WriteOwnClinicalRecord"
	AssignNurse            Action = "AssignNurse"

	ReadNurseDirectory  Action = "ReadNurseDirectory"
	WriteOwnNurseRecord Action = "WriteOwnNurseRecord"

	CreateOwnAlert       Action = "CreateOwnAlert"
	ReadOwnAlert         Action = "ReadOwnAlert"
	ReadAlertQueue       Action = "ReadAlertQueue"
	AcknowledgeAlert     Action = "AcknowledgeAlert"
	MutateOwnAlertStatus Action = "MutateOwnAlertStatus"

	ReadOwnTips    Action = "ReadOwnTips"
	WriteOwnTip    Action = "WriteOwnTip"
	MarkOwnTipRead Action = "MarkOwnTipRead"
)

// Deny reasons.
const (
	ReasonRoleNotPermitted = "role_not_permitted"
	ReasonNotOwner         = "not_owner"
	ReasonUnknownAction    = "unknown_action"
)

// Ownership holds the owning ids of the resource being accessed.
type Ownership struct {
	UserID    string
	PatientID string
	NurseID   string
}

// Decision is Allow, or Deny with a reason.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision { return Decision{Reason: reason} }

type ownerKind int

const (
	ownerNone ownerKind = iota
	// ownerAccount compares the subject id with Ownership.UserID.
	ownerAccount
	// ownerProfile compares the resolved profile id with Ownership.PatientID
	// for patients and Ownership.NurseID for nurses.
	ownerProfile
)

type actionSpec struct {
	roles []domain.Role
	owner ownerKind
}

var (
	anyone   = []domain.Role{domain.RolePatient, domain.RoleNurse}
	nurses   = []domain.Role{domain.RoleNurse}
	patients = []domain.Role{domain.RolePatient}
)

// Admins are implicitly permitted everywhere, so they are not listed.
var actions = map[Action]actionSpec{
	AdminOnly:              {},
	AccessOwnAccount:       {roles: anyone, owner: ownerAccount},
	CreatePatientProfile:   {roles: nurses},
	ReadAnyPatientRecord:   {roles: nurses},
	ReadOwnPatientRecord:   {roles: anyone, owner: ownerProfile},
	WriteOwnPatientRecord:  {roles: anyone, owner: ownerProfile},
	WriteOwnClinicalRecord: {roles: nurses, owner: ownerProfile},
	AssignNurse:            {roles: nurses},
	ReadNurseDirectory:     {roles: anyone},
	WriteOwnNurseRecord:    {roles: nurses, owner: ownerProfile},
	CreateOwnAlert:         {roles: anyone, owner: ownerProfile},
	ReadOwnAlert:           {roles: anyone, owner: ownerProfile},
	ReadAlertQueue:         {roles: nurses},
	AcknowledgeAlert:       {roles: nurses},
	MutateOwnAlertStatus:   {roles: nurses, owner: ownerProfile},
	ReadOwnTips:            {roles: anyone, owner: ownerProfile},
	WriteOwnTip:            {roles: nurses, owner: ownerProfile},
	MarkOwnTipRead:         {roles: patients, owner: ownerProfile},
}

type rule func(p domain.Principal, spec actionSpec, o Ownership) (Decision, bool)

// Evaluated in order; the first rule that matches decides.
var rules = []rule{
	func(p domain.Principal, _ actionSpec, _ Ownership) (Decision, bool) {
		return allow, p.Role == domain.RoleAdmin
	},
	func(p domain.Principal, spec actionSpec, _ Ownership) (Decision, bool) {
		for _, r := range spec.roles {
			if r == p.Role {
				return Decision{}, false
			}
		}
		return deny(ReasonRoleNotPermitted), true
	},
	func(p domain.Principal, spec actionSpec, o Ownership) (Decision, bool) {
		if spec.owner == ownerNone {
			return Decision{}, false
		}
		own, owner := ownerIDs(p, spec.owner, o)
		if own == "" || own != owner {
			return deny(ReasonNotOwner), true
		}
		return Decision{}, false
	},
}

func ownerIDs(p domain.Principal, kind ownerKind, o Ownership) (string, string) {
	if kind == ownerAccount {
		return p.SubjectID, o.UserID
	}
	switch p.Role {
	case domain.RolePatient:
		return p.ProfileID, o.PatientID
	case domain.RoleNurse:
		return p.ProfileID, o.NurseID
	}
	return "", ""
}

// Authorize evaluates the rule table.
func Authorize(p domain.Principal, action Action, o Ownership) Decision {
	spec, ok := actions[action]
	if !ok {
		return deny(ReasonUnknownAction)
	}
	for _, r := range rules {
		if d, matched := r(p, spec, o); matched {
			return d
		}
	}
	return allow
}

// Check is Authorize reported as an error.
func Check(p domain.Principal, action Action, o Ownership) error {
	d := Authorize(p, action, o)
	if d.Allowed {
		return nil
	}
	return apperr.New(apperr.Unauthorized, "not permitted").
		With("action", string(action)).
		With("reason", d.Reason)
}
