package workflow

import "github.com/garyjia/expense-attest/internal/domain/entity"

// Slot names the signature slot a transition writes
type Slot string

const (
	SlotNone     Slot = ""
	SlotEmployee Slot = "employeeSignature"
	SlotManager  Slot = "managerSignature"
	SlotDirector Slot = "directorSignature"
)

// Occupied reports whether the slot already holds a signature
func (s Slot) Occupied(report *entity.ExpenseReport) bool {
	switch s {
	case SlotEmployee:
		return report.EmployeeSignature != nil
	case SlotManager:
		return report.ManagerSignature != nil
	case SlotDirector:
		return report.DirectorSignature != nil
	default:
		return false
	}
}

// Rule says who may fire a trigger and which slot it fills
type Rule struct {
	Trigger Trigger
	Roles   []entity.Role
	Slot    Slot
}

// Allows reports whether role may fire the rule's trigger
func (r Rule) Allows(role entity.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Signing reports whether the transition produces a signature
func (r Rule) Signing() bool {
	return r.Slot != SlotNone
}

var rules = map[Trigger]Rule{
	TriggerSubmit: {
		Trigger: TriggerSubmit,
		Roles:   []entity.Role{entity.RoleEmployee},
		Slot:    SlotEmployee,
	},
	TriggerValidate: {
		Trigger: TriggerValidate,
		Roles:   []entity.Role{entity.RoleManager},
		Slot:    SlotManager,
	},
	TriggerSign: {
		Trigger: TriggerSign,
		Roles:   []entity.Role{entity.RoleDirector},
		Slot:    SlotDirector,
	},
	TriggerConfirm: {
		Trigger: TriggerConfirm,
		Roles:   []entity.Role{entity.RoleDirector},
	},
	TriggerReject: {
		Trigger: TriggerReject,
		Roles:   []entity.Role{entity.RoleManager, entity.RoleDirector},
	},
}

// RuleFor returns the rule of a trigger
func RuleFor(t Trigger) (Rule, bool) {
	r, ok := rules[t]
	return r, ok
}

// Guards supplies the report-dependent conditions of the approval machine
type Guards struct {
	// Validate runs before submitted -> validated
	Validate GuardFunc

	// Confirm runs before validated|signed -> confirmed
	Confirm GuardFunc
}

// NewApprovalMachine builds the expense approval machine positioned at initial:
//
//	draft     --submit-->   submitted
//	submitted --validate--> validated
//	validated --sign-->     signed
//	validated --confirm-->  confirmed
//	signed    --confirm-->  confirmed
//	submitted --reject-->   rejected
//	validated --reject-->   rejected
func NewApprovalMachine(initial State, guards Guards) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	builder.Configure(StateSubmitted).
		PermitIf(TriggerValidate, StateValidated, guards.Validate).
		Permit(TriggerReject, StateRejected)

	builder.Configure(StateValidated).
		Permit(TriggerSign, StateSigned).
		PermitIf(TriggerConfirm, StateConfirmed, guards.Confirm).
		Permit(TriggerReject, StateRejected)

	builder.Configure(StateSigned).
		PermitIf(TriggerConfirm, StateConfirmed, guards.Confirm)

	return builder.Build(initial)
}
