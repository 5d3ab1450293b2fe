package entity

// Status is the lifecycle state of an ExpenseReport
type Status string

// Status constants for ExpenseReport
const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
	StatusSigned    Status = "signed"
	StatusConfirmed Status = "confirmed"
)

// statusRank orders the main approval path. Rejected sits past every
// non-terminal state so a rejection never moves a report backwards.
var statusRank = map[Status]int{
	StatusDraft:     0,
	StatusSubmitted: 1,
	StatusValidated: 2,
	StatusSigned:    3,
	StatusConfirmed: 4,
	StatusRejected:  5,
}

// IsValid returns true if the status is one of the known lifecycle states
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of the status along the approval path, or -1
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Transition names recorded in the approval history
const (
	ActionCreate   = "create"
	ActionSubmit   = "submit"
	ActionValidate = "validate"
	ActionSign     = "sign"
	ActionConfirm  = "confirm"
	ActionReject   = "reject"
)
