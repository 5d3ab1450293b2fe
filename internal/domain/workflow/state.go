package workflow

import "github.com/garyjia/expense-attest/internal/domain/entity"

// State represents a workflow state in the approval lifecycle
type State string

const (
	StateDraft     State = State(entity.StatusDraft)
	StateSubmitted State = State(entity.StatusSubmitted)
	StateValidated State = State(entity.StatusValidated)
	StateRejected  State = State(entity.StatusRejected)
	StateSigned    State = State(entity.StatusSigned)
	StateConfirmed State = State(entity.StatusConfirmed)
)

var validStates = map[State]bool{
	StateDraft:     true,
	StateSubmitted: true,
	StateValidated: true,
	StateRejected:  true,
	StateSigned:    true,
	StateConfirmed: true,
}

var terminalStates = map[State]bool{
	StateRejected:  true,
	StateConfirmed: true,
}

// StateOf converts a stored report status into a workflow state
func StateOf(status entity.Status) State {
	return State(status)
}

// Status converts the state back into a report status
func (s State) Status() entity.Status {
	return entity.Status(s)
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
