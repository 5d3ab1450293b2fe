package workflow

import "github.com/garyjia/expense-attest/internal/domain/entity"

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit   Trigger = entity.ActionSubmit
	TriggerValidate Trigger = entity.ActionValidate
	TriggerSign     Trigger = entity.ActionSign
	TriggerConfirm  Trigger = entity.ActionConfirm
	TriggerReject   Trigger = entity.ActionReject
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
