package entity

import "time"

// ApprovalHistory represents the audit trail of an expense report. One entry
// is appended per committed transition.
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	ReportID       string    `json:"report_id"`
	ActorIdentity  string    `json:"actor_identity"`
	ActorRole      Role      `json:"actor_role"`
	Action         string    `json:"action"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
