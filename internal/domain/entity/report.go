package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// ExpenseReport is the document carried through the approval chain
type ExpenseReport struct {
	ID            string     `json:"id"`
	EmployeeEmail string     `json:"employeeEmail"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Amount        Amount     `json:"amount"`
	Date          civil.Date `json:"date"`
	Receipts      []string   `json:"receipts"`
	Status        Status     `json:"status"`

	// Write-once signature slots, one per signing step
	EmployeeSignature *Signature `json:"employeeSignature,omitempty"`
	ManagerSignature  *Signature `json:"managerSignature,omitempty"`
	DirectorSignature *Signature `json:"directorSignature,omitempty"`

	DirectorConfirmation *Confirmation `json:"directorConfirmation,omitempty"`
	Rejection            *Rejection    `json:"rejection,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so a mutation can be prepared without touching
// the fetched document
func (r *ExpenseReport) Clone() *ExpenseReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Receipts = append([]string(nil), r.Receipts...)
	c.EmployeeSignature = r.EmployeeSignature.Clone()
	c.ManagerSignature = r.ManagerSignature.Clone()
	c.DirectorSignature = r.DirectorSignature.Clone()
	if r.DirectorConfirmation != nil {
		conf := *r.DirectorConfirmation
		c.DirectorConfirmation = &conf
	}
	if r.Rejection != nil {
		rej := *r.Rejection
		c.Rejection = &rej
	}
	return &c
}

// CheckInvariants validates the chaining rules between signature slots
func (r *ExpenseReport) CheckInvariants() error {
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, r.Status)
	}
	if r.ManagerSignature != nil && r.EmployeeSignature == nil {
		return fmt.Errorf("%w: manager signature without employee signature", ErrInvalidState)
	}
	if r.DirectorSignature != nil && r.ManagerSignature == nil {
		return fmt.Errorf("%w: director signature without manager signature", ErrInvalidState)
	}
	return nil
}

// ReportInput carries the immutable fields an employee provides at creation
type ReportInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Amount      Amount     `json:"amount"`
	Date        civil.Date `json:"date"`
	Receipts    []string   `json:"receipts"`
}

// Validate checks required fields
func (in ReportInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidReport)
	}
	if !in.Date.IsValid() {
		return fmt.Errorf("%w: date is required", ErrInvalidReport)
	}
	for i, ref := range in.Receipts {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("%w: receipt %d is empty", ErrInvalidReport, i)
		}
	}
	return nil
}

// ReportFilter narrows a listing
type ReportFilter struct {
	Status        Status
	EmployeeEmail string
	Limit         int
	Offset        int
}
