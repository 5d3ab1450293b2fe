package port

import (
	"context"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

// ReportStore persists expense reports. Every write after creation goes
// through ConditionalUpdate, which is the only concurrency primitive.
type ReportStore interface {
	Create(ctx context.Context, report *entity.ExpenseReport) error
	Get(ctx context.Context, id string) (*entity.ExpenseReport, error)

	// ConditionalUpdate replaces the stored report with mutated only if its
	// status still equals expected. It returns entity.ErrConflict when another
	// writer got there first and entity.ErrNotFound when the id is unknown.
	ConditionalUpdate(ctx context.Context, id string, expected entity.Status, mutated *entity.ExpenseReport) error

	List(ctx context.Context, filter entity.ReportFilter) ([]*entity.ExpenseReport, error)
}

// HistoryRepository defines persistence operations for ApprovalHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApprovalHistory) error
	GetByReportID(ctx context.Context, reportID string) ([]*entity.ApprovalHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
