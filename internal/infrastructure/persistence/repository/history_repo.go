package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (
			report_id, actor_identity, actor_role, action,
			previous_status, new_status, detail, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		history.ReportID,
		history.ActorIdentity,
		history.ActorRole,
		history.Action,
		history.PreviousStatus,
		history.NewStatus,
		history.Detail,
		entity.FormatTimestamp(history.Timestamp),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("report_id", history.ReportID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByReportID retrieves all history records for a report in commit order
func (r *HistoryRepository) GetByReportID(ctx context.Context, reportID string) ([]*entity.ApprovalHistory, error) {
	query := `
		SELECT id, report_id, actor_identity, actor_role, action,
			previous_status, new_status, detail, timestamp
		FROM approval_history
		WHERE report_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, reportID)
	if err != nil {
		r.logger.Error("Failed to get history by report ID", zap.String("report_id", reportID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalHistory
	for rows.Next() {
		var (
			record    entity.ApprovalHistory
			timestamp string
		)
		err := rows.Scan(
			&record.ID,
			&record.ReportID,
			&record.ActorIdentity,
			&record.ActorRole,
			&record.Action,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Detail,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if record.Timestamp, err = entity.ParseTimestamp(timestamp); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
