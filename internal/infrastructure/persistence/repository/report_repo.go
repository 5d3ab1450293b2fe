package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-sql/civil"
	"go.uber.org/zap"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/infrastructure/persistence/sqlite"
)

const reportColumns = `
	id, employee_email, title, description, amount, expense_date, receipts,
	status, employee_signature, manager_signature, director_signature,
	director_confirmation, rejection, created_at, updated_at
`

// ReportRepository implements port.ReportStore on SQLite
type ReportRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlite.DB, logger *zap.Logger) port.ReportStore {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new report
func (r *ReportRepository) Create(ctx context.Context, report *entity.ExpenseReport) error {
	query := `
		INSERT INTO expense_reports (` + reportColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	receipts, err := json.Marshal(nonNilReceipts(report.Receipts))
	if err != nil {
		return fmt.Errorf("failed to encode receipts: %w", err)
	}
	slots, err := encodeSlots(report)
	if err != nil {
		return err
	}

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		report.ID,
		report.EmployeeEmail,
		report.Title,
		report.Description,
		report.Amount,
		report.Date.String(),
		string(receipts),
		report.Status,
		slots.employee,
		slots.manager,
		slots.director,
		slots.confirmation,
		slots.rejection,
		entity.FormatTimestamp(report.CreatedAt),
		entity.FormatTimestamp(report.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create report", zap.String("report_id", report.ID), zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}

	return nil
}

// Get retrieves a report by ID
func (r *ReportRepository) Get(ctx context.Context, id string) (*entity.ExpenseReport, error) {
	query := `SELECT ` + reportColumns + ` FROM expense_reports WHERE id = ?`

	report, err := scanReport(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.String("report_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return report, nil
}

// ConditionalUpdate writes the mutable columns only while the stored status
// still equals expected. Content columns are never rewritten.
func (r *ReportRepository) ConditionalUpdate(ctx context.Context, id string, expected entity.Status, mutated *entity.ExpenseReport) error {
	if mutated.ID != id {
		return fmt.Errorf("conditional update of %s with report %s", id, mutated.ID)
	}

	query := `
		UPDATE expense_reports
		SET status = ?, employee_signature = ?, manager_signature = ?,
			director_signature = ?, director_confirmation = ?, rejection = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	slots, err := encodeSlots(mutated)
	if err != nil {
		return err
	}

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		mutated.Status,
		slots.employee,
		slots.manager,
		slots.director,
		slots.confirmation,
		slots.rejection,
		entity.FormatTimestamp(mutated.UpdatedAt),
		id,
		expected,
	)
	if err != nil {
		r.logger.Error("Failed to update report", zap.String("report_id", id), zap.Error(err))
		return fmt.Errorf("failed to update report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	err = exec.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM expense_reports WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to probe report: %w", err)
	}
	if !exists {
		return fmt.Errorf("report %s: %w", id, entity.ErrNotFound)
	}

	r.logger.Info("Conditional update lost",
		zap.String("report_id", id),
		zap.String("expected_status", expected.String()))
	return fmt.Errorf("report %s is no longer %s: %w", id, expected, entity.ErrConflict)
}

// List retrieves reports matching filter, newest first
func (r *ReportRepository) List(ctx context.Context, filter entity.ReportFilter) ([]*entity.ExpenseReport, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.EmployeeEmail != "" {
		where = append(where, "employee_email = ?")
		args = append(args, filter.EmployeeEmail)
	}

	query := `SELECT ` + reportColumns + ` FROM expense_reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list reports", zap.Error(err))
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*entity.ExpenseReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*entity.ExpenseReport, error) {
	var (
		report                               entity.ExpenseReport
		date, receipts, createdAt, updatedAt string
		employeeSig, managerSig, directorSig sql.NullString
		confirmation, rejection              sql.NullString
	)

	err := row.Scan(
		&report.ID,
		&report.EmployeeEmail,
		&report.Title,
		&report.Description,
		&report.Amount,
		&date,
		&receipts,
		&report.Status,
		&employeeSig,
		&managerSig,
		&directorSig,
		&confirmation,
		&rejection,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if report.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("invalid expense_date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(receipts), &report.Receipts); err != nil {
		return nil, fmt.Errorf("invalid receipts: %w", err)
	}
	if report.CreatedAt, err = entity.ParseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if report.UpdatedAt, err = entity.ParseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	if report.EmployeeSignature, err = decodeColumn[entity.Signature](employeeSig); err != nil {
		return nil, err
	}
	if report.ManagerSignature, err = decodeColumn[entity.Signature](managerSig); err != nil {
		return nil, err
	}
	if report.DirectorSignature, err = decodeColumn[entity.Signature](directorSig); err != nil {
		return nil, err
	}
	if report.DirectorConfirmation, err = decodeColumn[entity.Confirmation](confirmation); err != nil {
		return nil, err
	}
	if report.Rejection, err = decodeColumn[entity.Rejection](rejection); err != nil {
		return nil, err
	}

	return &report, nil
}

// encodedSlots holds the nullable JSON columns of a report
type encodedSlots struct {
	employee, manager, director sql.NullString
	confirmation, rejection     sql.NullString
}

func encodeSlots(report *entity.ExpenseReport) (encodedSlots, error) {
	var (
		s   encodedSlots
		err error
	)
	if s.employee, err = encodeColumn(report.EmployeeSignature); err != nil {
		return s, err
	}
	if s.manager, err = encodeColumn(report.ManagerSignature); err != nil {
		return s, err
	}
	if s.director, err = encodeColumn(report.DirectorSignature); err != nil {
		return s, err
	}
	if s.confirmation, err = encodeColumn(report.DirectorConfirmation); err != nil {
		return s, err
	}
	if s.rejection, err = encodeColumn(report.Rejection); err != nil {
		return s, err
	}
	return s, nil
}

func encodeColumn[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeColumn[T any](col sql.NullString) (*T, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return &v, nil
}

func nonNilReceipts(receipts []string) []string {
	if receipts == nil {
		return []string{}
	}
	return receipts
}

// Verify interface compliance
var _ port.ReportStore = (*ReportRepository)(nil)
