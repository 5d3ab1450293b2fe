// Package export renders the audit workbook: one row per expense report with
// every signature, its verification outcome and the final confirmation.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/application/service"
	"github.com/garyjia/expense-attest/internal/domain/entity"
)

const (
	pageSize      = 500
	verifyWorkers = 8
)

// Headers are the workbook column titles, in order
var Headers = []string{
	"Report ID", "Employee", "Title", "Amount", "Date", "Status", "Receipts",
	"Employee Signed At", "Employee Signature",
	"Manager", "Manager Signed At", "Manager Signature",
	"Director", "Director Signed At", "Director Signature",
	"Confirmed By", "Confirmed At",
	"Rejected By", "Rejection Reason",
	"Created At", "Updated At",
}

// Config holds workbook settings
type Config struct {
	SheetName string
}

// Summary describes an exported workbook
type Summary struct {
	Reports  int
	Total    entity.Amount
	Failures int
}

// Exporter builds audit workbooks from the report store
type Exporter struct {
	approvals service.ApprovalService
	verifier  service.VerificationService
	config    Config
	logger    *zap.Logger
}

// NewExporter creates a new Exporter
func NewExporter(approvals service.ApprovalService, verifier service.VerificationService, config Config, logger *zap.Logger) *Exporter {
	if config.SheetName == "" {
		config.SheetName = "Audit"
	}
	return &Exporter{
		approvals: approvals,
		verifier:  verifier,
		config:    config,
		logger:    logger,
	}
}

// FileName returns the default workbook name for an export taken at t
func FileName(t time.Time) string {
	return fmt.Sprintf("audit-%s.xlsx", t.UTC().Format("20060102T150405Z"))
}

// WriteTo renders the workbook for the reports matching filter into w.
// Only directors may export.
func (e *Exporter) WriteTo(ctx context.Context, actor entity.Actor, filter entity.ReportFilter, w io.Writer) (Summary, error) {
	f, summary, err := e.build(ctx, actor, filter)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return Summary{}, fmt.Errorf("failed to write workbook: %w", err)
	}
	return summary, nil
}

// Archive renders the workbook and saves it in store under name. An
// existing artifact is never overwritten.
func (e *Exporter) Archive(ctx context.Context, actor entity.Actor, filter entity.ReportFilter, store port.ArtifactStore, name string) (string, Summary, error) {
	if store.Exists(ctx, name) {
		return "", Summary{}, fmt.Errorf("%w: artifact %s already exists", entity.ErrConflict, name)
	}

	var buf bytes.Buffer
	summary, err := e.WriteTo(ctx, actor, filter, &buf)
	if err != nil {
		return "", Summary{}, err
	}

	path, err := store.Save(ctx, name, buf.Bytes())
	if err != nil {
		return "", Summary{}, err
	}

	e.logger.Info("Audit workbook archived",
		zap.String("path", path),
		zap.Int("reports", summary.Reports),
		zap.Int("verification_failures", summary.Failures))
	return path, summary, nil
}

// row pairs a report with its verification outcome
type row struct {
	report       *entity.ExpenseReport
	verification *service.VerificationReport
}

func (e *Exporter) build(ctx context.Context, actor entity.Actor, filter entity.ReportFilter) (*excelize.File, Summary, error) {
	if actor.Role != entity.RoleDirector {
		return nil, Summary{}, fmt.Errorf("%w: only directors export the audit workbook", entity.ErrUnauthorized)
	}

	reports, err := e.collect(ctx, actor, filter)
	if err != nil {
		return nil, Summary{}, err
	}

	rows, err := e.verifyAll(ctx, reports)
	if err != nil {
		return nil, Summary{}, err
	}

	f := excelize.NewFile()
	sheet := e.config.SheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, Summary{}, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := lo.ToAnySlice(Headers)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, Summary{}, fmt.Errorf("failed to write header: %w", err)
	}
	e.styleHeader(f, sheet)

	summary := Summary{Reports: len(rows)}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, Summary{}, err
		}
		values := lo.ToAnySlice(rowValues(r))
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			_ = f.Close()
			return nil, Summary{}, fmt.Errorf("failed to write row for %s: %w", r.report.ID, err)
		}

		summary.Total = summary.Total.Add(r.report.Amount)
		summary.Failures += len(r.verification.Failed())
	}

	e.writeTotals(f, sheet, len(rows)+3, summary)

	e.logger.Info("Audit workbook built",
		zap.String("actor", actor.Identity),
		zap.Int("reports", summary.Reports),
		zap.String("total", summary.Total.String()))
	return f, summary, nil
}

// collect pages through every report matching filter
func (e *Exporter) collect(ctx context.Context, actor entity.Actor, filter entity.ReportFilter) ([]*entity.ExpenseReport, error) {
	var all []*entity.ExpenseReport
	page := filter
	page.Limit = pageSize
	for {
		batch, err := e.approvals.List(ctx, actor, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
		page.Offset += pageSize
	}
}

// verifyAll verifies reports concurrently, preserving order
func (e *Exporter) verifyAll(ctx context.Context, reports []*entity.ExpenseReport) ([]row, error) {
	rows := make([]row, len(reports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyWorkers)
	for i, report := range reports {
		g.Go(func() error {
			result, err := e.verifier.Verify(gctx, report)
			if err != nil {
				return err
			}
			rows[i] = row{report: report, verification: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func rowValues(r row) []string {
	rep := r.report
	values := []string{
		rep.ID,
		rep.EmployeeEmail,
		rep.Title,
		rep.Amount.String(),
		rep.Date.String(),
		rep.Status.String(),
		fmt.Sprint(len(rep.Receipts)),
		signedAt(rep.EmployeeSignature),
		outcome(r.verification, entity.ActionSubmit),
		signer(rep.ManagerSignature),
		signedAt(rep.ManagerSignature),
		outcome(r.verification, entity.ActionValidate),
		signer(rep.DirectorSignature),
		signedAt(rep.DirectorSignature),
		outcome(r.verification, entity.ActionSign),
	}

	if c := rep.DirectorConfirmation; c != nil {
		values = append(values, c.ConfirmedBy, entity.FormatTimestamp(c.ConfirmedAt))
	} else {
		values = append(values, "", "")
	}
	if rj := rep.Rejection; rj != nil {
		values = append(values, rj.RejectedBy, rj.Reason)
	} else {
		values = append(values, "", "")
	}

	return append(values,
		entity.FormatTimestamp(rep.CreatedAt),
		entity.FormatTimestamp(rep.UpdatedAt),
	)
}

func signer(sig *entity.Signature) string {
	if sig == nil {
		return ""
	}
	return sig.SignedBy
}

func signedAt(sig *entity.Signature) string {
	if sig == nil {
		return ""
	}
	return entity.FormatTimestamp(sig.SignedAt)
}

// outcome renders one verification cell: empty when unsigned
func outcome(v *service.VerificationReport, step string) string {
	s, ok := v.Step(step)
	switch {
	case !ok || !s.Present:
		return ""
	case s.Valid:
		return "valid"
	default:
		return "INVALID: " + s.Error
	}
}

func (e *Exporter) styleHeader(f *excelize.File, sheet string) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		e.logger.Warn("Failed to create header style", zap.Error(err))
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		e.logger.Warn("Failed to style header", zap.Error(err))
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Headers))
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		e.logger.Warn("Failed to freeze header", zap.Error(err))
	}
}

// writeTotals appends the summary block below the data rows
func (e *Exporter) writeTotals(f *excelize.File, sheet string, rowNum int, summary Summary) {
	e.setCell(f, sheet, fmt.Sprintf("A%d", rowNum), "Reports")
	e.setCell(f, sheet, fmt.Sprintf("B%d", rowNum), fmt.Sprint(summary.Reports))
	e.setCell(f, sheet, fmt.Sprintf("C%d", rowNum), "Total")
	e.setCell(f, sheet, fmt.Sprintf("D%d", rowNum), summary.Total.String())
	e.setCell(f, sheet, fmt.Sprintf("E%d", rowNum), "Invalid signatures")
	e.setCell(f, sheet, fmt.Sprintf("F%d", rowNum), fmt.Sprint(summary.Failures))
}

// setCell sets a cell value in the workbook
func (e *Exporter) setCell(f *excelize.File, sheet, cell, value string) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
