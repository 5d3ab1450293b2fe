package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/domain/canonical"
	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/domain/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ApprovalConfig controls how caller-supplied signatures are treated
type ApprovalConfig struct {
	// AcceptClientSignatures allows callers to bring their own envelopes
	AcceptClientSignatures bool

	// VerifyOnIngest checks supplied envelopes before they are stored
	VerifyOnIngest bool
}

// ApprovalService drives expense reports through the approval chain. Every
// operation takes the authenticated actor explicitly.
type ApprovalService interface {
	CreateDraft(ctx context.Context, actor entity.Actor, in entity.ReportInput) (*entity.ExpenseReport, error)
	Submit(ctx context.Context, actor entity.Actor, in entity.ReportInput, sig *entity.Signature) (*entity.ExpenseReport, error)
	SubmitDraft(ctx context.Context, actor entity.Actor, id string, sig *entity.Signature) (*entity.ExpenseReport, error)
	Validate(ctx context.Context, actor entity.Actor, id string, sig *entity.Signature) (*entity.ExpenseReport, error)
	Sign(ctx context.Context, actor entity.Actor, id string, sig *entity.Signature) (*entity.ExpenseReport, error)
	Confirm(ctx context.Context, actor entity.Actor, id string) (*entity.ExpenseReport, error)
	Reject(ctx context.Context, actor entity.Actor, id string, reason string) (*entity.ExpenseReport, error)

	Get(ctx context.Context, actor entity.Actor, id string) (*entity.ExpenseReport, error)
	List(ctx context.Context, actor entity.Actor, filter entity.ReportFilter) ([]*entity.ExpenseReport, error)
	History(ctx context.Context, actor entity.Actor, id string) ([]*entity.ApprovalHistory, error)

	// CanonicalPayload returns the exact bytes a client must sign for step
	CanonicalPayload(ctx context.Context, actor entity.Actor, id string, step string, signedAt time.Time) ([]byte, error)
}

type approvalServiceImpl struct {
	store       port.ReportStore
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	engine      port.SignatureEngine
	verifier    VerificationService
	config      ApprovalConfig
	logger      Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	store port.ReportStore,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	engine port.SignatureEngine,
	verifier VerificationService,
	config ApprovalConfig,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		store:       store,
		historyRepo: historyRepo,
		txManager:   txManager,
		engine:      engine,
		verifier:    verifier,
		config:      config,
		logger:      logger,
	}
}

// transitionRequest describes one state change of a stored report
type transitionRequest struct {
	trigger   workflow.Trigger
	actor     entity.Actor
	id        string
	signature *entity.Signature

	// authorize runs after the role check, against the stored report
	authorize func(report *entity.ExpenseReport) error

	// apply records transition-specific fields and returns the history detail
	apply func(mutated *entity.ExpenseReport, now time.Time) string
}

// CreateDraft stores a new unsigned report owned by the actor
func (s *approvalServiceImpl) CreateDraft(ctx context.Context, actor entity.Actor, in entity.ReportInput) (*entity.ExpenseReport, error) {
	if actor.Role != entity.RoleEmployee {
		return nil, s.fail(entity.ActionCreate, "", actor,
			fmt.Errorf("%w: only employees create reports", entity.ErrUnauthorized))
	}

	report, err := s.newReport(actor, in)
	if err != nil {
		return nil, s.fail(entity.ActionCreate, "", actor, err)
	}

	if err := s.persistNew(ctx, actor, report, entity.ActionCreate, ""); err != nil {
		return nil, s.fail(entity.ActionCreate, report.ID, actor, err)
	}

	s.logger.Info("Draft created", "report_id", report.ID, "actor", actor.Identity)
	return report, nil
}

// Submit creates a report and submits it in one step
func (s *approvalServiceImpl) Submit(ctx context.Context, actor entity.Actor, in entity.ReportInput, sig *entity.Signature) (*entity.ExpenseReport, error) {
	rule, _ := workflow.RuleFor(workflow.TriggerSubmit)
	if !rule.Allows(actor.Role) {
		return nil, s.fail(entity.ActionSubmit, "", actor,
			fmt.Errorf("%w: %s may not submit", entity.ErrUnauthorized, actor.Role))
	}

	report, err := s.newReport(actor, in)
	if err != nil {
		return nil, s.fail(entity.ActionSubmit, "", actor, err)
	}

	machine := workflow.NewApprovalMachine(workflow.StateDraft, workflow.Guards{})
	if err := machine.Fire(ctx, workflow.TriggerSubmit); err != nil {
		return nil, s.fail(entity.ActionSubmit, report.ID, actor, translateMachineError(err))
	}

	signature, err := s.signatureFor(entity.ActionSubmit, actor, report, sig)
	if err != nil {
		return nil, s.fail(entity.ActionSubmit, report.ID, actor, err)
	}
	report.EmployeeSignature = signature
	report.Status = machine.State().Status()

	if err := s.persistNew(ctx, actor, report, entity.ActionSubmit, ""); err != nil {
		return nil, s.fail(entity.ActionSubmit, report.ID, actor, err)
	}

	s.logger.Info("Report transitioned",
		"report_id", report.ID,
		"transition", entity.ActionSubmit,
		"actor", actor.Identity,
		"status", report.Status)
	return report, nil
}

// SubmitDraft signs and submits a stored draft
func (s *approvalServiceImpl) SubmitDraft(ctx context.Context, actor entity.Actor, id string, sig *entity.Signature) (*entity.ExpenseReport, error) {
	return s.transition(ctx, transitionRequest{
		trigger:   workflow.TriggerSubmit,
		actor:     actor,
		id:        id,
		signature: sig,
		authorize: func(report *entity.ExpenseReport) error {
			if report.EmployeeEmail != actor.Identity {
				return fmt.Errorf("%w: only the author may submit report %s", entity.ErrUnauthorized, report.ID)
			}
			return nil
		},
	})
}

// Validate records the manager signature
func (s *approvalServiceImpl) Validate(ctx context.Context, actor entity.Actor, id string, sig *entity.Signature) (*entity.ExpenseReport, error) {
	return s.transition(ctx, transitionRequest{
		trigger:   workflow.TriggerValidate,
		actor:     actor,
		id:        id,
		signature: sig,
	})
}

// Sign records the director signature
func (s *approvalServiceImpl) Sign(ctx context.Context, actor entity.Actor, id string, sig *entity.Signature) (*entity.ExpenseReport, error) {
	return s.transition(ctx, transitionRequest{
		trigger:   workflow.TriggerSign,
		actor:     actor,
		id:        id,
		signature: sig,
	})
}

// Confirm re-verifies every signature and closes the report
func (s *approvalServiceImpl) Confirm(ctx context.Context, actor entity.Actor, id string) (*entity.ExpenseReport, error) {
	return s.transition(ctx, transitionRequest{
		trigger: workflow.TriggerConfirm,
		actor:   actor,
		id:      id,
		apply: func(mutated *entity.ExpenseReport, now time.Time) string {
			mutated.DirectorConfirmation = &entity.Confirmation{
				ConfirmedBy: actor.Identity,
				ConfirmedAt: now,
			}
			return ""
		},
	})
}

// Reject stops a report. Managers may reject submitted reports, directors
// submitted or validated ones.
func (s *approvalServiceImpl) Reject(ctx context.Context, actor entity.Actor, id string, reason string) (*entity.ExpenseReport, error) {
	reason = strings.TrimSpace(reason)

	return s.transition(ctx, transitionRequest{
		trigger: workflow.TriggerReject,
		actor:   actor,
		id:      id,
		authorize: func(report *entity.ExpenseReport) error {
			if actor.Role == entity.RoleManager && report.Status == entity.StatusValidated {
				return fmt.Errorf("%w: a validated report can only be rejected by a director", entity.ErrUnauthorized)
			}
			if reason == "" {
				return fmt.Errorf("%w: a rejection needs a reason", entity.ErrInvalidReport)
			}
			return nil
		},
		apply: func(mutated *entity.ExpenseReport, now time.Time) string {
			mutated.Rejection = &entity.Rejection{
				RejectedBy: actor.Identity,
				RejectedAt: now,
				Reason:     reason,
			}
			return reason
		},
	})
}

// transition runs the shared check sequence: role, report-level
// authorization, slot occupancy, state legality, guards. Nothing is written
// unless every check passes, and the write is a single conditional update.
func (s *approvalServiceImpl) transition(ctx context.Context, req transitionRequest) (*entity.ExpenseReport, error) {
	action := req.trigger.String()

	rule, ok := workflow.RuleFor(req.trigger)
	if !ok {
		return nil, s.fail(action, req.id, req.actor,
			fmt.Errorf("%w: unknown transition %q", entity.ErrInvalidState, action))
	}
	if !rule.Allows(req.actor.Role) {
		return nil, s.fail(action, req.id, req.actor,
			fmt.Errorf("%w: %s may not %s", entity.ErrUnauthorized, req.actor.Role, action))
	}

	report, err := s.store.Get(ctx, req.id)
	if err != nil {
		return nil, s.fail(action, req.id, req.actor, fmt.Errorf("get report %s: %w", req.id, err))
	}
	if req.authorize != nil {
		if err := req.authorize(report); err != nil {
			return nil, s.fail(action, req.id, req.actor, err)
		}
	}

	if rule.Signing() && rule.Slot.Occupied(report) {
		return nil, s.fail(action, req.id, req.actor,
			fmt.Errorf("%w: %s is already present", entity.ErrAlreadySigned, rule.Slot))
	}

	if err := report.CheckInvariants(); err != nil {
		return nil, s.fail(action, req.id, req.actor, err)
	}

	if workflow.StateOf(report.Status).IsTerminal() {
		return nil, s.fail(action, req.id, req.actor,
			fmt.Errorf("%w: %s report is final", entity.ErrInvalidState, report.Status))
	}

	machine := workflow.NewApprovalMachine(workflow.StateOf(report.Status), s.guardsFor(report))
	if !machine.CanFire(req.trigger) {
		return nil, s.fail(action, req.id, req.actor,
			fmt.Errorf("%w: cannot %s a %s report", entity.ErrInvalidState, action, report.Status))
	}
	if err := machine.Fire(ctx, req.trigger); err != nil {
		return nil, s.fail(action, req.id, req.actor, translateMachineError(err))
	}

	mutated := report.Clone()
	now := s.engine.Now()

	if rule.Signing() {
		sig, err := s.signatureFor(action, req.actor, report, req.signature)
		if err != nil {
			return nil, s.fail(action, req.id, req.actor, err)
		}
		setSlotSignature(mutated, rule.Slot, sig)
	}

	var detail string
	if req.apply != nil {
		detail = req.apply(mutated, now)
	}
	mutated.Status = machine.State().Status()
	mutated.UpdatedAt = now
	if err := checkAdvance(report.Status, mutated.Status); err != nil {
		return nil, s.fail(action, req.id, req.actor, err)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.ConditionalUpdate(txCtx, report.ID, report.Status, mutated); err != nil {
			return fmt.Errorf("update report: %w", err)
		}

		history := &entity.ApprovalHistory{
			ReportID:       report.ID,
			ActorIdentity:  req.actor.Identity,
			ActorRole:      req.actor.Role,
			Action:         action,
			PreviousStatus: report.Status,
			NewStatus:      mutated.Status,
			Detail:         detail,
			Timestamp:      now,
		}
		if err := s.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("create history: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, s.fail(action, req.id, req.actor, err)
	}

	s.logger.Info("Report transitioned",
		"report_id", report.ID,
		"transition", action,
		"actor", req.actor.Identity,
		"status", mutated.Status)
	return mutated, nil
}

// checkAdvance rejects any write that would not move the report forward
// along the approval path
func checkAdvance(from, to entity.Status) error {
	if to.Rank() <= from.Rank() {
		return fmt.Errorf("%w: %s does not advance %s", entity.ErrInvalidState, to, from)
	}
	return nil
}

func (s *approvalServiceImpl) guardsFor(report *entity.ExpenseReport) workflow.Guards {
	return workflow.Guards{
		Validate: func(ctx context.Context) error {
			if report.EmployeeSignature == nil {
				return fmt.Errorf("%w: report has no employee signature", entity.ErrInvalidState)
			}
			return nil
		},
		Confirm: func(ctx context.Context) error {
			if report.EmployeeSignature == nil || report.ManagerSignature == nil {
				return fmt.Errorf("%w: confirmation needs employee and manager signatures", entity.ErrInvalidState)
			}
			result, err := s.verifier.Verify(ctx, report)
			if err != nil {
				return err
			}
			return requireValid(result)
		},
	}
}

// signatureFor returns the envelope for a signing step: the caller's own when
// supplied and accepted, otherwise one minted with a fresh key
func (s *approvalServiceImpl) signatureFor(step string, actor entity.Actor, report *entity.ExpenseReport, supplied *entity.Signature) (*entity.Signature, error) {
	if supplied == nil {
		signedAt := s.engine.Now()
		payload, err := s.payload(step, report, signedAt)
		if err != nil {
			return nil, err
		}
		return s.engine.GenerateAndSign(payload, actor.Identity, signedAt)
	}

	if !s.config.AcceptClientSignatures {
		return nil, fmt.Errorf("%w: client-supplied signatures are disabled", entity.ErrUnauthorized)
	}
	if supplied.SignedBy != actor.Identity {
		return nil, fmt.Errorf("%w: signature claims %q but caller is %q", entity.ErrUnauthorized, supplied.SignedBy, actor.Identity)
	}

	sig := supplied.Clone()
	sig.SignedAt = entity.NormalizeTimestamp(sig.SignedAt)

	if s.config.VerifyOnIngest {
		payload, err := s.payload(step, report, sig.SignedAt)
		if err != nil {
			return nil, err
		}
		valid, err := s.engine.Verify(sig, payload)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, fmt.Errorf("%w: %s signature does not match the document", entity.ErrSignatureInvalid, step)
		}
	}

	return sig, nil
}

func (s *approvalServiceImpl) payload(step string, report *entity.ExpenseReport, signedAt time.Time) ([]byte, error) {
	payload, err := canonical.PayloadFor(step, report, signedAt)
	if errors.Is(err, canonical.ErrMissingPriorSignature) {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidState, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidReport, err)
	}
	return payload, nil
}

func (s *approvalServiceImpl) newReport(actor entity.Actor, in entity.ReportInput) (*entity.ExpenseReport, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.engine.Now()
	return &entity.ExpenseReport{
		ID:            uuid.NewString(),
		EmployeeEmail: actor.Identity,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Amount:        in.Amount,
		Date:          in.Date,
		Receipts:      append([]string{}, in.Receipts...),
		Status:        entity.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *approvalServiceImpl) persistNew(ctx context.Context, actor entity.Actor, report *entity.ExpenseReport, action, detail string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, report); err != nil {
			return fmt.Errorf("create report: %w", err)
		}

		history := &entity.ApprovalHistory{
			ReportID:      report.ID,
			ActorIdentity: actor.Identity,
			ActorRole:     actor.Role,
			Action:        action,
			NewStatus:     report.Status,
			Detail:        detail,
			Timestamp:     report.CreatedAt,
		}
		if err := s.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("create history: %w", err)
		}

		return nil
	})
}

// Get retrieves a report the actor may read
func (s *approvalServiceImpl) Get(ctx context.Context, actor entity.Actor, id string) (*entity.ExpenseReport, error) {
	report, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get report", "error", err, "report_id", id)
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	if err := authorizeRead(actor, report); err != nil {
		return nil, err
	}
	return report, nil
}

// List retrieves a page of reports. Employees only see their own.
func (s *approvalServiceImpl) List(ctx context.Context, actor entity.Actor, filter entity.ReportFilter) ([]*entity.ExpenseReport, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidReport, filter.Status)
	}
	if actor.Role == entity.RoleEmployee {
		filter.EmployeeEmail = actor.Identity
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	reports, err := s.store.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list reports", "error", err, "limit", filter.Limit, "offset", filter.Offset)
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// History returns the audit trail of a report the actor may read
func (s *approvalServiceImpl) History(ctx context.Context, actor entity.Actor, id string) ([]*entity.ApprovalHistory, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}

	history, err := s.historyRepo.GetByReportID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get history", "error", err, "report_id", id)
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}
	return history, nil
}

// CanonicalPayload returns the exact bytes a client must sign for step
func (s *approvalServiceImpl) CanonicalPayload(ctx context.Context, actor entity.Actor, id string, step string, signedAt time.Time) ([]byte, error) {
	rule, ok := workflow.RuleFor(workflow.Trigger(step))
	if !ok || !rule.Signing() {
		return nil, fmt.Errorf("%w: %q is not a signing step", entity.ErrInvalidReport, step)
	}

	report, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	return s.payload(step, report, entity.NormalizeTimestamp(signedAt))
}

// fail logs a rejected operation and passes the error through
func (s *approvalServiceImpl) fail(action, id string, actor entity.Actor, err error) error {
	s.logger.Error("Transition failed",
		"report_id", id,
		"transition", action,
		"actor", actor.Identity,
		"code", entity.ErrorCode(err),
		"error", err)
	return err
}

// translateMachineError maps state machine errors onto the caller-facing
// kinds. Guard errors already carry their own kind.
func translateMachineError(err error) error {
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return fmt.Errorf("%w: %v", entity.ErrInvalidState, err)
	}
	return err
}
