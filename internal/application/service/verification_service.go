package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/domain/canonical"
	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/domain/workflow"
)

// StepVerification is the outcome of checking one signature slot
type StepVerification struct {
	Step     string        `json:"step"`
	Slot     workflow.Slot `json:"slot"`
	Present  bool          `json:"present"`
	Valid    bool          `json:"valid"`
	SignedBy string        `json:"signedBy,omitempty"`
	SignedAt *time.Time    `json:"signedAt,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// VerificationReport collects the per-step outcomes for one report
type VerificationReport struct {
	ReportID  string             `json:"reportId"`
	Status    entity.Status      `json:"status"`
	Steps     []StepVerification `json:"steps"`
	CheckedAt time.Time          `json:"checkedAt"`
}

// AllValid reports whether every present signature verified
func (v *VerificationReport) AllValid() bool {
	return len(v.Failed()) == 0
}

// Failed returns the present steps that did not verify
func (v *VerificationReport) Failed() []StepVerification {
	return lo.Filter(v.Steps, func(s StepVerification, _ int) bool {
		return s.Present && !s.Valid
	})
}

// Step returns the outcome for a step name
func (v *VerificationReport) Step(name string) (StepVerification, bool) {
	return lo.Find(v.Steps, func(s StepVerification) bool {
		return s.Step == name
	})
}

// VerificationService recomputes canonical payloads from stored reports and
// checks every present signature against them
type VerificationService interface {
	// VerifyReport loads a report the actor may read and verifies it
	VerifyReport(ctx context.Context, actor entity.Actor, id string) (*VerificationReport, error)

	// Verify checks an already loaded report
	Verify(ctx context.Context, report *entity.ExpenseReport) (*VerificationReport, error)
}

type verificationServiceImpl struct {
	store  port.ReportStore
	engine port.SignatureEngine
	logger Logger
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(
	store port.ReportStore,
	engine port.SignatureEngine,
	logger Logger,
) VerificationService {
	return &verificationServiceImpl{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// signedSteps lists the signing transitions in chain order
var signedSteps = []workflow.Trigger{
	workflow.TriggerSubmit,
	workflow.TriggerValidate,
	workflow.TriggerSign,
}

// VerifyReport loads a report the actor may read and verifies it
func (s *verificationServiceImpl) VerifyReport(ctx context.Context, actor entity.Actor, id string) (*VerificationReport, error) {
	report, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	if err := authorizeRead(actor, report); err != nil {
		return nil, err
	}

	result, err := s.Verify(ctx, report)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Report verified", "report_id", id, "actor", actor.Identity, "all_valid", result.AllValid())
	return result, nil
}

// Verify checks an already loaded report. Each present signature is checked
// concurrently against the payload recomputed from the stored document.
func (s *verificationServiceImpl) Verify(ctx context.Context, report *entity.ExpenseReport) (*VerificationReport, error) {
	steps := make([]StepVerification, len(signedSteps))

	g, gctx := errgroup.WithContext(ctx)
	for i, trigger := range signedSteps {
		rule, _ := workflow.RuleFor(trigger)
		steps[i] = StepVerification{Step: trigger.String(), Slot: rule.Slot}

		sig := slotSignature(report, rule.Slot)
		if sig == nil {
			continue
		}
		signedAt := sig.SignedAt
		steps[i].Present = true
		steps[i].SignedBy = sig.SignedBy
		steps[i].SignedAt = &signedAt

		step := trigger.String()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			valid, err := s.verifyStep(step, report, sig)
			steps[i].Valid = valid
			if err != nil {
				steps[i].Error = err.Error()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify report %s: %w", report.ID, err)
	}

	return &VerificationReport{
		ReportID:  report.ID,
		Status:    report.Status,
		Steps:     steps,
		CheckedAt: s.engine.Now(),
	}, nil
}

func (s *verificationServiceImpl) verifyStep(step string, report *entity.ExpenseReport, sig *entity.Signature) (bool, error) {
	payload, err := canonical.PayloadFor(step, report, sig.SignedAt)
	if err != nil {
		return false, err
	}
	valid, err := s.engine.Verify(sig, payload)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, fmt.Errorf("%w: %s signature does not match the document", entity.ErrSignatureInvalid, step)
	}
	return true, nil
}

// requireValid turns a failed verification into ErrSignatureInvalid
func requireValid(result *VerificationReport) error {
	failed := result.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := lo.Map(failed, func(s StepVerification, _ int) string {
		return s.Step
	})
	return fmt.Errorf("%w: %s", entity.ErrSignatureInvalid, strings.Join(names, ", "))
}

func slotSignature(report *entity.ExpenseReport, slot workflow.Slot) *entity.Signature {
	switch slot {
	case workflow.SlotEmployee:
		return report.EmployeeSignature
	case workflow.SlotManager:
		return report.ManagerSignature
	case workflow.SlotDirector:
		return report.DirectorSignature
	default:
		return nil
	}
}

func setSlotSignature(report *entity.ExpenseReport, slot workflow.Slot, sig *entity.Signature) {
	switch slot {
	case workflow.SlotEmployee:
		report.EmployeeSignature = sig
	case workflow.SlotManager:
		report.ManagerSignature = sig
	case workflow.SlotDirector:
		report.DirectorSignature = sig
	}
}

// authorizeRead lets employees read only their own reports
func authorizeRead(actor entity.Actor, report *entity.ExpenseReport) error {
	if actor.Role == entity.RoleEmployee && report.EmployeeEmail != actor.Identity {
		return fmt.Errorf("%w: %s may not read report %s", entity.ErrUnauthorized, actor.Identity, report.ID)
	}
	return nil
}
