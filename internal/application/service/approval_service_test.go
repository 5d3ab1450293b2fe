package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-attest/internal/domain/canonical"
	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/domain/signature"
)

// memoryStore is an in-memory ReportStore with a real compare-and-set
type memoryStore struct {
	mu      sync.Mutex
	reports map[string]*entity.ExpenseReport

	// getBarrier, when set, holds every Get after its read until all
	// expected callers have read the same snapshot
	getBarrier *sync.WaitGroup

	conditionalUpdateFunc func(ctx context.Context, id string, expected entity.Status, mutated *entity.ExpenseReport) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{reports: make(map[string]*entity.ExpenseReport)}
}

func (m *memoryStore) Create(ctx context.Context, report *entity.ExpenseReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = report.Clone()
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (*entity.ExpenseReport, error) {
	m.mu.Lock()
	r, ok := m.reports[id]
	if ok {
		r = r.Clone()
	}
	barrier := m.getBarrier
	m.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if !ok {
		return nil, entity.ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) ConditionalUpdate(ctx context.Context, id string, expected entity.Status, mutated *entity.ExpenseReport) error {
	if m.conditionalUpdateFunc != nil {
		return m.conditionalUpdateFunc(ctx, id, expected, mutated)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reports[id]
	if !ok {
		return entity.ErrNotFound
	}
	if current.Status != expected {
		return entity.ErrConflict
	}
	m.reports[id] = mutated.Clone()
	return nil
}

func (m *memoryStore) List(ctx context.Context, filter entity.ReportFilter) ([]*entity.ExpenseReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ExpenseReport
	for _, r := range m.reports {
		if filter.EmployeeEmail != "" && r.EmployeeEmail != filter.EmployeeEmail {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// tamper rewrites a stored report behind the service's back
func (m *memoryStore) tamper(id string, fn func(r *entity.ExpenseReport)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.reports[id])
}

type mockHistoryRepo struct {
	mu         sync.Mutex
	entries    []*entity.ApprovalHistory
	createFunc func(ctx context.Context, history *entity.ApprovalHistory) error
}

func (m *mockHistoryRepo) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, history)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	history.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, history)
	return nil
}

func (m *mockHistoryRepo) GetByReportID(ctx context.Context, reportID string) ([]*entity.ApprovalHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, h := range m.entries {
		if h.ReportID == reportID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

var (
	alice   = entity.Actor{Identity: "alice@example.com", Role: entity.RoleEmployee}
	mallory = entity.Actor{Identity: "mallory@example.com", Role: entity.RoleEmployee}
	bob     = entity.Actor{Identity: "bob@example.com", Role: entity.RoleManager}
	carol   = entity.Actor{Identity: "carol@example.com", Role: entity.RoleDirector}
)

type fixture struct {
	store    *memoryStore
	history  *mockHistoryRepo
	engine   *signature.Engine
	verifier VerificationService
	service  ApprovalService
}

func newFixture(t *testing.T, cfg ApprovalConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemoryStore(),
		history: &mockHistoryRepo{},
		engine:  signature.NewEngine(),
	}
	f.verifier = NewVerificationService(f.store, f.engine, &mockLogger{})
	f.service = NewApprovalService(f.store, f.history, &mockTxManager{}, f.engine, f.verifier, cfg, &mockLogger{})
	return f
}

func taxiInput() entity.ReportInput {
	return entity.ReportInput{
		Title:       "Taxi",
		Description: "Airport to office",
		Amount:      entity.MustParseAmount("42.50"),
		Date:        civil.Date{Year: 2024, Month: time.March, Day: 1},
		Receipts:    []string{"r1"},
	}
}

func (f *fixture) submitted(t *testing.T) *entity.ExpenseReport {
	t.Helper()
	r, err := f.service.Submit(context.Background(), alice, taxiInput(), nil)
	require.NoError(t, err)
	return r
}

func (f *fixture) validated(t *testing.T) *entity.ExpenseReport {
	t.Helper()
	r := f.submitted(t)
	r, err := f.service.Validate(context.Background(), bob, r.ID, nil)
	require.NoError(t, err)
	return r
}

func TestApprovalService_TaxiScenario(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	ctx := context.Background()

	report, err := f.service.Submit(ctx, alice, taxiInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, report.Status)
	assert.Equal(t, alice.Identity, report.EmployeeEmail)
	require.NotNil(t, report.EmployeeSignature)

	report, err = f.service.Validate(ctx, bob, report.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValidated, report.Status)
	require.NotNil(t, report.ManagerSignature)
	assert.Equal(t, bob.Identity, report.ManagerSignature.SignedBy)

	report, err = f.service.Sign(ctx, carol, report.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSigned, report.Status)
	require.NotNil(t, report.DirectorSignature)

	report, err = f.service.Confirm(ctx, carol, report.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, report.Status)
	require.NotNil(t, report.DirectorConfirmation)
	assert.Equal(t, carol.Identity, report.DirectorConfirmation.ConfirmedBy)

	result, err := f.verifier.VerifyReport(ctx, carol, report.ID)
	require.NoError(t, err)
	assert.True(t, result.AllValid())
	for _, step := range result.Steps {
		assert.True(t, step.Present, step.Step)
		assert.True(t, step.Valid, step.Step)
	}

	history, err := f.service.History(ctx, alice, report.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t,
		[]string{entity.ActionSubmit, entity.ActionValidate, entity.ActionSign, entity.ActionConfirm},
		[]string{history[0].Action, history[1].Action, history[2].Action, history[3].Action})
	assert.Equal(t, entity.StatusSigned, history[3].PreviousStatus)
}

func TestApprovalService_ConfirmWithoutDirectorSignature(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	r := f.validated(t)

	r, err := f.service.Confirm(context.Background(), carol, r.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, r.Status)
	assert.Nil(t, r.DirectorSignature)
}

func TestApprovalService_FinalReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ApprovalConfig{})

	confirmed := f.validated(t)
	_, err := f.service.Confirm(ctx, carol, confirmed.ID)
	require.NoError(t, err)

	_, err = f.service.Confirm(ctx, carol, confirmed.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	_, err = f.service.Reject(ctx, carol, confirmed.ID, "too late")
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	rejected := f.submitted(t)
	_, err = f.service.Reject(ctx, bob, rejected.ID, "missing receipt")
	require.NoError(t, err)
	_, err = f.service.Reject(ctx, carol, rejected.ID, "again")
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	history, err := f.service.History(ctx, carol, rejected.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCheckAdvance(t *testing.T) {
	tests := []struct {
		from, to entity.Status
		wantErr  bool
	}{
		{entity.StatusDraft, entity.StatusSubmitted, false},
		{entity.StatusValidated, entity.StatusConfirmed, false},
		{entity.StatusValidated, entity.StatusRejected, false},
		{entity.StatusValidated, entity.StatusValidated, true},
		{entity.StatusSigned, entity.StatusSubmitted, true},
		{entity.StatusRejected, entity.StatusConfirmed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := checkAdvance(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, entity.ErrInvalidState)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApprovalService_CheckOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("validate before submit is an invalid state", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		draft, err := f.service.CreateDraft(ctx, alice, taxiInput())
		require.NoError(t, err)

		_, err = f.service.Validate(ctx, bob, draft.ID, nil)
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})

	t.Run("second validate reports the occupied slot", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.validated(t)

		_, err := f.service.Validate(ctx, bob, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrAlreadySigned)
	})

	t.Run("role is checked before anything else", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.validated(t)

		_, err := f.service.Validate(ctx, carol, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrUnauthorized)

		_, err = f.service.Sign(ctx, bob, "missing", nil)
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})

	t.Run("unknown report", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		_, err := f.service.Validate(ctx, bob, "missing", nil)
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("sign after confirm", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.validated(t)
		_, err := f.service.Confirm(ctx, carol, r.ID)
		require.NoError(t, err)

		_, err = f.service.Sign(ctx, carol, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})

	t.Run("employees cannot validate", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)
		_, err := f.service.Validate(ctx, alice, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})
}

func TestApprovalService_ConfirmDetectsTampering(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupted manager signature", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.validated(t)

		f.store.tamper(r.ID, func(stored *entity.ExpenseReport) {
			raw, err := base64.StdEncoding.DecodeString(stored.ManagerSignature.Data)
			require.NoError(t, err)
			raw[0] ^= 0xff
			stored.ManagerSignature.Data = base64.StdEncoding.EncodeToString(raw)
		})

		_, err := f.service.Confirm(ctx, carol, r.ID)
		assert.ErrorIs(t, err, entity.ErrSignatureInvalid)

		stored, err := f.service.Get(ctx, carol, r.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusValidated, stored.Status)
		assert.Nil(t, stored.DirectorConfirmation)
	})

	t.Run("amount edited after approval", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.validated(t)

		f.store.tamper(r.ID, func(stored *entity.ExpenseReport) {
			stored.Amount = entity.MustParseAmount("4250.00")
		})

		_, err := f.service.Confirm(ctx, carol, r.ID)
		assert.ErrorIs(t, err, entity.ErrSignatureInvalid)

		result, err := f.verifier.VerifyReport(ctx, carol, r.ID)
		require.NoError(t, err)
		assert.False(t, result.AllValid())
		assert.Len(t, result.Failed(), 2)
	})
}

func TestApprovalService_ConcurrentValidate(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	r := f.submitted(t)

	managers := []entity.Actor{
		bob,
		{Identity: "dave@example.com", Role: entity.RoleManager},
	}

	barrier := &sync.WaitGroup{}
	barrier.Add(len(managers))
	f.store.mu.Lock()
	f.store.getBarrier = barrier
	f.store.mu.Unlock()

	errs := make([]error, len(managers))
	var wg sync.WaitGroup
	for i, m := range managers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.service.Validate(context.Background(), m, r.ID, nil)
		}()
	}
	wg.Wait()
	f.store.mu.Lock()
	f.store.getBarrier = nil
	f.store.mu.Unlock()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, entity.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	stored, err := f.service.Get(context.Background(), bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValidated, stored.Status)

	history, err := f.service.History(context.Background(), bob, r.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestApprovalService_ClientSignatures(t *testing.T) {
	ctx := context.Background()
	signedAt := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	clientSigned := func(t *testing.T, f *fixture, id string, signer entity.Actor) *entity.Signature {
		payload, err := f.service.CanonicalPayload(ctx, signer, id, entity.ActionValidate, signedAt)
		require.NoError(t, err)
		sig, err := f.engine.GenerateAndSign(payload, signer.Identity, signedAt)
		require.NoError(t, err)
		return sig
	}

	t.Run("accepted and verified", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{AcceptClientSignatures: true, VerifyOnIngest: true})
		r := f.submitted(t)

		sig := clientSigned(t, f, r.ID, bob)
		r, err := f.service.Validate(ctx, bob, r.ID, sig)
		require.NoError(t, err)
		assert.Equal(t, sig.Data, r.ManagerSignature.Data)
		assert.Equal(t, signedAt, r.ManagerSignature.SignedAt)
	})

	t.Run("signature over another document", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{AcceptClientSignatures: true, VerifyOnIngest: true})
		r := f.submitted(t)

		sig, err := f.engine.GenerateAndSign([]byte(`{"title":"Dinner"}`), bob.Identity, signedAt)
		require.NoError(t, err)

		_, err = f.service.Validate(ctx, bob, r.ID, sig)
		assert.ErrorIs(t, err, entity.ErrSignatureInvalid)
	})

	t.Run("signedBy must match the caller", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{AcceptClientSignatures: true, VerifyOnIngest: true})
		r := f.submitted(t)

		sig := clientSigned(t, f, r.ID, entity.Actor{Identity: "eve@example.com", Role: entity.RoleManager})
		_, err := f.service.Validate(ctx, bob, r.ID, sig)
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)

		sig := clientSigned(t, f, r.ID, bob)
		_, err := f.service.Validate(ctx, bob, r.ID, sig)
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{AcceptClientSignatures: true, VerifyOnIngest: true})
		r := f.submitted(t)

		sig := clientSigned(t, f, r.ID, bob)
		sig.PublicKey = "not base64!"
		_, err := f.service.Validate(ctx, bob, r.ID, sig)
		assert.ErrorIs(t, err, entity.ErrMalformedSignature)
	})
}

func TestApprovalService_Drafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ApprovalConfig{})

	draft, err := f.service.CreateDraft(ctx, alice, taxiInput())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, draft.Status)
	assert.Nil(t, draft.EmployeeSignature)

	_, err = f.service.SubmitDraft(ctx, mallory, draft.ID, nil)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)

	submitted, err := f.service.SubmitDraft(ctx, alice, draft.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.EmployeeSignature)

	payload, err := canonical.SubmitPayload(submitted, submitted.EmployeeSignature.SignedAt)
	require.NoError(t, err)
	ok, err := f.engine.Verify(submitted.EmployeeSignature, payload)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.service.SubmitDraft(ctx, alice, draft.ID, nil)
	assert.ErrorIs(t, err, entity.ErrAlreadySigned)

	_, err = f.service.CreateDraft(ctx, bob, taxiInput())
	assert.ErrorIs(t, err, entity.ErrUnauthorized)

	bad := taxiInput()
	bad.Title = ""
	_, err = f.service.CreateDraft(ctx, alice, bad)
	assert.ErrorIs(t, err, entity.ErrInvalidReport)
}

func TestApprovalService_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("manager rejects a submitted report", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)

		r, err := f.service.Reject(ctx, bob, r.ID, "missing receipt")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusRejected, r.Status)
		require.NotNil(t, r.Rejection)
		assert.Equal(t, "missing receipt", r.Rejection.Reason)

		_, err = f.service.Validate(ctx, bob, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})

	t.Run("only a director rejects a validated report", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.validated(t)

		_, err := f.service.Reject(ctx, bob, r.ID, "duplicate")
		assert.ErrorIs(t, err, entity.ErrUnauthorized)

		r, err = f.service.Reject(ctx, carol, r.ID, "duplicate")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusRejected, r.Status)
	})

	t.Run("reason is required", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)

		_, err := f.service.Reject(ctx, bob, r.ID, "   ")
		assert.ErrorIs(t, err, entity.ErrInvalidReport)
	})

	t.Run("employees cannot reject", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)

		_, err := f.service.Reject(ctx, alice, r.ID, "changed my mind")
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})
}

func TestApprovalService_ReadAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ApprovalConfig{})
	mine := f.submitted(t)
	_, err := f.service.Submit(ctx, mallory, taxiInput(), nil)
	require.NoError(t, err)

	_, err = f.service.Get(ctx, mallory, mine.ID)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)

	_, err = f.service.History(ctx, mallory, mine.ID)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)

	own, err := f.service.List(ctx, alice, entity.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	all, err := f.service.List(ctx, bob, entity.ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.service.List(ctx, bob, entity.ReportFilter{Status: "archived"})
	assert.ErrorIs(t, err, entity.ErrInvalidReport)
}

func TestApprovalService_CanonicalPayload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ApprovalConfig{})
	r := f.submitted(t)
	signedAt := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	got, err := f.service.CanonicalPayload(ctx, bob, r.ID, entity.ActionValidate, signedAt)
	require.NoError(t, err)
	want, err := canonical.ValidatePayload(r, signedAt)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.service.CanonicalPayload(ctx, bob, r.ID, entity.ActionConfirm, signedAt)
	assert.ErrorIs(t, err, entity.ErrInvalidReport)
}

func TestApprovalService_WriteFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("conditional update conflict is surfaced", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)
		f.store.conditionalUpdateFunc = func(ctx context.Context, id string, expected entity.Status, mutated *entity.ExpenseReport) error {
			return entity.ErrConflict
		}

		_, err := f.service.Validate(ctx, bob, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrConflict)
	})

	t.Run("history failure aborts the transaction", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)
		f.history.createFunc = func(ctx context.Context, history *entity.ApprovalHistory) error {
			return errors.New("disk full")
		}

		_, err := f.service.Validate(ctx, bob, r.ID, nil)
		assert.Error(t, err)
		assert.Equal(t, "internal", entity.ErrorCode(err))
	})

	t.Run("crypto failure leaves the report untouched", func(t *testing.T) {
		f := newFixture(t, ApprovalConfig{})
		r := f.submitted(t)

		broken := signature.NewEngine(signature.WithRandom(failingReader{}))
		svc := NewApprovalService(f.store, f.history, &mockTxManager{}, broken, f.verifier, ApprovalConfig{}, &mockLogger{})

		_, err := svc.Validate(ctx, bob, r.ID, nil)
		assert.ErrorIs(t, err, entity.ErrCryptoUnavailable)

		stored, err := f.service.Get(ctx, bob, r.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusSubmitted, stored.Status)
	})
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}
