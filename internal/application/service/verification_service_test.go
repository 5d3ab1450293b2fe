package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

func TestVerificationService_PartialChain(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	r := f.submitted(t)

	result, err := f.verifier.VerifyReport(context.Background(), bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, result.ReportID)
	assert.Equal(t, entity.StatusSubmitted, result.Status)
	require.Len(t, result.Steps, 3)

	submit, ok := result.Step(entity.ActionSubmit)
	require.True(t, ok)
	assert.True(t, submit.Present)
	assert.True(t, submit.Valid)
	assert.Equal(t, alice.Identity, submit.SignedBy)

	validate, ok := result.Step(entity.ActionValidate)
	require.True(t, ok)
	assert.False(t, validate.Present)
	assert.True(t, result.AllValid(), "absent steps do not count as failures")
}

func TestVerificationService_MalformedEnvelope(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	r := f.validated(t)

	f.store.tamper(r.ID, func(stored *entity.ExpenseReport) {
		stored.EmployeeSignature.PublicKey = "@@@"
	})

	result, err := f.verifier.VerifyReport(context.Background(), carol, r.ID)
	require.NoError(t, err)

	submit, _ := result.Step(entity.ActionSubmit)
	assert.False(t, submit.Valid)
	assert.Contains(t, submit.Error, "malformed signature")

	validate, _ := result.Step(entity.ActionValidate)
	assert.False(t, validate.Valid, "the manager signature covers the employee envelope")
	assert.Contains(t, validate.Error, "signature invalid")

	assert.ErrorIs(t, requireValid(result), entity.ErrSignatureInvalid)
}

func TestVerificationService_ReadAccess(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	r := f.submitted(t)

	_, err := f.verifier.VerifyReport(context.Background(), mallory, r.ID)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)

	_, err = f.verifier.VerifyReport(context.Background(), bob, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestVerificationService_CancelledContext(t *testing.T) {
	f := newFixture(t, ApprovalConfig{})
	r := f.validated(t)
	stored, err := f.store.Get(context.Background(), r.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.verifier.Verify(ctx, stored)
	assert.ErrorIs(t, err, context.Canceled)
}
