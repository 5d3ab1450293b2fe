package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

func TestApprovalMachine_HappyPaths(t *testing.T) {
	tests := []struct {
		name     string
		triggers []Trigger
		want     State
	}{
		{"with director signature", []Trigger{TriggerSubmit, TriggerValidate, TriggerSign, TriggerConfirm}, StateConfirmed},
		{"confirm without director signature", []Trigger{TriggerSubmit, TriggerValidate, TriggerConfirm}, StateConfirmed},
		{"rejected after submit", []Trigger{TriggerSubmit, TriggerReject}, StateRejected},
		{"rejected after validate", []Trigger{TriggerSubmit, TriggerValidate, TriggerReject}, StateRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := NewApprovalMachine(StateDraft, Guards{})
			for _, trigger := range tt.triggers {
				require.NoError(t, machine.Fire(context.Background(), trigger), "trigger %s", trigger)
			}
			assert.Equal(t, tt.want, machine.State())
		})
	}
}

func TestApprovalMachine_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
	}{
		{StateDraft, TriggerValidate},
		{StateDraft, TriggerConfirm},
		{StateSubmitted, TriggerSubmit},
		{StateSubmitted, TriggerSign},
		{StateSubmitted, TriggerConfirm},
		{StateValidated, TriggerValidate},
		{StateSigned, TriggerSign},
		{StateSigned, TriggerReject},
		{StateConfirmed, TriggerConfirm},
		{StateRejected, TriggerSubmit},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.trigger.String(), func(t *testing.T) {
			machine := NewApprovalMachine(tt.from, Guards{})
			err := machine.Fire(context.Background(), tt.trigger)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, machine.State())
		})
	}
}

func TestApprovalMachine_ConfirmGuard(t *testing.T) {
	tampered := errors.New("manager signature does not verify")

	for _, from := range []State{StateValidated, StateSigned} {
		t.Run(from.String(), func(t *testing.T) {
			machine := NewApprovalMachine(from, Guards{
				Confirm: func(ctx context.Context) error { return tampered },
			})

			err := machine.Fire(context.Background(), TriggerConfirm)
			assert.ErrorIs(t, err, ErrGuardFailed)
			assert.ErrorIs(t, err, tampered)
			assert.Equal(t, from, machine.State())
		})
	}
}

func TestApprovalMachine_ValidateGuard(t *testing.T) {
	calls := 0
	machine := NewApprovalMachine(StateSubmitted, Guards{
		Validate: func(ctx context.Context) error {
			calls++
			return nil
		},
	})

	require.NoError(t, machine.Fire(context.Background(), TriggerValidate))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateValidated, machine.State())
}

func TestApprovalMachine_PermittedTriggers(t *testing.T) {
	machine := NewApprovalMachine(StateValidated, Guards{})
	assert.Equal(t, []Trigger{TriggerConfirm, TriggerReject, TriggerSign}, machine.PermittedTriggers())

	terminal := NewApprovalMachine(StateConfirmed, Guards{})
	assert.Empty(t, terminal.PermittedTriggers())
}

func TestRuleFor(t *testing.T) {
	tests := []struct {
		trigger Trigger
		allowed []entity.Role
		denied  []entity.Role
		slot    Slot
	}{
		{TriggerSubmit, []entity.Role{entity.RoleEmployee}, []entity.Role{entity.RoleManager, entity.RoleDirector}, SlotEmployee},
		{TriggerValidate, []entity.Role{entity.RoleManager}, []entity.Role{entity.RoleEmployee, entity.RoleDirector}, SlotManager},
		{TriggerSign, []entity.Role{entity.RoleDirector}, []entity.Role{entity.RoleEmployee, entity.RoleManager}, SlotDirector},
		{TriggerConfirm, []entity.Role{entity.RoleDirector}, []entity.Role{entity.RoleEmployee, entity.RoleManager}, SlotNone},
		{TriggerReject, []entity.Role{entity.RoleManager, entity.RoleDirector}, []entity.Role{entity.RoleEmployee}, SlotNone},
	}

	for _, tt := range tests {
		t.Run(tt.trigger.String(), func(t *testing.T) {
			rule, ok := RuleFor(tt.trigger)
			require.True(t, ok)
			for _, role := range tt.allowed {
				assert.True(t, rule.Allows(role), "%s should be allowed", role)
			}
			for _, role := range tt.denied {
				assert.False(t, rule.Allows(role), "%s should be denied", role)
			}
			assert.Equal(t, tt.slot, rule.Slot)
			assert.Equal(t, tt.slot != SlotNone, rule.Signing())
		})
	}

	_, ok := RuleFor(Trigger("archive"))
	assert.False(t, ok)
}

func TestSlot_Occupied(t *testing.T) {
	report := &entity.ExpenseReport{EmployeeSignature: &entity.Signature{Data: "x"}}

	assert.True(t, SlotEmployee.Occupied(report))
	assert.False(t, SlotManager.Occupied(report))
	assert.False(t, SlotDirector.Occupied(report))
	assert.False(t, SlotNone.Occupied(report))
}
