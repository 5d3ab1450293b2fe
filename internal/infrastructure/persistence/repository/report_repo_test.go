package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-attest/pkg/database"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "reports.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(context.Background(), ""))
	return sqlite.NewDB(db.DB, logger)
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleReport(id string, status entity.Status) *entity.ExpenseReport {
	return &entity.ExpenseReport{
		ID:            id,
		EmployeeEmail: "alice@example.com",
		Title:         "Taxi",
		Description:   "Airport",
		Amount:        entity.MustParseAmount("42.50"),
		Date:          civil.Date{Year: 2024, Month: time.March, Day: 1},
		Receipts:      []string{"r1", "r2"},
		Status:        status,
		EmployeeSignature: &entity.Signature{
			Data:      "c2ln",
			PublicKey: "a2V5",
			SignedBy:  "alice@example.com",
			SignedAt:  baseTime.Add(123 * time.Millisecond),
		},
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func TestReportRepository_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewReportRepository(db, zap.NewNop())
	ctx := context.Background()

	original := sampleReport("r-1", entity.StatusSubmitted)
	require.NoError(t, repo.Create(ctx, original))

	got, err := repo.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, original, got)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestReportRepository_ConditionalUpdate(t *testing.T) {
	db := openTestDB(t)
	repo := NewReportRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleReport("r-1", entity.StatusSubmitted)))

	mutated := sampleReport("r-1", entity.StatusValidated)
	mutated.ManagerSignature = &entity.Signature{Data: "bQ==", PublicKey: "bg==", SignedBy: "bob@example.com", SignedAt: baseTime.Add(time.Hour)}
	mutated.UpdatedAt = baseTime.Add(time.Hour)

	require.NoError(t, repo.ConditionalUpdate(ctx, "r-1", entity.StatusSubmitted, mutated))

	got, err := repo.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValidated, got.Status)
	assert.Equal(t, mutated.ManagerSignature, got.ManagerSignature)
	assert.Equal(t, mutated.UpdatedAt, got.UpdatedAt)

	t.Run("stale expected status", func(t *testing.T) {
		err := repo.ConditionalUpdate(ctx, "r-1", entity.StatusSubmitted, mutated)
		assert.ErrorIs(t, err, entity.ErrConflict)
	})

	t.Run("unknown id", func(t *testing.T) {
		ghost := sampleReport("ghost", entity.StatusValidated)
		err := repo.ConditionalUpdate(ctx, "ghost", entity.StatusSubmitted, ghost)
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("content columns are not rewritten", func(t *testing.T) {
		edited := got.Clone()
		edited.Title = "Limousine"
		edited.Status = entity.StatusSigned
		require.NoError(t, repo.ConditionalUpdate(ctx, "r-1", entity.StatusValidated, edited))

		after, err := repo.Get(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, "Taxi", after.Title)
		assert.Equal(t, entity.StatusSigned, after.Status)
	})
}

func TestReportRepository_ConcurrentConditionalUpdate(t *testing.T) {
	db := openTestDB(t)
	repo := NewReportRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleReport("r-1", entity.StatusSubmitted)))

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mutated := sampleReport("r-1", entity.StatusValidated)
			errs[i] = repo.ConditionalUpdate(ctx, "r-1", entity.StatusSubmitted, mutated)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, entity.ErrConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, writers-1, lost)
}

func TestReportRepository_List(t *testing.T) {
	db := openTestDB(t)
	repo := NewReportRepository(db, zap.NewNop())
	ctx := context.Background()

	for i, spec := range []struct {
		id     string
		email  string
		status entity.Status
	}{
		{"a", "alice@example.com", entity.StatusSubmitted},
		{"b", "alice@example.com", entity.StatusValidated},
		{"c", "mallory@example.com", entity.StatusSubmitted},
	} {
		r := sampleReport(spec.id, spec.status)
		r.EmployeeEmail = spec.email
		r.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, r))
	}

	all, err := repo.List(ctx, entity.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	submitted, err := repo.List(ctx, entity.ReportFilter{Status: entity.StatusSubmitted})
	require.NoError(t, err)
	assert.Len(t, submitted, 2)

	alices, err := repo.List(ctx, entity.ReportFilter{EmployeeEmail: "alice@example.com", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, alices, 1)
	assert.Equal(t, "a", alices[0].ID)
}

func TestHistoryRepository_Transactional(t *testing.T) {
	db := openTestDB(t)
	reports := NewReportRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, reports.Create(ctx, sampleReport("r-1", entity.StatusSubmitted)))

	entry := func(action string) *entity.ApprovalHistory {
		return &entity.ApprovalHistory{
			ReportID:       "r-1",
			ActorIdentity:  "bob@example.com",
			ActorRole:      entity.RoleManager,
			Action:         action,
			PreviousStatus: entity.StatusSubmitted,
			NewStatus:      entity.StatusValidated,
			Timestamp:      baseTime,
		}
	}

	t.Run("rolled back together", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			mutated := sampleReport("r-1", entity.StatusValidated)
			if err := reports.ConditionalUpdate(txCtx, "r-1", entity.StatusSubmitted, mutated); err != nil {
				return err
			}
			if err := history.Create(txCtx, entry(entity.ActionValidate)); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.EqualError(t, err, "abort")

		got, err := reports.Get(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusSubmitted, got.Status)

		records, err := history.GetByReportID(ctx, "r-1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("committed together", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			mutated := sampleReport("r-1", entity.StatusValidated)
			if err := reports.ConditionalUpdate(txCtx, "r-1", entity.StatusSubmitted, mutated); err != nil {
				return err
			}
			return history.Create(txCtx, entry(entity.ActionValidate))
		})
		require.NoError(t, err)

		records, err := history.GetByReportID(ctx, "r-1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, entity.ActionValidate, records[0].Action)
		assert.Equal(t, entity.RoleManager, records[0].ActorRole)
		assert.Equal(t, baseTime, records[0].Timestamp)
		assert.NotZero(t, records[0].ID)
	})
}
