// Package bolt is an embedded key/value alternative to the SQLite adapter.
// Reports are stored as JSON documents keyed by id and indexed by creation
// time; history entries live in one nested bucket per report, keyed by a
// global sequence.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/domain/entity"
)

// Bucket names.
const (
	BucketReports = "expense_reports"
	BucketCreated = "expense_reports_by_created"
	BucketHistory = "approval_history"
)

type contextKey string

const txKey contextKey = "bolt_tx"

var errReadOnly = errors.New("bolt: write attempted inside a read-only transaction")

// Store implements port.ReportStore and port.TransactionManager on a single
// bbolt file. HistoryRepository returns the matching history view.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Open opens or creates the database file and initializes buckets
func Open(path string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		needsIndex := tx.Bucket([]byte(BucketCreated)) == nil
		for _, bucket := range []string{BucketReports, BucketCreated, BucketHistory} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		if needsIndex {
			return rebuildCreatedIndex(tx)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Bolt store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	s.logger.Info("Closing bolt store")
	return s.db.Close()
}

// Ping checks that the database file is open and readable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(BucketReports)) == nil {
			return fmt.Errorf("bucket %s missing", BucketReports)
		}
		return ctx.Err()
	})
}

// WithTransaction runs fn inside one read-write bolt transaction. Nested
// calls join the transaction already carried by ctx.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if extractTx(ctx) != nil {
		return fn(ctx)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(context.WithValue(ctx, txKey, tx))
	})
}

func extractTx(ctx context.Context) *bbolt.Tx {
	if tx, ok := ctx.Value(txKey).(*bbolt.Tx); ok {
		return tx
	}
	return nil
}

// update runs fn in the caller's transaction, or a fresh read-write one
func (s *Store) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx := extractTx(ctx); tx != nil {
		if !tx.Writable() {
			return errReadOnly
		}
		return fn(tx)
	}
	return s.db.Update(fn)
}

// view runs fn in the caller's transaction, or a fresh read-only one
func (s *Store) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(tx)
	}
	return s.db.View(fn)
}

// Create stores a new report
func (s *Store) Create(ctx context.Context, report *entity.ExpenseReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return s.update(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketReports))
		if b.Get([]byte(report.ID)) != nil {
			return fmt.Errorf("report %s already exists", report.ID)
		}
		if err := b.Put([]byte(report.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketCreated)).Put(createdKey(report), []byte(report.ID))
	})
}

// createdKey sorts newest first, then by id. CreatedAt never changes after
// Create, so the index is written once per report.
func createdKey(report *entity.ExpenseReport) []byte {
	key := make([]byte, 8, 8+len(report.ID))
	binary.BigEndian.PutUint64(key, math.MaxUint64-uint64(report.CreatedAt.UnixNano()))
	return append(key, report.ID...)
}

// rebuildCreatedIndex fills the creation index for files written before it
// existed
func rebuildCreatedIndex(tx *bbolt.Tx) error {
	index := tx.Bucket([]byte(BucketCreated))
	return tx.Bucket([]byte(BucketReports)).ForEach(func(k, v []byte) error {
		var report entity.ExpenseReport
		if err := json.Unmarshal(v, &report); err != nil {
			return fmt.Errorf("failed to unmarshal report %s: %w", k, err)
		}
		return index.Put(createdKey(&report), k)
	})
}

// Get retrieves a report by ID
func (s *Store) Get(ctx context.Context, id string) (*entity.ExpenseReport, error) {
	var report entity.ExpenseReport
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(BucketReports)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("report %s: %w", id, entity.ErrNotFound)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ConditionalUpdate compares the stored status and swaps the document
// within one write transaction; bbolt serializes writers.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected entity.Status, mutated *entity.ExpenseReport) error {
	if mutated.ID != id {
		return fmt.Errorf("conditional update of %s with report %s", id, mutated.ID)
	}

	err := s.update(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketReports))
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("report %s: %w", id, entity.ErrNotFound)
		}

		var current entity.ExpenseReport
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to unmarshal report: %w", err)
		}
		if current.Status != expected {
			return fmt.Errorf("report %s is no longer %s: %w", id, expected, entity.ErrConflict)
		}

		// content fields stay as first written
		next := mutated.Clone()
		next.EmployeeEmail = current.EmployeeEmail
		next.Title = current.Title
		next.Description = current.Description
		next.Amount = current.Amount
		next.Date = current.Date
		next.Receipts = current.Receipts
		next.CreatedAt = current.CreatedAt

		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		return b.Put([]byte(id), out)
	})
	if errors.Is(err, entity.ErrConflict) {
		s.logger.Info("Conditional update lost",
			zap.String("report_id", id),
			zap.String("expected_status", expected.String()))
	}
	return err
}

// List retrieves reports matching filter, newest first. It walks the
// creation index and stops once the page is full, so a page costs
// offset+limit decodes rather than a full bucket scan.
func (s *Store) List(ctx context.Context, filter entity.ReportFilter) ([]*entity.ExpenseReport, error) {
	var reports []*entity.ExpenseReport

	err := s.view(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketReports))
		c := tx.Bucket([]byte(BucketCreated)).Cursor()

		skipped := 0
		for k, id := c.First(); k != nil; k, id = c.Next() {
			data := b.Get(id)
			if data == nil {
				continue
			}
			var report entity.ExpenseReport
			if err := json.Unmarshal(data, &report); err != nil {
				return fmt.Errorf("failed to unmarshal report %s: %w", id, err)
			}
			if filter.Status != "" && report.Status != filter.Status {
				continue
			}
			if filter.EmployeeEmail != "" && report.EmployeeEmail != filter.EmployeeEmail {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			reports = append(reports, &report)
			if filter.Limit > 0 && len(reports) == filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// HistoryRepository exposes the history side of the store as a
// port.HistoryRepository
func (s *Store) HistoryRepository() port.HistoryRepository {
	return historyRepository{s}
}

type historyRepository struct {
	s *Store
}

// Create appends a history entry and assigns its sequence ID
func (h historyRepository) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	return h.s.update(ctx, func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(BucketHistory))
		seq, err := root.NextSequence()
		if err != nil {
			return err
		}

		b, err := root.CreateBucketIfNotExists([]byte(history.ReportID))
		if err != nil {
			return fmt.Errorf("failed to create history bucket: %w", err)
		}

		entry := *history
		entry.ID = int64(seq)
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		if err := b.Put(itob(entry.ID), data); err != nil {
			return err
		}

		history.ID = entry.ID
		return nil
	})
}

// GetByReportID retrieves all history records for a report in commit order
func (h historyRepository) GetByReportID(ctx context.Context, reportID string) ([]*entity.ApprovalHistory, error) {
	var records []*entity.ApprovalHistory

	err := h.s.view(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketHistory)).Bucket([]byte(reportID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var record entity.ApprovalHistory
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal history: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// itob returns an 8-byte big endian representation of v
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Verify interface compliance
var (
	_ port.ReportStore        = (*Store)(nil)
	_ port.TransactionManager = (*Store)(nil)
	_ port.HistoryRepository  = historyRepository{}
)
