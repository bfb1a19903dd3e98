package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store bundles the repositories over a single handle. A Store returned to
// an InTx callback is bound to that transaction.
type Store struct {
	db *sql.DB
	tx *sql.Tx

	Customers *CustomerRepo
	Accounts  *AccountRepo
	Loans     *LoanRepo
	Savings   *SavingsRepo
	Payments  *PendingPaymentRepo
	Requests  *TransactionRequestRepo
	Suspense  *SuspenseRepo
	Callbacks *CallbackLogRepo
}

func NewStore(db *sql.DB) *Store {
	s := newStore(db)
	s.db = db
	return s
}

func newStore(q DBTX) *Store {
	return &Store{
		Customers: NewCustomerRepo(q),
		Accounts:  NewAccountRepo(q),
		Loans:     NewLoanRepo(q),
		Savings:   NewSavingsRepo(q),
		Payments:  NewPendingPaymentRepo(q),
		Requests:  NewTransactionRequestRepo(q),
		Suspense:  NewSuspenseRepo(q),
		Callbacks: NewCallbackLogRepo(q),
	}
}

// InTx runs fn inside a database transaction, committing when fn returns
// nil. Calling InTx on a transaction-bound Store reuses the transaction.
//
// fn must only use the Store it is given: the pool has one connection, so
// touching the outer Store from inside fn blocks forever.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := newStore(sqlTx)
	txStore.tx = sqlTx
	if err := fn(txStore); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --- helpers ---

// Fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func pageDefaults(page, limit int) (int, int, int) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	return page, limit, (page - 1) * limit
}

func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}
