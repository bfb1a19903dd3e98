package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
)

type LoanRepo struct {
	db DBTX
}

func NewLoanRepo(db DBTX) *LoanRepo {
	return &LoanRepo{db: db}
}

const loanColumns = `id, customer_id, reference, outstanding_balance, status, version, updated_at`

func (r *LoanRepo) Insert(ctx context.Context, l *domain.Loan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO loans
		(id, customer_id, reference, outstanding_balance, status, version, updated_at)
		VALUES (?,?,?,?,?,0,?)`,
		l.ID, l.CustomerID, l.Reference, l.OutstandingBalance.String(), string(l.Status), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *LoanRepo) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	l, _, err := r.getVersioned(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", id)
	return l, err
}

func (r *LoanRepo) GetByReference(ctx context.Context, ref string) (*domain.Loan, error) {
	l, _, err := r.getVersioned(ctx, "SELECT "+loanColumns+" FROM loans WHERE reference = ?", ref)
	return l, err
}

// ActiveForCustomer returns the customer's oldest active loan.
func (r *LoanRepo) ActiveForCustomer(ctx context.Context, customerID string) (*domain.Loan, error) {
	l, _, err := r.getVersioned(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE customer_id = ? AND status = ? ORDER BY updated_at LIMIT 1",
		customerID, string(domain.LoanActive),
	)
	return l, err
}

func (r *LoanRepo) RepaymentByReference(ctx context.Context, externalRef string) (*domain.LoanRepayment, error) {
	var rp domain.LoanRepayment
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, loan_id, amount, external_reference, balance_after, created_at
		FROM loan_repayments WHERE external_reference = ?`,
		externalRef,
	).Scan(&rp.ID, &rp.LoanID, &rp.Amount, &rp.ExternalReference, &rp.BalanceAfter, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan repayment: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rp.CreatedAt = parseTime(createdAt)
	return &rp, nil
}

// ApplyRepayment reduces the loan's outstanding balance and records the
// repayment under externalRef. Repeating an externalRef returns the earlier
// repayment with applied=false. A payment larger than the outstanding
// balance is rejected; the loan closes when it reaches zero.
func (r *LoanRepo) ApplyRepayment(ctx context.Context, loanID string, amount decimal.Decimal, externalRef string, at time.Time) (*domain.LoanRepayment, bool, error) {
	if prior, err := r.RepaymentByReference(ctx, externalRef); err == nil {
		return prior, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	loan, version, err := r.getVersioned(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", loanID)
	if err != nil {
		return nil, false, err
	}
	if loan.Status != domain.LoanActive {
		return nil, false, fmt.Errorf("loan %s is %s: %w", loan.Reference, loan.Status, domain.ErrStateConflict)
	}
	if amount.GreaterThan(loan.OutstandingBalance) {
		return nil, false, fmt.Errorf("repayment %s exceeds outstanding %s on loan %s: %w",
			amount, loan.OutstandingBalance, loan.Reference, domain.ErrInvalidRequest)
	}

	remaining := loan.OutstandingBalance.Sub(amount)
	status := domain.LoanActive
	if remaining.IsZero() {
		status = domain.LoanClosed
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET outstanding_balance = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		remaining.String(), string(status), formatTime(at), loanID, version,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update loan: %w", err)
	}
	if err := expectOneRow(res, "update loan "+loanID); err != nil {
		return nil, false, err
	}

	rp := &domain.LoanRepayment{
		ID:                uuid.NewString(),
		LoanID:            loanID,
		Amount:            amount,
		ExternalReference: externalRef,
		BalanceAfter:      remaining,
		CreatedAt:         at,
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO loan_repayments (id, loan_id, amount, external_reference, balance_after, created_at)
		VALUES (?,?,?,?,?,?)`,
		rp.ID, rp.LoanID, rp.Amount.String(), rp.ExternalReference, rp.BalanceAfter.String(), formatTime(rp.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert loan repayment: %w", err)
	}
	return rp, true, nil
}

func (r *LoanRepo) getVersioned(ctx context.Context, query string, args ...any) (*domain.Loan, int64, error) {
	var l domain.Loan
	var status, updatedAt string
	var version int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&l.ID, &l.CustomerID, &l.Reference, &l.OutstandingBalance, &status, &version, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("loan: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}
	l.Status = domain.LoanStatus(status)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, version, nil
}
