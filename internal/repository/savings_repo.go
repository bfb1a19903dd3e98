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

type SavingsRepo struct {
	db DBTX
}

func NewSavingsRepo(db DBTX) *SavingsRepo {
	return &SavingsRepo{db: db}
}

const savingsColumns = `id, customer_id, account_number, balance, version, updated_at`

func (r *SavingsRepo) Insert(ctx context.Context, s *domain.SavingsAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO savings_accounts
		(id, customer_id, account_number, balance, version, updated_at)
		VALUES (?,?,?,?,0,?)`,
		s.ID, s.CustomerID, s.AccountNumber, s.Balance.String(), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert savings account: %w", err)
	}
	return nil
}

func (r *SavingsRepo) GetByID(ctx context.Context, id string) (*domain.SavingsAccount, error) {
	s, _, err := r.getVersioned(ctx, "id", id)
	return s, err
}

func (r *SavingsRepo) GetByNumber(ctx context.Context, number string) (*domain.SavingsAccount, error) {
	s, _, err := r.getVersioned(ctx, "account_number", number)
	return s, err
}

func (r *SavingsRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.SavingsAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+savingsColumns+" FROM savings_accounts WHERE customer_id = ? ORDER BY account_number",
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.SavingsAccount
	for rows.Next() {
		s, _, err := scanSavings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ApplyMovement deposits into or withdraws from a savings account and
// records a savings transaction. Same contract as AccountRepo.ApplyMovement.
func (r *SavingsRepo) ApplyMovement(ctx context.Context, savingsID string, dir domain.Direction, amount decimal.Decimal, reference string, at time.Time) (*domain.SavingsTransaction, bool, error) {
	existing, err := r.transactionByReference(ctx, savingsID, reference, dir)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	acct, version, err := r.getVersioned(ctx, "id", savingsID)
	if err != nil {
		return nil, false, err
	}

	balance := acct.Balance.Add(amount)
	if dir == domain.Debit {
		balance = acct.Balance.Sub(amount)
		if balance.IsNegative() {
			return nil, false, fmt.Errorf("withdraw %s from savings %s: %w", amount, acct.AccountNumber, domain.ErrInsufficientFunds)
		}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE savings_accounts SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		balance.String(), formatTime(at), savingsID, version,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update savings balance: %w", err)
	}
	if err := expectOneRow(res, "update savings balance "+savingsID); err != nil {
		return nil, false, err
	}

	txn := &domain.SavingsTransaction{
		ID:               uuid.NewString(),
		SavingsAccountID: savingsID,
		Reference:        reference,
		Direction:        dir,
		Amount:           amount,
		BalanceAfter:     balance,
		CreatedAt:        at,
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO savings_transactions
		(id, savings_account_id, reference, direction, amount, balance_after, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		txn.ID, txn.SavingsAccountID, txn.Reference, string(txn.Direction), txn.Amount.String(),
		txn.BalanceAfter.String(), formatTime(txn.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert savings transaction: %w", err)
	}
	return txn, true, nil
}

func (r *SavingsRepo) transactionByReference(ctx context.Context, savingsID, reference string, dir domain.Direction) (*domain.SavingsTransaction, error) {
	var t domain.SavingsTransaction
	var direction, createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, savings_account_id, reference, direction, amount, balance_after, created_at
		FROM savings_transactions WHERE savings_account_id = ? AND reference = ? AND direction = ?`,
		savingsID, reference, string(dir),
	).Scan(&t.ID, &t.SavingsAccountID, &t.Reference, &direction, &t.Amount, &t.BalanceAfter, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("savings transaction: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (r *SavingsRepo) getVersioned(ctx context.Context, column, value string) (*domain.SavingsAccount, int64, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+savingsColumns+" FROM savings_accounts WHERE "+column+" = ?", value)
	return scanSavings(row)
}

func scanSavings(s scanner) (*domain.SavingsAccount, int64, error) {
	var a domain.SavingsAccount
	var version int64
	var updatedAt string
	err := s.Scan(&a.ID, &a.CustomerID, &a.AccountNumber, &a.Balance, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("savings account: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}
	a.UpdatedAt = parseTime(updatedAt)
	return &a, version, nil
}
