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

type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, customer_id, account_number, account_type, balance, version, updated_at`

func (r *AccountRepo) Insert(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts
		(id, customer_id, account_number, account_type, balance, version, updated_at)
		VALUES (?,?,?,?,?,0,?)`,
		a.ID, a.CustomerID, a.AccountNumber, a.AccountType, a.Balance.String(), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	a, _, err := r.getVersioned(ctx, "id", id)
	return a, err
}

func (r *AccountRepo) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	a, _, err := r.getVersioned(ctx, "account_number", number)
	return a, err
}

func (r *AccountRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE customer_id = ? ORDER BY account_number",
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, _, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AccountRepo) Transactions(ctx context.Context, accountID string) ([]domain.AccountTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, reference, direction, amount, opening_balance, closing_balance, created_at
		FROM account_transactions WHERE account_id = ? ORDER BY created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountTransaction
	for rows.Next() {
		t, err := scanAccountTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ApplyMovement credits or debits an account and writes the matching
// transaction record. Run it inside Store.InTx so the balance read, the
// balance write and the record commit together.
//
// A movement whose reference was already applied in the same direction is
// returned as-is with applied=false.
func (r *AccountRepo) ApplyMovement(ctx context.Context, accountID string, dir domain.Direction, amount decimal.Decimal, reference string, at time.Time) (*domain.AccountTransaction, bool, error) {
	existing, err := r.transactionByReference(ctx, accountID, reference, dir)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	acct, version, err := r.getVersioned(ctx, "id", accountID)
	if err != nil {
		return nil, false, err
	}

	opening := acct.Balance
	closing := opening.Add(amount)
	if dir == domain.Debit {
		closing = opening.Sub(amount)
		if closing.IsNegative() {
			return nil, false, fmt.Errorf("debit %s from account %s: %w", amount, acct.AccountNumber, domain.ErrInsufficientFunds)
		}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		closing.String(), formatTime(at), accountID, version,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update balance: %w", err)
	}
	if err := expectOneRow(res, "update balance "+accountID); err != nil {
		return nil, false, err
	}

	txn := &domain.AccountTransaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Reference: reference,
		Direction: dir,
		Amount:    amount,
		Opening:   opening,
		Closing:   closing,
		CreatedAt: at,
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO account_transactions
		(id, account_id, reference, direction, amount, opening_balance, closing_balance, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		txn.ID, txn.AccountID, txn.Reference, string(txn.Direction), txn.Amount.String(),
		txn.Opening.String(), txn.Closing.String(), formatTime(txn.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert account transaction: %w", err)
	}
	return txn, true, nil
}

func (r *AccountRepo) transactionByReference(ctx context.Context, accountID, reference string, dir domain.Direction) (*domain.AccountTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, reference, direction, amount, opening_balance, closing_balance, created_at
		FROM account_transactions WHERE account_id = ? AND reference = ? AND direction = ?`,
		accountID, reference, string(dir),
	)
	return scanAccountTransaction(row)
}

func (r *AccountRepo) getVersioned(ctx context.Context, column, value string) (*domain.Account, int64, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE "+column+" = ?", value)
	return scanAccount(row)
}

func scanAccount(s scanner) (*domain.Account, int64, error) {
	var a domain.Account
	var version int64
	var updatedAt string
	err := s.Scan(&a.ID, &a.CustomerID, &a.AccountNumber, &a.AccountType, &a.Balance, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("account: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}
	a.UpdatedAt = parseTime(updatedAt)
	return &a, version, nil
}

func scanAccountTransaction(s scanner) (*domain.AccountTransaction, error) {
	var t domain.AccountTransaction
	var dir, createdAt string
	err := s.Scan(&t.ID, &t.AccountID, &t.Reference, &dir, &t.Amount, &t.Opening, &t.Closing, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account transaction: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(dir)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}
