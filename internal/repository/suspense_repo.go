package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saccohub/settlement/internal/domain"
)

type SuspenseRepo struct {
	db DBTX
}

func NewSuspenseRepo(db DBTX) *SuspenseRepo {
	return &SuspenseRepo{db: db}
}

const suspenseColumns = `id, source_reference, amount, exception_type, status, utilised_by,
	phone_number, pending_payment_id, transaction_request_id, created_at, processed_at`

// Insert stores a suspense record. A second record for the same source
// reference is ignored; the returned bool reports whether a row was written.
func (r *SuspenseRepo) Insert(ctx context.Context, s *domain.SuspensePayment) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO suspense_payments
		(id, source_reference, amount, exception_type, status, utilised_by, phone_number,
		 pending_payment_id, transaction_request_id, created_at, processed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.SourceReference, s.Amount.String(), s.ExceptionType, string(s.Status),
		s.UtilisedBy, s.PhoneNumber, s.PendingPaymentID, s.TransactionRequestID,
		formatTime(s.CreatedAt), formatNullableTime(s.ProcessedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert suspense payment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *SuspenseRepo) GetByID(ctx context.Context, id string) (*domain.SuspensePayment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+suspenseColumns+" FROM suspense_payments WHERE id = ?", id)
	return scanSuspense(row)
}

func (r *SuspenseRepo) GetBySourceReference(ctx context.Context, ref string) (*domain.SuspensePayment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+suspenseColumns+" FROM suspense_payments WHERE source_reference = ?", ref)
	return scanSuspense(row)
}

func (r *SuspenseRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM suspense_payments").Scan(&n)
	return n, err
}

type SuspenseFilter struct {
	Status string
	Page   int
	Limit  int
}

func (r *SuspenseRepo) List(ctx context.Context, f SuspenseFilter) ([]domain.SuspensePayment, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	where := whereClause(clauses)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM suspense_payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	_, limit, offset := pageDefaults(f.Page, f.Limit)
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+suspenseColumns+" FROM suspense_payments"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.SuspensePayment
	for rows.Next() {
		s, err := scanSuspense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

// MarkProcessed closes a NEW suspense record. A record that is already
// PROCESSED yields ErrStateConflict.
func (r *SuspenseRepo) MarkProcessed(ctx context.Context, id, utilisedBy string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE suspense_payments SET status = ?, utilised_by = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.SuspenseProcessed), utilisedBy, formatTime(at), id, string(domain.SuspenseNew),
	)
	if err != nil {
		return fmt.Errorf("mark suspense processed %s: %w", id, err)
	}
	return expectOneRow(res, "mark suspense processed "+id)
}

func scanSuspense(s scanner) (*domain.SuspensePayment, error) {
	var sp domain.SuspensePayment
	var status, createdAt string
	var processedAt sql.NullString

	err := s.Scan(
		&sp.ID, &sp.SourceReference, &sp.Amount, &sp.ExceptionType, &status, &sp.UtilisedBy,
		&sp.PhoneNumber, &sp.PendingPaymentID, &sp.TransactionRequestID, &createdAt, &processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suspense payment: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sp.Status = domain.SuspenseStatus(status)
	sp.CreatedAt = parseTime(createdAt)
	sp.ProcessedAt = parseNullableTime(processedAt)
	return &sp, nil
}
