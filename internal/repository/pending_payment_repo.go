package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saccohub/settlement/internal/domain"
)

type PendingPaymentRepo struct {
	db DBTX
}

func NewPendingPaymentRepo(db DBTX) *PendingPaymentRepo {
	return &PendingPaymentRepo{db: db}
}

const pendingPaymentColumns = `id, merchant_request_id, checkout_request_id, amount, phone_number,
	purpose_reference, kind, status, provider_result_code, provider_result_description,
	provider_receipt_number, callback_received, transaction_request_id, created_at,
	updated_at, resolved_at`

func (r *PendingPaymentRepo) Create(ctx context.Context, p *domain.PendingPayment) error {
	var resultCode any
	if p.ProviderResultCode != nil {
		resultCode = *p.ProviderResultCode
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_payments
		(id, merchant_request_id, checkout_request_id, amount, phone_number,
		 purpose_reference, kind, status, provider_result_code, provider_result_description,
		 provider_receipt_number, callback_received, transaction_request_id, created_at,
		 updated_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.MerchantRequestID, p.CheckoutRequestID, p.Amount.String(), p.PhoneNumber,
		p.PurposeReference, string(p.Kind), string(p.Status), resultCode,
		p.ProviderResultDescription, nullIfEmpty(p.ProviderReceiptNumber), p.CallbackReceived,
		nullIfEmpty(p.TransactionRequestID), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		formatNullableTime(p.ResolvedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert pending payment: %w", domain.ErrDuplicateReceipt)
	}
	if err != nil {
		return fmt.Errorf("insert pending payment: %w", err)
	}
	return nil
}

func (r *PendingPaymentRepo) GetByID(ctx context.Context, id string) (*domain.PendingPayment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+pendingPaymentColumns+" FROM pending_payments WHERE id = ?", id)
	return scanPendingPayment(row)
}

func (r *PendingPaymentRepo) GetByMerchantRequestID(ctx context.Context, merchantRequestID string) (*domain.PendingPayment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+pendingPaymentColumns+" FROM pending_payments WHERE merchant_request_id = ?",
		merchantRequestID,
	)
	return scanPendingPayment(row)
}

func (r *PendingPaymentRepo) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.PendingPayment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+pendingPaymentColumns+" FROM pending_payments WHERE checkout_request_id = ?",
		checkoutRequestID,
	)
	return scanPendingPayment(row)
}

func (r *PendingPaymentRepo) GetByReceipt(ctx context.Context, receipt string) (*domain.PendingPayment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+pendingPaymentColumns+" FROM pending_payments WHERE provider_receipt_number = ?",
		receipt,
	)
	return scanPendingPayment(row)
}

// RecordAck replaces the placeholder correlation keys with the ones the
// provider returned. Only a payment that is still pending and unacknowledged
// is updated.
func (r *PendingPaymentRepo) RecordAck(ctx context.Context, id, merchantRequestID, checkoutRequestID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_payments
		SET merchant_request_id = ?, checkout_request_id = ?, acknowledged_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND acknowledged_at IS NULL`,
		merchantRequestID, checkoutRequestID, formatTime(at), formatTime(at),
		id, string(domain.PaymentPending),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("record ack %s: correlation key already in use: %w", id, domain.ErrStateConflict)
	}
	if err != nil {
		return fmt.Errorf("record ack %s: %w", id, err)
	}
	return expectOneRow(res, "record ack "+id)
}

// ResolveUpdate carries the terminal fields written by Resolve.
type ResolveUpdate struct {
	Status     domain.PaymentStatus
	ResultCode int
	ResultDesc string
	Receipt    string
	ResolvedAt time.Time
}

// Resolve moves a pending payment to a terminal status and flips
// callback_received. It is a compare-and-swap: it reports false without
// error when another resolution got there first.
func (r *PendingPaymentRepo) Resolve(ctx context.Context, id string, u ResolveUpdate) (bool, error) {
	if !u.Status.IsTerminal() {
		return false, fmt.Errorf("resolve %s to %s: %w", id, u.Status, domain.ErrInvalidRequest)
	}
	receipt := ""
	if u.Status == domain.PaymentSuccess {
		receipt = u.Receipt
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_payments
		SET status = ?, provider_result_code = ?, provider_result_description = ?,
		    provider_receipt_number = ?, callback_received = 1, resolved_at = ?, updated_at = ?
		WHERE id = ? AND callback_received = 0 AND status = ?`,
		string(u.Status), u.ResultCode, u.ResultDesc, nullIfEmpty(receipt),
		formatTime(u.ResolvedAt), formatTime(u.ResolvedAt),
		id, string(domain.PaymentPending),
	)
	if isUniqueViolation(err) {
		return false, fmt.Errorf("resolve %s: %w", id, domain.ErrDuplicateReceipt)
	}
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// NoteResult stores a non-terminal provider answer (no user response) while
// leaving the payment open for a later resolution.
func (r *PendingPaymentRepo) NoteResult(ctx context.Context, id string, code int, desc string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_payments
		SET provider_result_code = ?, provider_result_description = ?, updated_at = ?
		WHERE id = ? AND callback_received = 0 AND status = ?`,
		code, desc, formatTime(at), id, string(domain.PaymentPending),
	)
	if err != nil {
		return fmt.Errorf("note result %s: %w", id, err)
	}
	return nil
}

// MarkInitiationFailed fails a payment the provider never acknowledged.
// callback_received stays false: no callback exists for it.
func (r *PendingPaymentRepo) MarkInitiationFailed(ctx context.Context, id, desc string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_payments
		SET status = ?, provider_result_description = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND acknowledged_at IS NULL`,
		string(domain.PaymentFailed), desc, formatTime(at), formatTime(at), id, string(domain.PaymentPending),
	)
	if err != nil {
		return fmt.Errorf("mark initiation failed %s: %w", id, err)
	}
	return expectOneRow(res, "mark initiation failed "+id)
}

// ListStale returns acknowledged payments of the given kind that are still
// pending and were created before the cutoff.
func (r *PendingPaymentRepo) ListStale(ctx context.Context, kind domain.PaymentKind, cutoff time.Time, limit int) ([]domain.PendingPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+pendingPaymentColumns+` FROM pending_payments
		WHERE status = ? AND callback_received = 0 AND kind = ?
		  AND acknowledged_at IS NOT NULL AND created_at < ?
		ORDER BY created_at LIMIT ?`,
		string(domain.PaymentPending), string(kind), formatTime(cutoff), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.PendingPayment
	for rows.Next() {
		p, err := scanPendingPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPendingPayment(s scanner) (*domain.PendingPayment, error) {
	var p domain.PendingPayment
	var kind, status, createdAt, updatedAt string
	var resultCode sql.NullInt64
	var receipt, requestID, resolvedAt sql.NullString

	err := s.Scan(
		&p.ID, &p.MerchantRequestID, &p.CheckoutRequestID, &p.Amount, &p.PhoneNumber,
		&p.PurposeReference, &kind, &status, &resultCode, &p.ProviderResultDescription,
		&receipt, &p.CallbackReceived, &requestID, &createdAt, &updatedAt, &resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending payment: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	p.Kind = domain.PaymentKind(kind)
	p.Status = domain.PaymentStatus(status)
	if resultCode.Valid {
		code := int(resultCode.Int64)
		p.ProviderResultCode = &code
	}
	p.ProviderReceiptNumber = receipt.String
	p.TransactionRequestID = requestID.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.ResolvedAt = parseNullableTime(resolvedAt)
	return &p, nil
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, domain.ErrStateConflict)
	}
	return nil
}
