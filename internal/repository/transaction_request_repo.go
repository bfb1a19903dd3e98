package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saccohub/settlement/internal/domain"
)

type TransactionRequestRepo struct {
	db DBTX
}

func NewTransactionRequestRepo(db DBTX) *TransactionRequestRepo {
	return &TransactionRequestRepo{db: db}
}

const transactionRequestColumns = `id, type, category, amount, customer_id, phone_number,
	payment_method, channel, status, posted_to_account, loan_id, savings_account_id,
	target_account_id, source_account_id, pending_payment_id, reference_number,
	description, approved_by, failure_reason, created_at, updated_at, processed_at`

func (r *TransactionRequestRepo) Create(ctx context.Context, req *domain.TransactionRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transaction_requests
		(id, type, category, amount, customer_id, phone_number, payment_method, channel,
		 status, posted_to_account, loan_id, savings_account_id, target_account_id,
		 source_account_id, pending_payment_id, reference_number, description, approved_by,
		 failure_reason, created_at, updated_at, processed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, string(req.Type), string(req.Category), req.Amount.String(), req.CustomerID,
		req.PhoneNumber, string(req.PaymentMethod), string(req.Channel), string(req.Status),
		req.PostedToAccount, req.LoanID, req.SavingsAccountID, req.TargetAccountID,
		req.SourceAccountID, req.PendingPaymentID, req.ReferenceNumber, req.Description,
		req.ApprovedBy, req.FailureReason, formatTime(req.CreatedAt), formatTime(req.UpdatedAt),
		formatNullableTime(req.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction request: %w", err)
	}
	return nil
}

func (r *TransactionRequestRepo) GetByID(ctx context.Context, id string) (*domain.TransactionRequest, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionRequestColumns+" FROM transaction_requests WHERE id = ?", id)
	return scanTransactionRequest(row)
}

// LinkPayment attaches a pending payment to a request that has none yet.
func (r *TransactionRequestRepo) LinkPayment(ctx context.Context, id, paymentID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transaction_requests SET pending_payment_id = ?, updated_at = ?
		WHERE id = ? AND pending_payment_id = ''`,
		paymentID, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("link payment %s: %w", id, err)
	}
	return expectOneRow(res, "link payment "+id)
}

// Transition moves a request from one status to another. The update only
// applies while the stored status still equals from, so a stale caller gets
// ErrStateConflict instead of overwriting a newer state.
func (r *TransactionRequestRepo) Transition(ctx context.Context, id string, from, to domain.RequestStatus, reason string, at time.Time) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("transition %s %s->%s: %w", id, from, to, domain.ErrStateConflict)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transaction_requests
		SET status = ?, failure_reason = CASE WHEN ? = '' THEN failure_reason ELSE ? END, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), reason, reason, formatTime(at), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("transition %s %s->%s", id, from, to))
}

// MarkPosted records a successful settlement. postedToAccount flips at most
// once because the update requires it to be unset.
func (r *TransactionRequestRepo) MarkPosted(ctx context.Context, id string, from domain.RequestStatus, reference, approvedBy string, at time.Time) error {
	if !domain.CanTransition(from, domain.RequestPosted) {
		return fmt.Errorf("mark posted %s from %s: %w", id, from, domain.ErrStateConflict)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transaction_requests
		SET status = ?, posted_to_account = 1, reference_number = ?,
		    approved_by = CASE WHEN ? = '' THEN approved_by ELSE ? END,
		    processed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND posted_to_account = 0`,
		string(domain.RequestPosted), reference, approvedBy, approvedBy,
		formatTime(at), formatTime(at), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("mark posted %s: %w", id, err)
	}
	return expectOneRow(res, "mark posted "+id)
}

type TransactionRequestFilter struct {
	Status     string
	CustomerID string
	Type       string
	Channel    string
	Page       int
	Limit      int
}

func (r *TransactionRequestRepo) List(ctx context.Context, f TransactionRequestFilter) ([]domain.TransactionRequest, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Channel != "" {
		clauses = append(clauses, "channel = ?")
		args = append(args, f.Channel)
	}
	where := whereClause(clauses)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transaction_requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	_, limit, offset := pageDefaults(f.Page, f.Limit)
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionRequestColumns+" FROM transaction_requests"+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	reqs, err := collectTransactionRequests(rows)
	return reqs, total, err
}

// ListUnposted returns requests whose provider payment succeeded but that
// were neither posted nor parked in suspense. They are left over when the
// process stops between resolution and settlement.
func (r *TransactionRequestRepo) ListUnposted(ctx context.Context, cutoff time.Time, limit int) ([]domain.TransactionRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionRequestColumns+` FROM transaction_requests t
		WHERE t.status = ? AND t.posted_to_account = 0 AND t.updated_at < ?
		  AND NOT EXISTS (SELECT 1 FROM suspense_payments s WHERE s.transaction_request_id = t.id)
		ORDER BY t.created_at LIMIT ?`,
		string(domain.RequestSuccess), formatTime(cutoff), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return collectTransactionRequests(rows)
}

func collectTransactionRequests(rows *sql.Rows) ([]domain.TransactionRequest, error) {
	var reqs []domain.TransactionRequest
	for rows.Next() {
		req, err := scanTransactionRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func scanTransactionRequest(s scanner) (*domain.TransactionRequest, error) {
	var req domain.TransactionRequest
	var typ, category, method, channel, status, createdAt, updatedAt string
	var processedAt sql.NullString

	err := s.Scan(
		&req.ID, &typ, &category, &req.Amount, &req.CustomerID, &req.PhoneNumber,
		&method, &channel, &status, &req.PostedToAccount, &req.LoanID, &req.SavingsAccountID,
		&req.TargetAccountID, &req.SourceAccountID, &req.PendingPaymentID, &req.ReferenceNumber,
		&req.Description, &req.ApprovedBy, &req.FailureReason, &createdAt, &updatedAt, &processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction request: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	req.Type = domain.RequestType(typ)
	req.Category = domain.Category(category)
	req.PaymentMethod = domain.PaymentMethod(method)
	req.Channel = domain.Channel(channel)
	req.Status = domain.RequestStatus(status)
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	req.ProcessedAt = parseNullableTime(processedAt)
	return &req, nil
}
