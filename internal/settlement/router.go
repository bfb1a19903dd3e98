package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/repository"
)

// Router credits or debits the destination of a confirmed request and
// marks the request POSTED_TO_ACCOUNT in the same database transaction.
type Router struct {
	store *repository.Store
	now   func() time.Time
}

func NewRouter(store *repository.Store) *Router {
	return &Router{store: store, now: time.Now}
}

// Settle posts the request identified by requestID. reference identifies the
// money movement (provider receipt, or the request id for manual payments)
// and makes every balance change idempotent.
//
// A request already POSTED_TO_ACCOUNT returns its existing receipt. A
// request that is not SUCCESS or AWAITING_APPROVAL yields ErrStateConflict.
// A destination that cannot take the money yields a *domain.RoutingError and
// leaves every balance untouched.
func (r *Router) Settle(ctx context.Context, requestID, reference, approvedBy string) (*domain.SettledReceipt, error) {
	var receipt *domain.SettledReceipt
	err := r.store.InTx(ctx, func(tx *repository.Store) error {
		req, err := tx.Requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}

		route := domain.RouteFor(*req)
		if req.Status == domain.RequestPosted {
			receipt = receiptFor(req, route, req.ReferenceNumber, derefTime(req.ProcessedAt))
			return nil
		}
		if req.Status != domain.RequestSuccess && req.Status != domain.RequestAwaitingApproval {
			return fmt.Errorf("settle request %s in status %s: %w", req.ID, req.Status, domain.ErrStateConflict)
		}

		at := r.now().UTC()
		if err := r.apply(ctx, tx, req, route, reference, at); err != nil {
			return err
		}
		if err := tx.Requests.MarkPosted(ctx, req.ID, req.Status, reference, approvedBy, at); err != nil {
			return err
		}
		receipt = receiptFor(req, route, reference, at)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[settlement] posted request=%s destination=%s amount=%s ref=%s",
		receipt.RequestID, receipt.Destination, receipt.Amount, receipt.ReferenceNumber)
	return receipt, nil
}

func (r *Router) apply(ctx context.Context, tx *repository.Store, req *domain.TransactionRequest, route domain.Route, ref string, at time.Time) error {
	switch rt := route.(type) {
	case domain.LoanRoute:
		return r.applyLoan(ctx, tx, req, rt, ref, at)
	case domain.SavingsRoute:
		dir, err := directionFor(req.Type)
		if err != nil {
			return err
		}
		_, _, err = tx.Savings.ApplyMovement(ctx, rt.SavingsAccountID, dir, req.Amount, ref, at)
		return asRoutingError("savings "+rt.SavingsAccountID, err)
	case domain.AccountRoute:
		if rt.SourceAccountID != "" {
			return r.applyTransfer(ctx, tx, req.Amount, rt, ref, at)
		}
		dir, err := directionFor(req.Type)
		if err != nil {
			return err
		}
		_, _, err = tx.Accounts.ApplyMovement(ctx, rt.AccountID, dir, req.Amount, ref, at)
		return asRoutingError("account "+rt.AccountID, err)
	case domain.UnroutableRoute:
		return &domain.RoutingError{Reason: rt.Reason}
	default:
		return &domain.RoutingError{Reason: fmt.Sprintf("unknown route %T", route)}
	}
}

func (r *Router) applyLoan(ctx context.Context, tx *repository.Store, req *domain.TransactionRequest, rt domain.LoanRoute, ref string, at time.Time) error {
	if req.Type != domain.RequestDeposit {
		return &domain.RoutingError{Reason: fmt.Sprintf("%s cannot be applied to a loan", req.Type)}
	}

	var loan *domain.Loan
	var err error
	if rt.LoanID != "" {
		loan, err = tx.Loans.GetByID(ctx, rt.LoanID)
	} else {
		loan, err = tx.Loans.ActiveForCustomer(ctx, rt.CustomerID)
	}
	if err != nil {
		return asRoutingError(rt.String(), err)
	}

	_, _, err = tx.Loans.ApplyRepayment(ctx, loan.ID, req.Amount, ref, at)
	return asRoutingError("loan "+loan.Reference, err)
}

// applyTransfer debits the source and credits the target under one
// reference. Both legs commit or neither does.
func (r *Router) applyTransfer(ctx context.Context, tx *repository.Store, amount decimal.Decimal, rt domain.AccountRoute, ref string, at time.Time) error {
	if rt.SourceAccountID == rt.AccountID {
		return &domain.RoutingError{Reason: "transfer source and target are the same account"}
	}
	if _, _, err := tx.Accounts.ApplyMovement(ctx, rt.SourceAccountID, domain.Debit, amount, ref, at); err != nil {
		return asRoutingError("transfer source "+rt.SourceAccountID, err)
	}
	_, _, err := tx.Accounts.ApplyMovement(ctx, rt.AccountID, domain.Credit, amount, ref, at)
	return asRoutingError("transfer target "+rt.AccountID, err)
}

func directionFor(t domain.RequestType) (domain.Direction, error) {
	switch t {
	case domain.RequestDeposit:
		return domain.Credit, nil
	case domain.RequestWithdrawal:
		return domain.Debit, nil
	default:
		return "", &domain.RoutingError{Reason: fmt.Sprintf("%s needs a source and a target account", t)}
	}
}

// asRoutingError turns a destination failure into a RoutingError.
func asRoutingError(dest string, err error) error {
	if err == nil || domain.IsRoutingError(err) {
		return err
	}
	reason := dest + " unavailable"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		reason = dest + " not found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		reason = dest + " has insufficient funds"
	case errors.Is(err, domain.ErrInvalidRequest):
		reason = dest + " rejected the amount"
	case errors.Is(err, domain.ErrStateConflict):
		reason = dest + " is not open"
	}
	return &domain.RoutingError{Reason: reason, Err: err}
}

func receiptFor(req *domain.TransactionRequest, route domain.Route, ref string, at time.Time) *domain.SettledReceipt {
	return &domain.SettledReceipt{
		RequestID:       req.ID,
		ReferenceNumber: ref,
		Destination:     route.String(),
		Amount:          req.Amount,
		ProcessedAt:     at,
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
