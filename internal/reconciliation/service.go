package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/interfaces"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/settlement"
	"github.com/saccohub/settlement/internal/suspense"
)

type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePending   Outcome = "pending"
	OutcomeUnknown   Outcome = "unknown_payment"
)

// Result describes what a resolution attempt did.
type Result struct {
	Outcome  Outcome                 `json:"outcome"`
	Payment  *domain.PendingPayment  `json:"payment,omitempty"`
	Receipt  *domain.SettledReceipt  `json:"receipt,omitempty"`
	Suspense *domain.SuspensePayment `json:"suspense,omitempty"`
}

// Service resolves pending payments from webhooks and status queries and
// hands confirmed money to the settlement router.
type Service struct {
	store    *repository.Store
	gateway  interfaces.IProviderGateway
	router   *settlement.Router
	suspense *suspense.Service
	notifier interfaces.INotifier
	priority []string
	now      func() time.Time
}

// NewService creates a reconciler. priority is the ordered list of account
// types used to pick a default destination for unreferenced inbound
// payments; "SAVINGS" means the customer's savings account.
func NewService(
	store *repository.Store,
	gateway interfaces.IProviderGateway,
	router *settlement.Router,
	suspenseSvc *suspense.Service,
	notifier interfaces.INotifier,
	priority []string,
) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		router:   router,
		suspense: suspenseSvc,
		notifier: notifier,
		priority: priority,
		now:      time.Now,
	}
}

var requestStatusFor = map[domain.PaymentStatus]domain.RequestStatus{
	domain.PaymentSuccess:   domain.RequestSuccess,
	domain.PaymentFailed:    domain.RequestFailed,
	domain.PaymentCancelled: domain.RequestCancelled,
}

// Resolve applies a provider verdict to a pending payment. It is the single
// convergence point of the webhook and query paths.
//
// The first terminal verdict wins; any later one is reported as
// OutcomeDuplicate and changes nothing. A no-answer verdict leaves the
// payment open. A receipt already recorded on another payment fails this
// one instead of crediting the same money twice.
func (s *Service) Resolve(ctx context.Context, paymentID string, res domain.Resolution) (*Result, error) {
	var payment *domain.PendingPayment
	var outcome Outcome

	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		p, err := tx.Payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = p
		if p.CallbackReceived || p.Status.IsTerminal() {
			outcome = OutcomeDuplicate
			return nil
		}

		at := s.now().UTC()
		status := domain.StatusForResult(res.ResultCode)
		if status == domain.PaymentPending {
			outcome = OutcomePending
			return tx.Payments.NoteResult(ctx, p.ID, res.ResultCode, res.ResultDesc, at)
		}

		desc := res.ResultDesc
		if status == domain.PaymentSuccess && res.ReceiptNumber != "" {
			other, err := tx.Payments.GetByReceipt(ctx, res.ReceiptNumber)
			switch {
			case err == nil && other.ID != p.ID:
				log.Printf("[reconciler] WARNING: receipt %s already credited via payment %s; failing payment %s",
					res.ReceiptNumber, other.ID, p.ID)
				status = domain.PaymentFailed
				desc = fmt.Sprintf("%s: %s already used by payment %s", domain.ErrDuplicateReceipt, res.ReceiptNumber, other.ID)
			case err != nil && !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}
		if status == domain.PaymentSuccess && res.Amount != nil && !res.Amount.Equal(p.Amount.Ceil()) && !res.Amount.Equal(p.Amount) {
			log.Printf("[reconciler] WARNING: amount mismatch payment=%s expected=%s reported=%s",
				p.ID, p.Amount, res.Amount)
		}

		won, err := tx.Payments.Resolve(ctx, p.ID, repository.ResolveUpdate{
			Status:     status,
			ResultCode: res.ResultCode,
			ResultDesc: desc,
			Receipt:    res.ReceiptNumber,
			ResolvedAt: at,
		})
		if err != nil {
			return err
		}
		if !won {
			outcome = OutcomeDuplicate
			return nil
		}

		if p.TransactionRequestID != "" {
			req, err := tx.Requests.GetByID(ctx, p.TransactionRequestID)
			if err != nil {
				return fmt.Errorf("load request %s: %w", p.TransactionRequestID, err)
			}
			if req.Status == domain.RequestProcessing || req.Status == domain.RequestInitiated {
				if req.Status == domain.RequestInitiated {
					// Callback overtook the ack bookkeeping.
					if err := tx.Requests.Transition(ctx, req.ID, domain.RequestInitiated, domain.RequestProcessing, "", at); err != nil {
						return err
					}
				}
				if err := tx.Requests.Transition(ctx, req.ID, domain.RequestProcessing, requestStatusFor[status], failureReason(status, desc), at); err != nil {
					return err
				}
			}
		}

		payment, err = tx.Payments.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		outcome = OutcomeResolved
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve payment %s: %w", paymentID, err)
	}

	result := &Result{Outcome: outcome, Payment: payment}
	switch outcome {
	case OutcomeDuplicate:
		log.Printf("[reconciler] duplicate resolution ignored payment=%s status=%s", payment.ID, payment.Status)
		return result, nil
	case OutcomePending:
		log.Printf("[reconciler] payment=%s still pending (code=%d %s)", payment.ID, res.ResultCode, res.ResultDesc)
		return result, nil
	}

	log.Printf("[reconciler] resolved payment=%s checkout_request_id=%s status=%s",
		payment.ID, payment.CheckoutRequestID, payment.Status)

	switch payment.Status {
	case domain.PaymentSuccess:
		s.settle(ctx, payment, result)
	case domain.PaymentCancelled:
		s.notify(ctx, domain.Notification{
			Kind:        domain.NotifyPaymentCancelled,
			PhoneNumber: payment.PhoneNumber,
			Amount:      payment.Amount,
			Reference:   payment.PurposeReference,
		})
	case domain.PaymentFailed:
		kind := domain.NotifyPaymentFailed
		if payment.Kind == domain.KindB2C {
			kind = domain.NotifyDisbursementFailed
		}
		s.notify(ctx, domain.Notification{
			Kind:        kind,
			PhoneNumber: payment.PhoneNumber,
			Amount:      payment.Amount,
			Reference:   payment.PurposeReference,
			Reason:      payment.ProviderResultDescription,
		})
	}
	return result, nil
}

// settle posts a successful payment, falling back to suspense when the
// destination cannot take it. The payment stays SUCCESS either way.
func (s *Service) settle(ctx context.Context, p *domain.PendingPayment, result *Result) {
	ref := settlementReference(p)
	fallback := func(ctx context.Context, cause error) {
		result.Suspense = s.suspense.RecordUnrouted(ctx, suspenseEntry(p, cause.Error()))
	}

	saga := settlement.NewSaga("settle payment "+p.ID, settlement.Step{
		Name: "route",
		Do: func(ctx context.Context) error {
			if p.TransactionRequestID == "" {
				return &domain.RoutingError{Reason: "payment has no transaction request"}
			}
			receipt, err := s.router.Settle(ctx, p.TransactionRequestID, ref, "")
			result.Receipt = receipt
			return err
		},
		Compensate: fallback,
	})
	if err := saga.Run(ctx); err != nil && !domain.IsRoutingError(err) {
		log.Printf("[reconciler] ERROR: settlement of payment %s failed: %v", p.ID, err)
	}

	// Money moved even when it landed in suspense.
	kind := domain.NotifyPaymentSucceeded
	if p.Kind == domain.KindB2C {
		kind = domain.NotifyDisbursementSent
	}
	s.notify(ctx, domain.Notification{
		Kind:        kind,
		PhoneNumber: p.PhoneNumber,
		Amount:      p.Amount,
		Receipt:     p.ProviderReceiptNumber,
		Reference:   p.PurposeReference,
	})
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Printf("[reconciler] WARNING: notification %s to %s failed: %v", n.Kind, n.PhoneNumber, err)
	}
}

// settlementReference is the idempotency key for the money movement: the
// provider receipt when there is one, the checkout request id otherwise.
func settlementReference(p *domain.PendingPayment) string {
	if p.ProviderReceiptNumber != "" {
		return p.ProviderReceiptNumber
	}
	return p.CheckoutRequestID
}

func failureReason(status domain.PaymentStatus, desc string) string {
	if status == domain.PaymentSuccess {
		return ""
	}
	return desc
}
