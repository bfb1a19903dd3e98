package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/mpesa"
)

// QueryAndResolve asks the provider for the status of a payment and
// resolves it with the answer. Rate limiting, an open breaker and other
// transient provider trouble are reported as OutcomePending with no state
// change.
func (s *Service) QueryAndResolve(ctx context.Context, checkoutRequestID string) (*Result, error) {
	p, err := s.store.Payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if p.CallbackReceived || p.Status.IsTerminal() {
		return &Result{Outcome: OutcomeDuplicate, Payment: p}, nil
	}
	if p.Kind != domain.KindSTKPush {
		// Only prompts can be queried; disbursements wait for their result webhook.
		return &Result{Outcome: OutcomePending, Payment: p}, nil
	}

	// No lock is held across the provider call.
	status, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
	if mpesa.IsTransient(err) {
		log.Printf("[reconciler] status query for %s deferred: %v", checkoutRequestID, err)
		return &Result{Outcome: OutcomePending, Payment: p}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", checkoutRequestID, err)
	}

	return s.Resolve(ctx, p.ID, domain.Resolution{
		ResultCode: status.ResultCode,
		ResultDesc: status.ResultDesc,
	})
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	Queried        int `json:"queried"`
	Resolved       int `json:"resolved"`
	StillPending   int `json:"still_pending"`
	Errors         int `json:"errors"`
	Resettled      int `json:"resettled"`
	SentToSuspense int `json:"sent_to_suspense"`
}

// Sweep re-queries acknowledged prompts that have been pending longer than
// grace, then retries settlement of successful requests that were neither
// posted nor parked in suspense.
func (s *Service) Sweep(ctx context.Context, grace time.Duration) (*SweepReport, error) {
	cutoff := s.now().UTC().Add(-grace)
	report := &SweepReport{}

	stale, err := s.store.Payments.ListStale(ctx, domain.KindSTKPush, cutoff, 100)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Queried++
		res, err := s.QueryAndResolve(ctx, p.CheckoutRequestID)
		switch {
		case err != nil:
			report.Errors++
			log.Printf("[sweep] query %s: %v", p.CheckoutRequestID, err)
		case res.Outcome == OutcomeResolved:
			report.Resolved++
		default:
			report.StillPending++
		}
	}

	unposted, err := s.store.Requests.ListUnposted(ctx, cutoff, 100)
	if err != nil {
		return report, fmt.Errorf("list unposted requests: %w", err)
	}
	for _, req := range unposted {
		if req.PendingPaymentID == "" {
			continue
		}
		p, err := s.store.Payments.GetByID(ctx, req.PendingPaymentID)
		if err != nil {
			report.Errors++
			log.Printf("[sweep] load payment for request %s: %v", req.ID, err)
			continue
		}
		if p.Status != domain.PaymentSuccess {
			continue
		}
		result := &Result{Outcome: OutcomeResolved, Payment: p}
		s.settle(ctx, p, result)
		if result.Suspense != nil {
			report.SentToSuspense++
		} else if result.Receipt != nil {
			report.Resettled++
		}
	}

	log.Printf("[sweep] queried=%d resolved=%d pending=%d resettled=%d suspense=%d errors=%d",
		report.Queried, report.Resolved, report.StillPending, report.Resettled, report.SentToSuspense, report.Errors)
	return report, nil
}

// StatusView is the locally known state of a payment, shaped for cheap
// client polling.
//
// ResultCode is set only once the payment is final, so a non-null value
// always means polling can stop. A non-final provider answer (1037, no
// response from the handset) is reported in LastProviderCode while Status
// stays PENDING.
type StatusView struct {
	ResultCode       *int            `json:"resultCode"`
	ResultDesc       string          `json:"resultDesc"`
	Amount           decimal.Decimal `json:"amount"`
	PhoneNumber      string          `json:"phoneNumber"`
	TransactionID    string          `json:"transactionId"`
	Status           string          `json:"status"`
	LastProviderCode *int            `json:"lastProviderCode,omitempty"`
}

// LocalStatus reads a payment's status from the store without calling the
// provider.
func (s *Service) LocalStatus(ctx context.Context, checkoutRequestID string) (*StatusView, error) {
	p, err := s.store.Payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if errors.Is(err, domain.ErrNotFound) {
		p, err = s.store.Payments.GetByMerchantRequestID(ctx, checkoutRequestID)
	}
	if err != nil {
		return nil, err
	}

	desc := p.ProviderResultDescription
	if p.Status == domain.PaymentPending && desc == "" {
		desc = "Awaiting customer confirmation"
	}
	view := &StatusView{
		ResultCode:    p.ProviderResultCode,
		ResultDesc:    desc,
		Amount:        p.Amount,
		PhoneNumber:   p.PhoneNumber,
		TransactionID: p.ProviderReceiptNumber,
		Status:        string(p.Status),
	}
	if p.Status == domain.PaymentPending {
		view.ResultCode, view.LastProviderCode = nil, p.ProviderResultCode
	}
	return view, nil
}
