package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/repository"
)

// HandleSTKCallback resolves the payment named by an STK webhook. An
// unknown payment is logged and reported as OutcomeUnknown, not as an
// error: the provider must still get its acknowledgement.
func (s *Service) HandleSTKCallback(ctx context.Context, cb domain.STKCallback) (*Result, error) {
	p, err := s.findPayment(ctx, cb.MerchantRequestID, cb.CheckoutRequestID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[reconciler] WARNING: stk callback for unknown payment merchant_request_id=%s checkout_request_id=%s code=%d",
			cb.MerchantRequestID, cb.CheckoutRequestID, cb.ResultCode)
		return &Result{Outcome: OutcomeUnknown}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, p.ID, cb.Resolution())
}

// HandleB2CResult resolves a disbursement from its result webhook.
func (s *Service) HandleB2CResult(ctx context.Context, r domain.B2CResult) (*Result, error) {
	p, err := s.findPayment(ctx, r.OriginatorConversationID, r.ConversationID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[reconciler] WARNING: b2c result for unknown payment originator_conversation_id=%s conversation_id=%s",
			r.OriginatorConversationID, r.ConversationID)
		return &Result{Outcome: OutcomeUnknown}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, p.ID, r.Resolution())
}

// HandleB2CTimeout records that the provider gave up queueing a
// disbursement. The outcome is unknown, so the payment stays pending for an
// operator to check.
func (s *Service) HandleB2CTimeout(ctx context.Context, r domain.B2CResult) (*Result, error) {
	p, err := s.findPayment(ctx, r.OriginatorConversationID, r.ConversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return &Result{Outcome: OutcomeUnknown}, nil
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[reconciler] WARNING: b2c queue timeout payment=%s conversation_id=%s", p.ID, r.ConversationID)
	return &Result{Outcome: OutcomePending, Payment: p}, nil
}

// findPayment looks up by merchant request id, then by checkout request id.
func (s *Service) findPayment(ctx context.Context, merchantRequestID, checkoutRequestID string) (*domain.PendingPayment, error) {
	if merchantRequestID != "" {
		p, err := s.store.Payments.GetByMerchantRequestID(ctx, merchantRequestID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return p, err
		}
	}
	if checkoutRequestID != "" {
		return s.store.Payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	}
	return nil, fmt.Errorf("payment: %w", domain.ErrNotFound)
}

// ValidateC2B answers the provider's pre-payment validation call. Every
// payment is accepted: an unmatched one is parked in suspense on
// confirmation instead of being bounced back to the customer.
func (s *Service) ValidateC2B(_ context.Context, c domain.C2BPayment) bool {
	log.Printf("[reconciler] c2b validation trans_id=%s bill_ref=%q amount=%s", c.TransID, c.BillRefNumber, c.TransAmount)
	return true
}

// HandleC2BConfirmation books a paybill payment the customer initiated. The
// destination comes from the bill reference, then the customer's phone;
// an unmatched payment goes to suspense.
func (s *Service) HandleC2BConfirmation(ctx context.Context, c domain.C2BPayment) (*Result, error) {
	if c.TransID == "" || !c.TransAmount.IsPositive() {
		return nil, fmt.Errorf("c2b confirmation %q: %w", c.TransID, domain.ErrInvalidRequest)
	}

	phone, err := mpesa.NormalizePhone(c.MSISDN)
	if err != nil {
		// Newer paybill notifications mask or hash the MSISDN.
		phone = c.MSISDN
	}

	var payment *domain.PendingPayment
	var matched bool
	var matchNote string
	duplicate := false

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if existing, err := tx.Payments.GetByReceipt(ctx, c.TransID); err == nil {
			payment, duplicate = existing, true
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		at := s.now().UTC()
		req := &domain.TransactionRequest{
			ID:            uuid.NewString(),
			Type:          domain.RequestDeposit,
			Category:      domain.CategoryOther,
			Amount:        c.TransAmount,
			PhoneNumber:   phone,
			PaymentMethod: domain.MethodProvider,
			Channel:       domain.ChannelC2B,
			Status:        domain.RequestSuccess,
			Description:   strings.TrimSpace("paybill " + c.BillRefNumber),
			CreatedAt:     at,
			UpdatedAt:     at,
		}
		matched, matchNote, err = s.matchC2B(ctx, tx, c.BillRefNumber, phone, req)
		if err != nil {
			return err
		}

		code := domain.ResultSuccess
		payment = &domain.PendingPayment{
			ID:                        uuid.NewString(),
			MerchantRequestID:         "C2B-" + c.TransID,
			CheckoutRequestID:         c.TransID,
			Amount:                    c.TransAmount,
			PhoneNumber:               phone,
			PurposeReference:          c.BillRefNumber,
			Kind:                      domain.KindC2B,
			Status:                    domain.PaymentSuccess,
			ProviderResultCode:        &code,
			ProviderResultDescription: "paybill confirmation",
			ProviderReceiptNumber:     c.TransID,
			CallbackReceived:          true,
			TransactionRequestID:      req.ID,
			CreatedAt:                 at,
			UpdatedAt:                 at,
			ResolvedAt:                &at,
		}
		if c.TransTime != nil {
			payment.CreatedAt = c.TransTime.UTC()
		}
		req.PendingPaymentID = payment.ID

		if err := tx.Requests.Create(ctx, req); err != nil {
			return err
		}
		return tx.Payments.Create(ctx, payment)
	})
	if errors.Is(err, domain.ErrDuplicateReceipt) {
		log.Printf("[reconciler] duplicate c2b confirmation trans_id=%s", c.TransID)
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("c2b confirmation %s: %w", c.TransID, err)
	}
	if duplicate {
		log.Printf("[reconciler] duplicate c2b confirmation trans_id=%s", c.TransID)
		return &Result{Outcome: OutcomeDuplicate, Payment: payment}, nil
	}

	log.Printf("[reconciler] c2b payment trans_id=%s amount=%s matched=%v (%s)", c.TransID, c.TransAmount, matched, matchNote)
	result := &Result{Outcome: OutcomeResolved, Payment: payment}
	if !matched {
		result.Suspense = s.suspense.RecordUnrouted(ctx, suspenseEntry(payment, matchNote))
		s.notify(ctx, domain.Notification{
			Kind:        domain.NotifyPaymentSucceeded,
			PhoneNumber: payment.PhoneNumber,
			Amount:      payment.Amount,
			Receipt:     payment.ProviderReceiptNumber,
			Reference:   payment.PurposeReference,
		})
		return result, nil
	}
	s.settle(ctx, payment, result)
	return result, nil
}
