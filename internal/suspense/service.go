package suspense

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/interfaces"
	"github.com/saccohub/settlement/internal/repository"
)

// Entry describes money that reached us but could not be put anywhere.
type Entry struct {
	SourceReference      string
	Amount               decimal.Decimal
	Reason               string
	PhoneNumber          string
	PendingPaymentID     string
	TransactionRequestID string
}

// Service is the last-resort sink for unrouted money plus the operator
// queue over it.
type Service struct {
	store    *repository.Store
	notifier interfaces.INotifier
	now      func() time.Time
}

func NewService(store *repository.Store, notifier interfaces.INotifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// RecordUnrouted parks a payment in suspense. It never fails: the customer
// has already paid, so a persistence problem is logged for operators rather
// than returned. At most one record exists per source reference; a repeat
// call returns the existing one.
func (s *Service) RecordUnrouted(ctx context.Context, e Entry) *domain.SuspensePayment {
	// The caller's request may be gone by now; the record must still land.
	ctx = context.WithoutCancel(ctx)

	sp := &domain.SuspensePayment{
		ID:                   uuid.NewString(),
		SourceReference:      e.SourceReference,
		Amount:               e.Amount,
		ExceptionType:        e.Reason,
		Status:               domain.SuspenseNew,
		PhoneNumber:          e.PhoneNumber,
		PendingPaymentID:     e.PendingPaymentID,
		TransactionRequestID: e.TransactionRequestID,
		CreatedAt:            s.now().UTC(),
	}

	inserted, err := s.store.Suspense.Insert(ctx, sp)
	if err != nil {
		log.Printf("[suspense] ERROR: could not record ref=%s amount=%s reason=%q: %v",
			e.SourceReference, e.Amount, e.Reason, err)
		return nil
	}
	if !inserted {
		existing, err := s.store.Suspense.GetBySourceReference(ctx, e.SourceReference)
		if err != nil {
			log.Printf("[suspense] WARNING: ref=%s already recorded but unreadable: %v", e.SourceReference, err)
			return nil
		}
		return existing
	}

	log.Printf("[suspense] recorded id=%s ref=%s amount=%s reason=%q", sp.ID, sp.SourceReference, sp.Amount, sp.ExceptionType)
	if s.notifier != nil {
		err := s.notifier.Notify(ctx, domain.Notification{
			Kind:        domain.NotifyOperatorSuspense,
			PhoneNumber: e.PhoneNumber,
			Amount:      e.Amount,
			Reference:   e.SourceReference,
			Reason:      e.Reason,
		})
		if err != nil {
			log.Printf("[suspense] WARNING: operator alert failed for ref=%s: %v", sp.SourceReference, err)
		}
	}
	return sp
}

func (s *Service) List(ctx context.Context, f repository.SuspenseFilter) ([]domain.SuspensePayment, int, error) {
	return s.store.Suspense.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.SuspensePayment, error) {
	return s.store.Suspense.GetByID(ctx, id)
}

// Resolve marks a suspense record as manually matched. Resolving twice is a
// state conflict.
func (s *Service) Resolve(ctx context.Context, id, utilisedBy string) (*domain.SuspensePayment, error) {
	if utilisedBy == "" {
		return nil, domain.ErrInvalidRequest
	}
	var out *domain.SuspensePayment
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := tx.Suspense.GetByID(ctx, id); err != nil {
			return err
		}
		if err := tx.Suspense.MarkProcessed(ctx, id, utilisedBy, s.now().UTC()); err != nil {
			return err
		}
		var err error
		out, err = tx.Suspense.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[suspense] resolved id=%s by=%s", id, utilisedBy)
	return out, nil
}
