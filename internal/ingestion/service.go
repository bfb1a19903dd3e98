package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/reconciliation"
	"github.com/saccohub/settlement/internal/repository"
)

// Kind names a provider webhook.
type Kind string

const (
	KindSTKCallback     Kind = "stk_callback"
	KindB2CResult       Kind = "b2c_result"
	KindB2CTimeout      Kind = "b2c_timeout"
	KindC2BConfirmation Kind = "c2b_confirmation"
)

// IngestResult is returned from a webhook ingestion.
type IngestResult struct {
	Kind      Kind                   `json:"kind"`
	Duplicate bool                   `json:"duplicate"`
	Result    *reconciliation.Result `json:"result,omitempty"`
}

// Service turns raw provider webhooks into reconciler calls. A payload
// whose bytes were already processed is skipped by content hash before it
// is even parsed.
type Service struct {
	store    *repository.Store
	reconSvc *reconciliation.Service
	now      func() time.Time
}

func NewService(store *repository.Store, reconSvc *reconciliation.Service) *Service {
	return &Service{store: store, reconSvc: reconSvc, now: time.Now}
}

// Ingest parses a webhook body of the given kind and hands it to the
// reconciler. The payload is journalled only after it was processed, so a
// provider retry after a failure is processed again.
func (s *Service) Ingest(ctx context.Context, kind Kind, data []byte) (*IngestResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.store.Callbacks.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		log.Printf("[ingestion] %s payload %s already processed", kind, hash[:12])
		return &IngestResult{Kind: kind, Duplicate: true}, nil
	}

	var result *reconciliation.Result
	switch kind {
	case KindSTKCallback:
		cb, perr := ParseSTKCallback(data)
		if perr != nil {
			return nil, perr
		}
		result, err = s.reconSvc.HandleSTKCallback(ctx, cb)
	case KindB2CResult:
		r, perr := ParseB2CResult(data)
		if perr != nil {
			return nil, perr
		}
		result, err = s.reconSvc.HandleB2CResult(ctx, r)
	case KindB2CTimeout:
		r, perr := ParseB2CResult(data)
		if perr != nil {
			return nil, perr
		}
		result, err = s.reconSvc.HandleB2CTimeout(ctx, r)
	case KindC2BConfirmation:
		c, perr := ParseC2BPayment(data)
		if perr != nil {
			return nil, perr
		}
		result, err = s.reconSvc.HandleC2BConfirmation(ctx, c)
	default:
		return nil, fmt.Errorf("unsupported webhook kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", kind, err)
	}

	// Unknown payments are not journalled: the callback may have raced the
	// acknowledgement and a provider retry could still match.
	if result.Outcome != reconciliation.OutcomeUnknown {
		rec := &domain.CallbackRecord{
			ID:          uuid.NewString(),
			Kind:        string(kind),
			PayloadHash: hash,
			Payload:     string(data),
			Outcome:     string(result.Outcome),
			ReceivedAt:  s.now().UTC(),
		}
		if err := s.store.Callbacks.Insert(ctx, rec); err != nil {
			log.Printf("[ingestion] WARNING: could not journal %s payload: %v", kind, err)
		}
	}

	log.Printf("[ingestion] %s processed outcome=%s", kind, result.Outcome)
	return &IngestResult{Kind: kind, Result: result}, nil
}
