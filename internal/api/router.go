package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/saccohub/settlement/internal/ingestion"
	"github.com/saccohub/settlement/internal/ledger"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/reconciliation"
	"github.com/saccohub/settlement/internal/suspense"
)

// BreakerReporter exposes the provider circuit state for health checks.
type BreakerReporter interface {
	BreakerState() mpesa.BreakerState
}

// NewRouter creates the Chi router with all API routes mounted. breaker may
// be nil.
func NewRouter(
	ledgerSvc *ledger.Service,
	reconSvc *reconciliation.Service,
	ingestionSvc *ingestion.Service,
	suspenseSvc *suspense.Service,
	breaker BreakerReporter,
) http.Handler {
	h := &Handlers{
		ledger:    ledgerSvc,
		recon:     reconSvc,
		ingestion: ingestionSvc,
		suspense:  suspenseSvc,
		breaker:   breaker,
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Transaction requests.
		r.Post("/transaction-requests", h.CreateTransactionRequest)
		r.Get("/transaction-requests", h.ListTransactionRequests)
		r.Get("/transaction-requests/{id}", h.GetTransactionRequest)
		r.Post("/transaction-requests/{id}/approve", h.ApproveTransactionRequest)
		r.Post("/transaction-requests/{id}/reject", h.RejectTransactionRequest)

		// Payment status.
		r.Get("/status/{checkoutRequestId}", h.GetPaymentStatus)
		r.Post("/payments/{checkoutRequestId}/query", h.QueryPayment)

		// Suspense.
		r.Get("/suspense", h.ListSuspense)
		r.Post("/suspense/{id}/resolve", h.ResolveSuspense)

		// Provider webhooks.
		r.Route("/mpesa", func(r chi.Router) {
			r.Post("/stk/callback", h.webhook(ingestion.KindSTKCallback))
			r.Post("/c2b/validation", h.ValidateC2B)
			r.Post("/c2b/confirmation", h.webhook(ingestion.KindC2BConfirmation))
			r.Post("/b2c/result", h.webhook(ingestion.KindB2CResult))
			r.Post("/b2c/timeout", h.webhook(ingestion.KindB2CTimeout))
		})
	})

	return r
}
