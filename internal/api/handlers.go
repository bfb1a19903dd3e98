package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/ingestion"
	"github.com/saccohub/settlement/internal/ledger"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/reconciliation"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/suspense"
)

const maxBodyBytes = 1 << 20

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	ledger    *ledger.Service
	recon     *reconciliation.Service
	ingestion *ingestion.Service
	suspense  *suspense.Service
	breaker   BreakerReporter
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeServiceError maps engine errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAckNotRecorded):
		// May wrap ErrStateConflict; the provider still holds the payment.
		log.Printf("[api] ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, "ack_unrecorded", err.Error())
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, mpesa.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrStateConflict):
		writeError(w, http.StatusConflict, "state_conflict", err.Error())
	case domain.IsRoutingError(err):
		writeError(w, http.StatusUnprocessableEntity, "routing_failed", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_funds", err.Error())
	case mpesa.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", err.Error())
	case errors.Is(err, mpesa.ErrRejected):
		writeError(w, http.StatusBadGateway, "provider_rejected", err.Error())
	default:
		log.Printf("[api] ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Join(domain.ErrInvalidRequest, err)
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.breaker != nil {
		body["provider_circuit"] = string(h.breaker.BreakerState())
	}
	writeJSON(w, http.StatusOK, body)
}

// --- Transaction requests ---

func (h *Handlers) CreateTransactionRequest(w http.ResponseWriter, r *http.Request) {
	var in ledger.NewRequest
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}
	req, err := h.ledger.CreateRequest(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handlers) ListTransactionRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TransactionRequestFilter{
		Status:     q.Get("status"),
		CustomerID: q.Get("customer_id"),
		Type:       q.Get("type"),
		Channel:    q.Get("channel"),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	items, total, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_requests": items,
		"total":                total,
		"page":                 filter.Page,
		"limit":                filter.Limit,
	})
}

func (h *Handlers) GetTransactionRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handlers) ApproveTransactionRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, err)
		return
	}
	receipt, err := h.ledger.Approve(r.Context(), chi.URLParam(r, "id"), body.ApprovedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handlers) RejectTransactionRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	req, err := h.ledger.Reject(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// --- Payments ---

func (h *Handlers) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.recon.LocalStatus(r.Context(), chi.URLParam(r, "checkoutRequestId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) QueryPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.recon.QueryAndResolve(r.Context(), chi.URLParam(r, "checkoutRequestId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Suspense ---

func (h *Handlers) ListSuspense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.SuspenseFilter{
		Status: q.Get("status"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}
	items, total, err := h.suspense.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suspense": items,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

func (h *Handlers) ResolveSuspense(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UtilisedBy string `json:"utilised_by"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, err)
		return
	}
	sp, err := h.suspense.Resolve(r.Context(), chi.URLParam(r, "id"), body.UtilisedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// --- Webhooks ---

type webhookAck struct {
	ResultCode any    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = webhookAck{ResultCode: 0, ResultDesc: "Accepted"}

// webhook always acknowledges with 200 so the provider does not retry into
// a failure loop; processing problems are logged and left to the sweep.
func (h *Handlers) webhook(kind ingestion.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			log.Printf("[api] WARNING: read %s webhook: %v", kind, err)
			writeJSON(w, http.StatusOK, accepted)
			return
		}
		// The provider may hang up as soon as it is acknowledged.
		ctx := context.WithoutCancel(r.Context())
		if _, err := h.ingestion.Ingest(ctx, kind, data); err != nil {
			log.Printf("[api] ERROR: %s webhook: %v", kind, err)
		}
		writeJSON(w, http.StatusOK, accepted)
	}
}

func (h *Handlers) ValidateC2B(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, accepted)
		return
	}
	payment, err := ingestion.ParseC2BPayment(data)
	if err != nil {
		log.Printf("[api] WARNING: c2b validation payload: %v", err)
		writeJSON(w, http.StatusOK, accepted)
		return
	}
	if !h.recon.ValidateC2B(r.Context(), payment) {
		writeJSON(w, http.StatusOK, webhookAck{ResultCode: "C2B00016", ResultDesc: "Rejected"})
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}
