package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/ingestion"
	mock_interfaces "github.com/saccohub/settlement/internal/interfaces/mocks"
	"github.com/saccohub/settlement/internal/ledger"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/reconciliation"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/settlement"
	"github.com/saccohub/settlement/internal/suspense"
)

type fakeBreaker struct{ state mpesa.BreakerState }

func (f fakeBreaker) BreakerState() mpesa.BreakerState { return f.state }

func newTestServer(t *testing.T) (*httptest.Server, *repository.Store, *mock_interfaces.MockIProviderGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	db, err := repository.InitDB(":memory:")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := repository.NewStore(db)

	ctx := context.Background()
	now := time.Now()
	if err := store.Customers.Insert(ctx, &domain.Customer{ID: "c-1", Name: "Njeri", PhoneNumber: "254712345678", CreatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Loans.Insert(ctx, &domain.Loan{ID: "42", CustomerID: "c-1", Reference: "LN-42",
		OutstandingBalance: decimal.NewFromInt(5000), Status: domain.LoanActive, UpdatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gateway := mock_interfaces.NewMockIProviderGateway(ctrl)
	notifier := mock_interfaces.NewMockINotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	router := settlement.NewRouter(store)
	suspenseSvc := suspense.NewService(store, notifier)
	recon := reconciliation.NewService(store, gateway, router, suspenseSvc, notifier, []string{"SAVINGS"})
	handler := NewRouter(
		ledger.NewService(store, gateway, router, notifier),
		recon,
		ingestion.NewService(store, recon),
		suspenseSvc,
		fakeBreaker{state: mpesa.BreakerClosed},
	)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, store, gateway
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestManualRequestLifecycle(t *testing.T) {
	srv, store, _ := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/v1/transaction-requests",
		`{"type":"DEPOSIT","amount":"300","payment_method":"CASH","loan_id":"42"}`)
	if status != http.StatusCreated || body["status"] != string(domain.RequestAwaitingApproval) {
		t.Fatalf("create: %d %v", status, body)
	}
	id := body["id"].(string)

	status, body = do(t, srv, http.MethodPost, "/api/v1/transaction-requests/"+id+"/approve", `{"approved_by":"teller-3"}`)
	if status != http.StatusOK || body["reference_number"] != "MAN-"+id {
		t.Fatalf("approve: %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/api/v1/transaction-requests/"+id+"/approve", `{"approved_by":"teller-3"}`)
	if status != http.StatusConflict || body["code"] != "state_conflict" {
		t.Fatalf("second approve: %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/v1/transaction-requests/"+id, "")
	if status != http.StatusOK || body["status"] != string(domain.RequestPosted) {
		t.Fatalf("get: %d %v", status, body)
	}

	loan, _ := store.Loans.GetByID(context.Background(), "42")
	if !loan.OutstandingBalance.Equal(decimal.NewFromInt(4700)) {
		t.Fatalf("loan = %s", loan.OutstandingBalance)
	}

	status, body = do(t, srv, http.MethodGet, "/api/v1/transaction-requests?status=POSTED_TO_ACCOUNT", "")
	if status != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("list: %d %v", status, body)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _, gateway := newTestServer(t)
	gateway.EXPECT().InitiateSTKPush(gomock.Any(), gomock.Any()).Return(domain.ProviderAck{}, mpesa.ErrCircuitOpen)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed json", http.MethodPost, "/api/v1/transaction-requests", `{"type":`, http.StatusBadRequest, "invalid_request"},
		{"zero amount", http.MethodPost, "/api/v1/transaction-requests", `{"type":"DEPOSIT","amount":0,"payment_method":"CASH"}`, http.StatusBadRequest, "invalid_request"},
		{"bad phone", http.MethodPost, "/api/v1/transaction-requests", `{"type":"DEPOSIT","amount":10,"payment_method":"PROVIDER","phone_number":"555"}`, http.StatusBadRequest, "invalid_request"},
		{"circuit open", http.MethodPost, "/api/v1/transaction-requests", `{"type":"DEPOSIT","amount":10,"payment_method":"PROVIDER","phone_number":"0712345678","loan_id":"42"}`, http.StatusServiceUnavailable, "provider_unavailable"},
		{"missing request", http.MethodGet, "/api/v1/transaction-requests/nope", "", http.StatusNotFound, "not_found"},
		{"missing status", http.MethodGet, "/api/v1/status/ws_CO_nope", "", http.StatusNotFound, "not_found"},
		{"missing suspense", http.MethodPost, "/api/v1/suspense/nope/resolve", `{"utilised_by":"ops"}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.body)
			if status != tt.wantStatus || body["code"] != tt.wantCode {
				t.Fatalf("got %d %v, want %d %s", status, body, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestSTKRoundTrip(t *testing.T) {
	srv, _, gateway := newTestServer(t)
	gateway.EXPECT().InitiateSTKPush(gomock.Any(), gomock.Any()).
		Return(domain.ProviderAck{MerchantRequestID: "29115-1", CheckoutRequestID: "ws_CO_1", AckCode: "0"}, nil)

	status, body := do(t, srv, http.MethodPost, "/api/v1/transaction-requests",
		`{"type":"DEPOSIT","amount":1000,"payment_method":"PROVIDER","phone_number":"0712345678","loan_id":"42"}`)
	if status != http.StatusCreated || body["status"] != string(domain.RequestProcessing) {
		t.Fatalf("create: %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/v1/status/ws_CO_1", "")
	if status != http.StatusOK || body["resultCode"] != nil {
		t.Fatalf("pending status: %d %v", status, body)
	}

	callback := `{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,
		"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"Amount","Value":1000},{"Name":"MpesaReceiptNumber","Value":"ABC123"}]}}}}`
	for i := 0; i < 2; i++ {
		status, body = do(t, srv, http.MethodPost, "/api/v1/mpesa/stk/callback", callback)
		if status != http.StatusOK || body["ResultCode"] != float64(0) || body["ResultDesc"] != "Accepted" {
			t.Fatalf("callback %d: %d %v", i, status, body)
		}
	}

	status, body = do(t, srv, http.MethodGet, "/api/v1/status/ws_CO_1", "")
	if status != http.StatusOK || body["resultCode"] != float64(0) || body["transactionId"] != "ABC123" {
		t.Fatalf("resolved status: %d %v", status, body)
	}

	// Already resolved; the provider is not asked again.
	status, body = do(t, srv, http.MethodPost, "/api/v1/payments/ws_CO_1/query", "")
	if status != http.StatusOK || body["outcome"] != string(reconciliation.OutcomeDuplicate) {
		t.Fatalf("query: %d %v", status, body)
	}
}

func TestWebhooksAlwaysAcknowledge(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/mpesa/stk/callback", "/mpesa/c2b/confirmation", "/mpesa/b2c/result", "/mpesa/b2c/timeout", "/mpesa/c2b/validation"} {
		t.Run(path, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/api/v1"+path, `not json`)
			if status != http.StatusOK || body["ResultDesc"] != "Accepted" {
				t.Fatalf("got %d %v", status, body)
			}
		})
	}
}

func TestSuspenseEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	confirmation := `{"TransID":"RKT0001","TransAmount":"75","BillRefNumber":"unknown","MSISDN":"254799000000"}`
	if status, _ := do(t, srv, http.MethodPost, "/api/v1/mpesa/c2b/confirmation", confirmation); status != http.StatusOK {
		t.Fatalf("confirmation status = %d", status)
	}

	status, body := do(t, srv, http.MethodGet, "/api/v1/suspense?status=NEW", "")
	if status != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("list: %d %v", status, body)
	}
	id := body["suspense"].([]any)[0].(map[string]any)["id"].(string)

	status, body = do(t, srv, http.MethodPost, "/api/v1/suspense/"+id+"/resolve", `{"utilised_by":"ops-1"}`)
	if status != http.StatusOK || body["status"] != string(domain.SuspenseProcessed) {
		t.Fatalf("resolve: %d %v", status, body)
	}
	status, body = do(t, srv, http.MethodPost, "/api/v1/suspense/"+id+"/resolve", `{"utilised_by":"ops-1"}`)
	if status != http.StatusConflict {
		t.Fatalf("second resolve: %d %v", status, body)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/healthz", "")
	if status != http.StatusOK || body["status"] != "ok" || body["provider_circuit"] != "closed" {
		t.Fatalf("health: %d %v", status, body)
	}
}
