package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/repository"
)

type fixture struct {
	store  *repository.Store
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := repository.NewStore(db)
	ctx := context.Background()
	now := time.Now()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.Customers.Insert(ctx, &domain.Customer{ID: "c-1", Name: "Wanjiru", PhoneNumber: "254712345678", CreatedAt: now}))
	must(store.Loans.Insert(ctx, &domain.Loan{ID: "42", CustomerID: "c-1", Reference: "LN-42",
		OutstandingBalance: decimal.NewFromInt(5000), Status: domain.LoanActive, UpdatedAt: now}))
	must(store.Savings.Insert(ctx, &domain.SavingsAccount{ID: "sav-1", CustomerID: "c-1", AccountNumber: "SV-001",
		Balance: decimal.NewFromInt(300), UpdatedAt: now}))
	must(store.Accounts.Insert(ctx, &domain.Account{ID: "acc-1", CustomerID: "c-1", AccountNumber: "AC-001",
		AccountType: "ALPHA", Balance: decimal.NewFromInt(1000), UpdatedAt: now}))
	must(store.Accounts.Insert(ctx, &domain.Account{ID: "acc-2", CustomerID: "c-1", AccountNumber: "AC-002",
		AccountType: "ALPHA", Balance: decimal.Zero, UpdatedAt: now}))

	return &fixture{store: store, router: NewRouter(store)}
}

func (f *fixture) request(t *testing.T, mutate func(*domain.TransactionRequest)) *domain.TransactionRequest {
	t.Helper()
	now := time.Now()
	req := &domain.TransactionRequest{
		ID:            uuid.NewString(),
		Type:          domain.RequestDeposit,
		Category:      domain.CategoryOther,
		Amount:        decimal.NewFromInt(1000),
		CustomerID:    "c-1",
		PaymentMethod: domain.MethodCash,
		Channel:       domain.ChannelManual,
		Status:        domain.RequestAwaitingApproval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	mutate(req)
	if err := f.store.Requests.Create(context.Background(), req); err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func TestSettleRoutes(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.TransactionRequest)
		wantDest  string
		checkBal  func(t *testing.T, s *repository.Store)
		wantRoute bool
	}{
		{
			name:     "loan by id",
			mutate:   func(r *domain.TransactionRequest) { r.LoanID = "42" },
			wantDest: "loan:42",
			checkBal: func(t *testing.T, s *repository.Store) {
				l, _ := s.Loans.GetByID(context.Background(), "42")
				if !l.OutstandingBalance.Equal(decimal.NewFromInt(4000)) {
					t.Fatalf("loan outstanding = %s", l.OutstandingBalance)
				}
			},
		},
		{
			name:     "loan category uses active loan",
			mutate:   func(r *domain.TransactionRequest) { r.Category = domain.CategoryLoanRepayment },
			wantDest: "loan:active:c-1",
			checkBal: func(t *testing.T, s *repository.Store) {
				l, _ := s.Loans.GetByID(context.Background(), "42")
				if !l.OutstandingBalance.Equal(decimal.NewFromInt(4000)) {
					t.Fatalf("loan outstanding = %s", l.OutstandingBalance)
				}
			},
		},
		{
			name:     "account deposit wins over savings",
			mutate:   func(r *domain.TransactionRequest) { r.TargetAccountID = "acc-1"; r.SavingsAccountID = "sav-1" },
			wantDest: "account:acc-1",
			checkBal: func(t *testing.T, s *repository.Store) {
				a, _ := s.Accounts.GetByID(context.Background(), "acc-1")
				sv, _ := s.Savings.GetByID(context.Background(), "sav-1")
				if !a.Balance.Equal(decimal.NewFromInt(2000)) || !sv.Balance.Equal(decimal.NewFromInt(300)) {
					t.Fatalf("account=%s savings=%s", a.Balance, sv.Balance)
				}
			},
		},
		{
			name:     "savings deposit",
			mutate:   func(r *domain.TransactionRequest) { r.SavingsAccountID = "sav-1" },
			wantDest: "savings:sav-1",
			checkBal: func(t *testing.T, s *repository.Store) {
				sv, _ := s.Savings.GetByID(context.Background(), "sav-1")
				if !sv.Balance.Equal(decimal.NewFromInt(1300)) {
					t.Fatalf("savings = %s", sv.Balance)
				}
			},
		},
		{
			name: "transfer",
			mutate: func(r *domain.TransactionRequest) {
				r.Type = domain.RequestTransfer
				r.SourceAccountID = "acc-1"
				r.TargetAccountID = "acc-2"
				r.Amount = decimal.NewFromInt(400)
			},
			wantDest: "transfer:acc-1->acc-2",
			checkBal: func(t *testing.T, s *repository.Store) {
				a1, _ := s.Accounts.GetByID(context.Background(), "acc-1")
				a2, _ := s.Accounts.GetByID(context.Background(), "acc-2")
				if !a1.Balance.Equal(decimal.NewFromInt(600)) || !a2.Balance.Equal(decimal.NewFromInt(400)) {
					t.Fatalf("acc-1=%s acc-2=%s", a1.Balance, a2.Balance)
				}
			},
		},
		{
			name:      "unroutable",
			mutate:    func(r *domain.TransactionRequest) {},
			wantRoute: true,
		},
		{
			name:      "missing savings account",
			mutate:    func(r *domain.TransactionRequest) { r.SavingsAccountID = "nope" },
			wantRoute: true,
		},
		{
			name: "withdrawal beyond balance",
			mutate: func(r *domain.TransactionRequest) {
				r.Type = domain.RequestWithdrawal
				r.SavingsAccountID = "sav-1"
			},
			wantRoute: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request(t, tt.mutate)

			receipt, err := f.router.Settle(context.Background(), req.ID, "REF-"+req.ID, "teller")
			if tt.wantRoute {
				if !domain.IsRoutingError(err) {
					t.Fatalf("expected routing error, got %v", err)
				}
				got, _ := f.store.Requests.GetByID(context.Background(), req.ID)
				if got.Status != domain.RequestAwaitingApproval || got.PostedToAccount {
					t.Fatalf("request mutated on routing failure: %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if receipt.Destination != tt.wantDest {
				t.Fatalf("destination = %s, want %s", receipt.Destination, tt.wantDest)
			}
			tt.checkBal(t, f.store)

			got, _ := f.store.Requests.GetByID(context.Background(), req.ID)
			if got.Status != domain.RequestPosted || !got.PostedToAccount || got.ProcessedAt == nil || got.ReferenceNumber != "REF-"+req.ID {
				t.Fatalf("request after settle: %+v", got)
			}
		})
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, func(r *domain.TransactionRequest) { r.SavingsAccountID = "sav-1" })
	ctx := context.Background()

	first, err := f.router.Settle(ctx, req.ID, "ABC123", "")
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	second, err := f.router.Settle(ctx, req.ID, "ABC123", "")
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.ReferenceNumber != first.ReferenceNumber {
		t.Fatalf("re-entry changed reference: %s vs %s", second.ReferenceNumber, first.ReferenceNumber)
	}
	sv, _ := f.store.Savings.GetByID(ctx, "sav-1")
	if !sv.Balance.Equal(decimal.NewFromInt(1300)) {
		t.Fatalf("balance after two settles = %s, want 1300", sv.Balance)
	}
}

func TestSettleRejectsTerminalRequests(t *testing.T) {
	for _, status := range []domain.RequestStatus{domain.RequestFailed, domain.RequestCancelled, domain.RequestProcessing} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			req := f.request(t, func(r *domain.TransactionRequest) {
				r.Status = status
				r.SavingsAccountID = "sav-1"
			})
			if _, err := f.router.Settle(context.Background(), req.ID, "R", ""); !errors.Is(err, domain.ErrStateConflict) {
				t.Fatalf("err = %v, want state conflict", err)
			}
			sv, _ := f.store.Savings.GetByID(context.Background(), "sav-1")
			if !sv.Balance.Equal(decimal.NewFromInt(300)) {
				t.Fatalf("balance changed: %s", sv.Balance)
			}
		})
	}
}

func TestConcurrentSettlementsOnOneAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.request(t, func(r *domain.TransactionRequest) {
			r.TargetAccountID = "acc-2"
			r.Amount = decimal.NewFromInt(10)
		}).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.router.Settle(ctx, id, "REF-"+id, "")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
	}

	a, _ := f.store.Accounts.GetByID(ctx, "acc-2")
	if !a.Balance.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("balance = %s, want 200", a.Balance)
	}
}
