package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func newPayment(amount string) *domain.PendingPayment {
	now := time.Now().UTC()
	return &domain.PendingPayment{
		ID:                uuid.NewString(),
		MerchantRequestID: "PENDING-" + uuid.NewString(),
		CheckoutRequestID: "PENDING-" + uuid.NewString(),
		Amount:            decimal.RequireFromString(amount),
		PhoneNumber:       "254712345678",
		PurposeReference:  "LN-42",
		Kind:              domain.KindSTKPush,
		Status:            domain.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestPendingPaymentResolveIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := newPayment("1000")
	if err := s.Payments.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	update := ResolveUpdate{
		Status:     domain.PaymentSuccess,
		ResultCode: 0,
		ResultDesc: "ok",
		Receipt:    "ABC123",
		ResolvedAt: time.Now(),
	}
	won, err := s.Payments.Resolve(ctx, p.ID, update)
	if err != nil || !won {
		t.Fatalf("first resolve: won=%v err=%v", won, err)
	}

	update.Status = domain.PaymentFailed
	won, err = s.Payments.Resolve(ctx, p.ID, update)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if won {
		t.Fatal("second resolve should lose")
	}

	got, err := s.Payments.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PaymentSuccess || !got.CallbackReceived || got.ProviderReceiptNumber != "ABC123" {
		t.Fatalf("unexpected payment after resolve: %+v", got)
	}
	if !got.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("amount = %s", got.Amount)
	}
}

func TestPendingPaymentReceiptOnlyStoredOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := newPayment("50")
	if err := s.Payments.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Payments.Resolve(ctx, p.ID, ResolveUpdate{
		Status: domain.PaymentFailed, ResultCode: 2001, Receipt: "XYZ", ResolvedAt: time.Now(),
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := s.Payments.GetByID(ctx, p.ID)
	if got.ProviderReceiptNumber != "" {
		t.Fatalf("receipt stored on failed payment: %q", got.ProviderReceiptNumber)
	}
}

func TestPendingPaymentRecordAckOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := newPayment("10")
	if err := s.Payments.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Payments.RecordAck(ctx, p.ID, "mr-1", "ws_CO_1", time.Now()); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := s.Payments.RecordAck(ctx, p.ID, "mr-2", "ws_CO_2", time.Now()); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("second ack err = %v, want state conflict", err)
	}
	got, err := s.Payments.GetByCheckoutRequestID(ctx, "ws_CO_1")
	if err != nil {
		t.Fatalf("lookup by checkout id: %v", err)
	}
	if got.MerchantRequestID != "mr-1" {
		t.Fatalf("merchant id = %q", got.MerchantRequestID)
	}
	if _, err := s.Payments.GetByMerchantRequestID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing lookup err = %v", err)
	}
}

func TestAccountApplyMovement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	acct := &domain.Account{ID: "acc-1", CustomerID: "c-1", AccountNumber: "ACC-001", AccountType: "ALPHA",
		Balance: decimal.NewFromInt(100), UpdatedAt: now}
	if err := s.Accounts.Insert(ctx, acct); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tests := []struct {
		name        string
		dir         domain.Direction
		amount      int64
		ref         string
		wantApplied bool
		wantBalance int64
		wantErr     error
	}{
		{"credit", domain.Credit, 250, "ref-1", true, 350, nil},
		{"same reference again", domain.Credit, 250, "ref-1", false, 350, nil},
		{"debit", domain.Debit, 50, "ref-2", true, 300, nil},
		{"overdraw", domain.Debit, 1000, "ref-3", false, 300, domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var applied bool
			err := s.InTx(ctx, func(tx *Store) error {
				var err error
				_, applied, err = tx.Accounts.ApplyMovement(ctx, "acc-1", tt.dir, decimal.NewFromInt(tt.amount), tt.ref, now)
				return err
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if applied != tt.wantApplied {
				t.Fatalf("applied = %v, want %v", applied, tt.wantApplied)
			}
			got, _ := s.Accounts.GetByID(ctx, "acc-1")
			if !got.Balance.Equal(decimal.NewFromInt(tt.wantBalance)) {
				t.Fatalf("balance = %s, want %d", got.Balance, tt.wantBalance)
			}
		})
	}

	txns, err := s.Accounts.Transactions(ctx, "acc-1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	if !txns[0].Opening.Equal(decimal.NewFromInt(100)) || !txns[0].Closing.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("first transaction opening/closing = %s/%s", txns[0].Opening, txns[0].Closing)
	}
}

func TestLoanApplyRepayment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	loan := &domain.Loan{ID: "42", CustomerID: "c-1", Reference: "LN-42",
		OutstandingBalance: decimal.NewFromInt(1500), Status: domain.LoanActive, UpdatedAt: now}
	if err := s.Loans.Insert(ctx, loan); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, applied, err := s.Loans.ApplyRepayment(ctx, "42", decimal.NewFromInt(1000), "ABC123", now); err != nil || !applied {
		t.Fatalf("repay: applied=%v err=%v", applied, err)
	}
	if _, applied, err := s.Loans.ApplyRepayment(ctx, "42", decimal.NewFromInt(1000), "ABC123", now); err != nil || applied {
		t.Fatalf("repeat repay: applied=%v err=%v", applied, err)
	}
	if _, _, err := s.Loans.ApplyRepayment(ctx, "42", decimal.NewFromInt(501), "OVER", now); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("overpayment err = %v", err)
	}
	if _, _, err := s.Loans.ApplyRepayment(ctx, "42", decimal.NewFromInt(500), "LAST", now); err != nil {
		t.Fatalf("final repay: %v", err)
	}

	got, _ := s.Loans.GetByID(ctx, "42")
	if !got.OutstandingBalance.IsZero() || got.Status != domain.LoanClosed {
		t.Fatalf("loan after repayments = %s %s", got.OutstandingBalance, got.Status)
	}
}

func TestSuspenseInsertOncePerReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sp := &domain.SuspensePayment{
		ID: uuid.NewString(), SourceReference: "ABC123", Amount: decimal.NewFromInt(1000),
		ExceptionType: "no destination", Status: domain.SuspenseNew, CreatedAt: time.Now(),
	}
	inserted, err := s.Suspense.Insert(ctx, sp)
	if err != nil || !inserted {
		t.Fatalf("insert: inserted=%v err=%v", inserted, err)
	}
	dup := *sp
	dup.ID = uuid.NewString()
	inserted, err = s.Suspense.Insert(ctx, &dup)
	if err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v", inserted, err)
	}

	if err := s.Suspense.MarkProcessed(ctx, sp.ID, "ops", time.Now()); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := s.Suspense.MarkProcessed(ctx, sp.ID, "ops", time.Now()); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("second mark err = %v", err)
	}

	list, total, err := s.Suspense.List(ctx, SuspenseFilter{Status: string(domain.SuspenseProcessed)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].UtilisedBy != "ops" {
		t.Fatalf("list = %+v total=%d", list, total)
	}
}

func TestTransactionRequestTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	req := &domain.TransactionRequest{
		ID: uuid.NewString(), Type: domain.RequestDeposit, Category: domain.CategorySavingsDeposit,
		Amount: decimal.NewFromInt(200), PaymentMethod: domain.MethodCash, Channel: domain.ChannelManual,
		Status: domain.RequestInitiated, SavingsAccountID: "sav-1", CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Requests.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Requests.Transition(ctx, req.ID, domain.RequestInitiated, domain.RequestAwaitingApproval, "", now); err != nil {
		t.Fatalf("to awaiting: %v", err)
	}
	if err := s.Requests.Transition(ctx, req.ID, domain.RequestInitiated, domain.RequestProcessing, "", now); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("stale transition err = %v", err)
	}
	if err := s.Requests.MarkPosted(ctx, req.ID, domain.RequestAwaitingApproval, "REF-1", "teller", now); err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if err := s.Requests.MarkPosted(ctx, req.ID, domain.RequestAwaitingApproval, "REF-1", "teller", now); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("second mark posted err = %v", err)
	}
	if err := s.Requests.Transition(ctx, req.ID, domain.RequestPosted, domain.RequestFailed, "late", now); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("transition out of terminal err = %v", err)
	}

	got, err := s.Requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RequestPosted || !got.PostedToAccount || got.ApprovedBy != "teller" || got.ProcessedAt == nil {
		t.Fatalf("request after posting = %+v", got)
	}
}
