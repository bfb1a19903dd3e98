package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/interfaces"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/settlement"
)

var (
	ErrProviderInitiation = errors.New("provider initiation failed")
	ErrAckNotRecorded     = errors.New("provider acknowledgement not recorded")
)

const ackAttempts = 3

// NewRequest is the caller's description of a money movement.
type NewRequest struct {
	Type             domain.RequestType   `json:"type"`
	Category         domain.Category      `json:"category"`
	Amount           decimal.Decimal      `json:"amount"`
	CustomerID       string               `json:"customer_id"`
	PhoneNumber      string               `json:"phone_number"`
	PaymentMethod    domain.PaymentMethod `json:"payment_method"`
	LoanID           string               `json:"loan_id"`
	SavingsAccountID string               `json:"savings_account_id"`
	TargetAccountID  string               `json:"target_account_id"`
	SourceAccountID  string               `json:"source_account_id"`
	Description      string               `json:"description"`
}

// Service owns the status of transaction requests.
type Service struct {
	store    *repository.Store
	gateway  interfaces.IProviderGateway
	router   *settlement.Router
	notifier interfaces.INotifier
	now      func() time.Time
}

func NewService(store *repository.Store, gateway interfaces.IProviderGateway, router *settlement.Router, notifier interfaces.INotifier) *Service {
	return &Service{store: store, gateway: gateway, router: router, notifier: notifier, now: time.Now}
}

// CreateRequest validates and records a request. Provider payments are
// initiated straight away and come back PROCESSING; manual payments come
// back AWAITING_APPROVAL.
func (s *Service) CreateRequest(ctx context.Context, in NewRequest) (*domain.TransactionRequest, error) {
	req, err := s.build(in)
	if err != nil {
		return nil, err
	}

	if req.PaymentMethod.IsManual() {
		err := s.store.InTx(ctx, func(tx *repository.Store) error {
			if err := tx.Requests.Create(ctx, req); err != nil {
				return err
			}
			return tx.Requests.Transition(ctx, req.ID, domain.RequestInitiated, domain.RequestAwaitingApproval, "", s.now().UTC())
		})
		if err != nil {
			return nil, fmt.Errorf("create manual request: %w", err)
		}
		log.Printf("[ledger] request %s awaiting approval method=%s amount=%s", req.ID, req.PaymentMethod, req.Amount)
		return s.store.Requests.GetByID(ctx, req.ID)
	}

	if req.Type == domain.RequestWithdrawal {
		if err := s.checkFunds(ctx, req); err != nil {
			return nil, err
		}
	}
	if err := s.initiate(ctx, req); err != nil {
		return nil, err
	}
	return s.store.Requests.GetByID(context.WithoutCancel(ctx), req.ID)
}

// initiate runs the provider saga: record the request, record a pending
// payment with placeholder keys, then call the provider with no transaction
// open. A failure up to and including the call fails both records and tells
// the customer. Once the provider has accepted, its keys are stored on a
// context the caller cannot cancel; if that still fails the payment stays
// PENDING.
func (s *Service) initiate(ctx context.Context, req *domain.TransactionRequest) error {
	at := s.now().UTC()
	payment := &domain.PendingPayment{
		ID:                   uuid.NewString(),
		MerchantRequestID:    "PENDING-" + uuid.NewString(),
		CheckoutRequestID:    "PENDING-" + uuid.NewString(),
		Amount:               req.Amount,
		PhoneNumber:          req.PhoneNumber,
		PurposeReference:     purposeReference(req),
		Kind:                 domain.KindSTKPush,
		Status:               domain.PaymentPending,
		TransactionRequestID: req.ID,
		CreatedAt:            at,
		UpdatedAt:            at,
	}
	if req.Type == domain.RequestWithdrawal {
		payment.Kind = domain.KindB2C
	}

	var ack domain.ProviderAck
	saga := settlement.NewSaga("initiate request "+req.ID,
		settlement.Step{
			Name: "record request",
			Do:   func(ctx context.Context) error { return s.store.Requests.Create(ctx, req) },
			Compensate: func(ctx context.Context, cause error) {
				if err := s.store.Requests.Transition(ctx, req.ID, domain.RequestInitiated, domain.RequestFailed, cause.Error(), s.now().UTC()); err != nil {
					log.Printf("[ledger] WARNING: could not fail request %s: %v", req.ID, err)
				}
			},
		},
		settlement.Step{
			Name: "record pending payment",
			Do: func(ctx context.Context) error {
				return s.store.InTx(ctx, func(tx *repository.Store) error {
					if err := tx.Payments.Create(ctx, payment); err != nil {
						return err
					}
					return tx.Requests.LinkPayment(ctx, req.ID, payment.ID, at)
				})
			},
			Compensate: func(ctx context.Context, cause error) {
				err := s.store.Payments.MarkInitiationFailed(ctx, payment.ID, cause.Error(), s.now().UTC())
				if err != nil && !errors.Is(err, domain.ErrStateConflict) {
					log.Printf("[ledger] WARNING: could not fail payment %s: %v", payment.ID, err)
				}
			},
		},
		settlement.Step{
			Name: "call provider",
			Do: func(ctx context.Context) error {
				var err error
				if payment.Kind == domain.KindB2C {
					ack, err = s.gateway.InitiateB2C(ctx, domain.B2CRequest{
						PhoneNumber: req.PhoneNumber,
						Amount:      req.Amount,
						Remarks:     req.Description,
						Occasion:    payment.PurposeReference,
					})
				} else {
					ack, err = s.gateway.InitiateSTKPush(ctx, domain.STKPushRequest{
						PhoneNumber:      req.PhoneNumber,
						Amount:           req.Amount,
						AccountReference: payment.PurposeReference,
						Description:      string(req.Category),
					})
				}
				if err != nil {
					return fmt.Errorf("%w: %w", ErrProviderInitiation, err)
				}
				return nil
			},
			Compensate: func(ctx context.Context, cause error) {
				s.notify(ctx, domain.Notification{
					Kind:        domain.NotifyPaymentFailed,
					PhoneNumber: req.PhoneNumber,
					Amount:      req.Amount,
					Reference:   payment.PurposeReference,
					Reason:      "the payment could not be started",
				})
			},
		},
	)

	if err := saga.Run(ctx); err != nil {
		return err
	}

	// The provider holds the payment from here on. Nothing below may fail
	// the records or tell the customer it did not start.
	if err := s.recordAck(context.WithoutCancel(ctx), req, payment, ack); err != nil {
		log.Printf("[ledger] ERROR: provider accepted request %s (merchant_request_id=%s checkout_request_id=%s) but it could not be recorded: %v",
			req.ID, ack.MerchantRequestID, ack.CheckoutRequestID, err)
		return fmt.Errorf("request %s: %w: %w", req.ID, ErrAckNotRecorded, err)
	}
	log.Printf("[ledger] request %s processing kind=%s checkout_request_id=%s", req.ID, payment.Kind, ack.CheckoutRequestID)
	return nil
}

// recordAck stores the provider's correlation keys and moves the request to
// PROCESSING, retrying a few times.
func (s *Service) recordAck(ctx context.Context, req *domain.TransactionRequest, payment *domain.PendingPayment, ack domain.ProviderAck) error {
	var err error
	for attempt := 1; attempt <= ackAttempts; attempt++ {
		err = s.store.InTx(ctx, func(tx *repository.Store) error {
			if err := tx.Payments.RecordAck(ctx, payment.ID, ack.MerchantRequestID, ack.CheckoutRequestID, s.now().UTC()); err != nil {
				return err
			}
			err := tx.Requests.Transition(ctx, req.ID, domain.RequestInitiated, domain.RequestProcessing, "", s.now().UTC())
			if errors.Is(err, domain.ErrStateConflict) {
				// A fast callback may already have moved the request on.
				return nil
			}
			return err
		})
		if err == nil || errors.Is(err, domain.ErrStateConflict) {
			return err
		}
		log.Printf("[ledger] WARNING: record ack for request %s attempt %d/%d: %v", req.ID, attempt, ackAttempts, err)
	}
	return err
}

// Approve settles a manual request. A request that is not awaiting
// approval is a state conflict and nothing changes. A routing failure is
// returned to the approver and the request keeps waiting.
func (s *Service) Approve(ctx context.Context, id, approver string) (*domain.SettledReceipt, error) {
	if approver == "" {
		return nil, fmt.Errorf("approver is required: %w", domain.ErrInvalidRequest)
	}
	req, err := s.store.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestAwaitingApproval {
		return nil, fmt.Errorf("approve request %s in status %s: %w", id, req.Status, domain.ErrStateConflict)
	}

	receipt, err := s.router.Settle(ctx, id, "MAN-"+id, approver)
	if err != nil {
		log.Printf("[ledger] approval of %s by %s failed: %v", id, approver, err)
		return nil, err
	}
	log.Printf("[ledger] request %s approved by %s", id, approver)

	if req.PhoneNumber != "" && req.Type == domain.RequestDeposit {
		s.notify(ctx, domain.Notification{
			Kind:        domain.NotifyPaymentSucceeded,
			PhoneNumber: req.PhoneNumber,
			Amount:      req.Amount,
			Receipt:     receipt.ReferenceNumber,
			Reference:   purposeReference(req),
		})
	}
	return receipt, nil
}

// Reject fails a manual request.
func (s *Service) Reject(ctx context.Context, id, reason string) (*domain.TransactionRequest, error) {
	if reason == "" {
		reason = "rejected"
	}
	err := s.store.Requests.Transition(ctx, id, domain.RequestAwaitingApproval, domain.RequestFailed, reason, s.now().UTC())
	if errors.Is(err, domain.ErrStateConflict) {
		if _, gerr := s.store.Requests.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[ledger] request %s rejected: %s", id, reason)
	return s.store.Requests.GetByID(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.TransactionRequest, error) {
	return s.store.Requests.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f repository.TransactionRequestFilter) ([]domain.TransactionRequest, int, error) {
	return s.store.Requests.List(ctx, f)
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Printf("[ledger] WARNING: notification %s failed: %v", n.Kind, err)
	}
}

// build validates the input and fills defaults.
func (s *Service) build(in NewRequest) (*domain.TransactionRequest, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidRequest)
	}

	if !in.Amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}
	switch in.Type {
	case domain.RequestDeposit, domain.RequestWithdrawal, domain.RequestTransfer:
	default:
		return nil, invalid("unknown type %q", in.Type)
	}
	switch in.PaymentMethod {
	case domain.MethodProvider, domain.MethodCash, domain.MethodBankTransfer, domain.MethodCheque:
	default:
		return nil, invalid("unknown payment method %q", in.PaymentMethod)
	}

	category := in.Category
	if category == "" {
		category = inferCategory(in)
	}
	if !validCategory(category) {
		return nil, invalid("unknown category %q", category)
	}

	channel := domain.ChannelManual
	phone := in.PhoneNumber
	if in.PaymentMethod == domain.MethodProvider {
		if in.Type == domain.RequestTransfer {
			return nil, invalid("transfers cannot be paid through the provider")
		}
		normalized, err := mpesa.NormalizePhone(in.PhoneNumber)
		if err != nil {
			return nil, invalid("%v", err)
		}
		phone = normalized
		channel = domain.ChannelDirect
	}
	if in.Type == domain.RequestTransfer && (in.SourceAccountID == "" || in.TargetAccountID == "") {
		return nil, invalid("transfer needs source_account_id and target_account_id")
	}

	at := s.now().UTC()
	return &domain.TransactionRequest{
		ID:               uuid.NewString(),
		Type:             in.Type,
		Category:         category,
		Amount:           in.Amount,
		CustomerID:       in.CustomerID,
		PhoneNumber:      phone,
		PaymentMethod:    in.PaymentMethod,
		Channel:          channel,
		Status:           domain.RequestInitiated,
		LoanID:           in.LoanID,
		SavingsAccountID: in.SavingsAccountID,
		TargetAccountID:  in.TargetAccountID,
		SourceAccountID:  in.SourceAccountID,
		Description:      in.Description,
		CreatedAt:        at,
		UpdatedAt:        at,
	}, nil
}

// checkFunds refuses a disbursement the destination could not cover, so
// money is not sent out only to fail the debit afterwards.
func (s *Service) checkFunds(ctx context.Context, req *domain.TransactionRequest) error {
	var balance decimal.Decimal
	switch route := domain.RouteFor(*req).(type) {
	case domain.SavingsRoute:
		sav, err := s.store.Savings.GetByID(ctx, route.SavingsAccountID)
		if err != nil {
			return fmt.Errorf("withdrawal source: %w", err)
		}
		balance = sav.Balance
	case domain.AccountRoute:
		acct, err := s.store.Accounts.GetByID(ctx, route.AccountID)
		if err != nil {
			return fmt.Errorf("withdrawal source: %w", err)
		}
		balance = acct.Balance
	default:
		return fmt.Errorf("withdrawal needs a savings or target account: %w", domain.ErrInvalidRequest)
	}
	if balance.LessThan(req.Amount) {
		return fmt.Errorf("withdraw %s with balance %s: %w", req.Amount, balance, domain.ErrInsufficientFunds)
	}
	return nil
}

func inferCategory(in NewRequest) domain.Category {
	switch {
	case in.Type == domain.RequestTransfer:
		return domain.CategoryTransfer
	case in.LoanID != "":
		return domain.CategoryLoanRepayment
	case in.TargetAccountID != "" && in.Type == domain.RequestWithdrawal:
		return domain.CategoryAccountWithdrawal
	case in.TargetAccountID != "":
		return domain.CategoryAccountDeposit
	case in.SavingsAccountID != "" && in.Type == domain.RequestWithdrawal:
		return domain.CategorySavingsWithdrawal
	case in.SavingsAccountID != "":
		return domain.CategorySavingsDeposit
	default:
		return domain.CategoryOther
	}
}

func validCategory(c domain.Category) bool {
	switch c {
	case domain.CategoryLoanRepayment, domain.CategorySavingsDeposit, domain.CategorySavingsWithdrawal,
		domain.CategoryAccountDeposit, domain.CategoryAccountWithdrawal, domain.CategoryTransfer, domain.CategoryOther:
		return true
	}
	return false
}

// purposeReference is what the customer sees as the account reference on
// the provider prompt.
func purposeReference(req *domain.TransactionRequest) string {
	switch {
	case req.LoanID != "":
		return req.LoanID
	case req.TargetAccountID != "":
		return req.TargetAccountID
	case req.SavingsAccountID != "":
		return req.SavingsAccountID
	default:
		return req.ID[:8]
	}
}
