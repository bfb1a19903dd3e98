package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestType string

const (
	RequestDeposit    RequestType = "DEPOSIT"
	RequestWithdrawal RequestType = "WITHDRAWAL"
	RequestTransfer   RequestType = "TRANSFER"
)

type Category string

const (
	CategoryLoanRepayment     Category = "LOAN_REPAYMENT"
	CategorySavingsDeposit    Category = "SAVINGS_DEPOSIT"
	CategorySavingsWithdrawal Category = "SAVINGS_WITHDRAWAL"
	CategoryAccountDeposit    Category = "ACCOUNT_DEPOSIT"
	CategoryAccountWithdrawal Category = "ACCOUNT_WITHDRAWAL"
	CategoryTransfer          Category = "TRANSFER"
	CategoryOther             Category = "OTHER"
)

type PaymentMethod string

const (
	MethodProvider     PaymentMethod = "PROVIDER"
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheque       PaymentMethod = "CHEQUE"
)

// IsManual reports whether the method bypasses the provider and needs a
// human approval instead.
func (m PaymentMethod) IsManual() bool {
	return m == MethodCash || m == MethodBankTransfer || m == MethodCheque
}

type Channel string

const (
	ChannelDirect Channel = "DIRECT"
	ChannelManual Channel = "MANUAL"
	ChannelC2B    Channel = "C2B"
)

type RequestStatus string

const (
	RequestInitiated        RequestStatus = "INITIATED"
	RequestProcessing       RequestStatus = "PROCESSING"
	RequestSuccess          RequestStatus = "SUCCESS"
	RequestFailed           RequestStatus = "FAILED"
	RequestCancelled        RequestStatus = "CANCELLED"
	RequestAwaitingApproval RequestStatus = "AWAITING_APPROVAL"
	RequestPosted           RequestStatus = "POSTED_TO_ACCOUNT"
)

// IsTerminal reports whether no transition out of the status is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestPosted || s == RequestFailed || s == RequestCancelled
}

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestInitiated:        {RequestProcessing, RequestAwaitingApproval, RequestFailed},
	RequestProcessing:       {RequestSuccess, RequestFailed, RequestCancelled},
	RequestSuccess:          {RequestPosted},
	RequestAwaitingApproval: {RequestPosted, RequestFailed},
	RequestPosted:           {},
	RequestFailed:           {},
	RequestCancelled:        {},
}

// CanTransition checks if a transaction request may move from one status to
// another.
func CanTransition(from, to RequestStatus) bool {
	for _, allowed := range requestTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransactionRequest is the caller-facing unit of work. It is fulfilled
// either by a provider payment or by a manual approval.
type TransactionRequest struct {
	ID               string          `json:"id"`
	Type             RequestType     `json:"type"`
	Category         Category        `json:"category"`
	Amount           decimal.Decimal `json:"amount"`
	CustomerID       string          `json:"customer_id,omitempty"`
	PhoneNumber      string          `json:"phone_number,omitempty"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	Channel          Channel         `json:"channel"`
	Status           RequestStatus   `json:"status"`
	PostedToAccount  bool            `json:"posted_to_account"`
	LoanID           string          `json:"loan_id,omitempty"`
	SavingsAccountID string          `json:"savings_account_id,omitempty"`
	TargetAccountID  string          `json:"target_account_id,omitempty"`
	SourceAccountID  string          `json:"source_account_id,omitempty"`
	PendingPaymentID string          `json:"pending_payment_id,omitempty"`
	ReferenceNumber  string          `json:"reference_number,omitempty"`
	Description      string          `json:"description,omitempty"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

// SettledReceipt is returned by a successful settlement.
type SettledReceipt struct {
	RequestID       string          `json:"request_id"`
	ReferenceNumber string          `json:"reference_number"`
	Destination     string          `json:"destination"`
	Amount          decimal.Decimal `json:"amount"`
	ProcessedAt     time.Time       `json:"processed_at"`
}
