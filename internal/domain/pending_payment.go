package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	KindSTKPush PaymentKind = "STK_PUSH"
	KindB2C     PaymentKind = "B2C"
	KindC2B     PaymentKind = "C2B_PAYMENT"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSuccess || s == PaymentFailed || s == PaymentCancelled
}

// Provider result codes with special meaning. Any other non-zero code is a
// definitive failure.
const (
	ResultSuccess   = 0
	ResultCancelled = 1032
	ResultNoAnswer  = 1037
)

// StatusForResult maps a provider result code to the payment status it
// produces. ResultNoAnswer leaves the payment pending so it can be retried.
func StatusForResult(code int) PaymentStatus {
	switch code {
	case ResultSuccess:
		return PaymentSuccess
	case ResultCancelled:
		return PaymentCancelled
	case ResultNoAnswer:
		return PaymentPending
	default:
		return PaymentFailed
	}
}

// PendingPayment is one attempt to move money through the mobile-money
// provider. MerchantRequestID and CheckoutRequestID hold placeholders until
// the provider acknowledges the initiation.
type PendingPayment struct {
	ID                        string          `json:"id"`
	MerchantRequestID         string          `json:"merchant_request_id"`
	CheckoutRequestID         string          `json:"checkout_request_id"`
	Amount                    decimal.Decimal `json:"amount"`
	PhoneNumber               string          `json:"phone_number"`
	PurposeReference          string          `json:"purpose_reference"`
	Kind                      PaymentKind     `json:"kind"`
	Status                    PaymentStatus   `json:"status"`
	ProviderResultCode        *int            `json:"provider_result_code,omitempty"`
	ProviderResultDescription string          `json:"provider_result_description,omitempty"`
	ProviderReceiptNumber     string          `json:"provider_receipt_number,omitempty"`
	CallbackReceived          bool            `json:"callback_received"`
	TransactionRequestID      string          `json:"transaction_request_id,omitempty"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
	ResolvedAt                *time.Time      `json:"resolved_at,omitempty"`
}

// Resolution is the provider verdict for a pending payment, whichever path
// (webhook or status query) produced it.
type Resolution struct {
	ResultCode    int
	ResultDesc    string
	ReceiptNumber string
	Amount        *decimal.Decimal
	TransactedAt  *time.Time
}
