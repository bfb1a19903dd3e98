package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SuspenseStatus string

const (
	SuspenseNew       SuspenseStatus = "NEW"
	SuspenseProcessed SuspenseStatus = "PROCESSED"
)

// SuspensePayment holds money that was received but could not be routed to
// a destination account. Operators match it manually.
type SuspensePayment struct {
	ID                   string          `json:"id"`
	SourceReference      string          `json:"source_reference"`
	Amount               decimal.Decimal `json:"amount"`
	ExceptionType        string          `json:"exception_type"`
	Status               SuspenseStatus  `json:"status"`
	UtilisedBy           string          `json:"utilised_by,omitempty"`
	PhoneNumber          string          `json:"phone_number,omitempty"`
	PendingPaymentID     string          `json:"pending_payment_id,omitempty"`
	TransactionRequestID string          `json:"transaction_request_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
}
