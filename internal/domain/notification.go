package domain

import "github.com/shopspring/decimal"

type NotificationKind string

const (
	NotifyPaymentSucceeded   NotificationKind = "PAYMENT_SUCCEEDED"
	NotifyPaymentCancelled   NotificationKind = "PAYMENT_CANCELLED"
	NotifyPaymentFailed      NotificationKind = "PAYMENT_FAILED"
	NotifyDisbursementSent   NotificationKind = "DISBURSEMENT_SENT"
	NotifyDisbursementFailed NotificationKind = "DISBURSEMENT_FAILED"
	NotifyOperatorSuspense   NotificationKind = "OPERATOR_SUSPENSE"
)

// Notification is a message for a customer or, for OPERATOR_SUSPENSE, for
// back-office staff.
type Notification struct {
	Kind        NotificationKind
	PhoneNumber string
	Amount      decimal.Decimal
	Receipt     string
	Reference   string
	Reason      string
}
