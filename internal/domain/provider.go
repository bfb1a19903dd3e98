package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// STKPushRequest asks the provider to prompt a customer's phone for payment.
type STKPushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
	CallbackURL      string
}

// B2CRequest asks the provider to send money to a customer's phone.
type B2CRequest struct {
	PhoneNumber string
	Amount      decimal.Decimal
	Remarks     string
	Occasion    string
}

// ProviderAck is the provider's synchronous acknowledgement of an
// initiation. The correlation keys identify the later callback.
type ProviderAck struct {
	MerchantRequestID string
	CheckoutRequestID string
	AckCode           string
	AckDescription    string
}

// ProviderStatus is the answer to a status query.
type ProviderStatus struct {
	ResultCode    int
	ResultDesc    string
	ReceiptNumber string
	QueriedAt     time.Time
}
