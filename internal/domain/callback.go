package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// STKCallback is the outcome of an STK push as reported by the provider's
// webhook.
type STKCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     string
	Amount            *decimal.Decimal
	TransactionDate   *time.Time
	PhoneNumber       string
}

func (c STKCallback) Resolution() Resolution {
	return Resolution{
		ResultCode:    c.ResultCode,
		ResultDesc:    c.ResultDesc,
		ReceiptNumber: c.ReceiptNumber,
		Amount:        c.Amount,
		TransactedAt:  c.TransactionDate,
	}
}

// B2CResult is the outcome of a disbursement. OriginatorConversationID and
// ConversationID play the roles of the merchant and checkout request ids.
type B2CResult struct {
	OriginatorConversationID string
	ConversationID           string
	ResultCode               int
	ResultDesc               string
	TransactionID            string
	Amount                   *decimal.Decimal
}

func (r B2CResult) Resolution() Resolution {
	return Resolution{
		ResultCode:    r.ResultCode,
		ResultDesc:    r.ResultDesc,
		ReceiptNumber: r.TransactionID,
		Amount:        r.Amount,
	}
}

// C2BPayment is a paybill payment the customer made on their own, without a
// prompt from us.
type C2BPayment struct {
	TransID           string
	TransTime         *time.Time
	TransAmount       decimal.Decimal
	BillRefNumber     string
	MSISDN            string
	FirstName         string
	LastName          string
	BusinessShortCode string
	OrgAccountBalance string
}

// CallbackRecord is one raw webhook delivery kept for audit.
type CallbackRecord struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	PayloadHash string    `json:"payload_hash"`
	Payload     string    `json:"payload"`
	Outcome     string    `json:"outcome"`
	ReceivedAt  time.Time `json:"received_at"`
}
