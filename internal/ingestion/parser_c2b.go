package ingestion

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/mpesa"
)

type c2bPayload struct {
	TransactionType   string          `json:"TransactionType"`
	TransID           string          `json:"TransID"`
	TransTime         string          `json:"TransTime"`
	TransAmount       decimal.Decimal `json:"TransAmount"`
	BusinessShortCode string          `json:"BusinessShortCode"`
	BillRefNumber     string          `json:"BillRefNumber"`
	OrgAccountBalance string          `json:"OrgAccountBalance"`
	MSISDN            string          `json:"MSISDN"`
	FirstName         string          `json:"FirstName"`
	LastName          string          `json:"LastName"`
}

// ParseC2BPayment decodes a paybill validation or confirmation request.
// TransAmount may arrive quoted or bare.
func ParseC2BPayment(data []byte) (domain.C2BPayment, error) {
	var p c2bPayload
	if err := decode(data, &p); err != nil {
		return domain.C2BPayment{}, fmt.Errorf("c2b payment: %w", err)
	}
	if p.TransID == "" {
		return domain.C2BPayment{}, fmt.Errorf("c2b payment: missing TransID")
	}

	out := domain.C2BPayment{
		TransID:           p.TransID,
		TransAmount:       p.TransAmount,
		BillRefNumber:     strings.TrimSpace(p.BillRefNumber),
		MSISDN:            p.MSISDN,
		FirstName:         p.FirstName,
		LastName:          p.LastName,
		BusinessShortCode: p.BusinessShortCode,
		OrgAccountBalance: p.OrgAccountBalance,
	}
	if p.TransTime != "" {
		at, err := mpesa.ParseTransactionTime(p.TransTime)
		if err != nil {
			return out, fmt.Errorf("c2b payment: %w", err)
		}
		out.TransTime = &at
	}
	return out, nil
}
