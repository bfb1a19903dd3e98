package ingestion

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
)

type b2cEnvelope struct {
	Result *struct {
		ResultCode               flexInt `json:"ResultCode"`
		ResultDesc               string  `json:"ResultDesc"`
		OriginatorConversationID string  `json:"OriginatorConversationID"`
		ConversationID           string  `json:"ConversationID"`
		TransactionID            string  `json:"TransactionID"`
		ResultParameters         *struct {
			ResultParameter []struct {
				Key   string `json:"Key"`
				Value any    `json:"Value"`
			} `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

// ParseB2CResult decodes a disbursement result or queue-timeout webhook.
// Both share the same envelope.
func ParseB2CResult(data []byte) (domain.B2CResult, error) {
	var env b2cEnvelope
	if err := decode(data, &env); err != nil {
		return domain.B2CResult{}, fmt.Errorf("b2c result: %w", err)
	}
	r := env.Result
	if r == nil {
		return domain.B2CResult{}, fmt.Errorf("b2c result: missing Result")
	}
	if r.OriginatorConversationID == "" && r.ConversationID == "" {
		return domain.B2CResult{}, fmt.Errorf("b2c result: no conversation ids")
	}

	out := domain.B2CResult{
		OriginatorConversationID: r.OriginatorConversationID,
		ConversationID:           r.ConversationID,
		ResultCode:               int(r.ResultCode),
		ResultDesc:               r.ResultDesc,
		TransactionID:            r.TransactionID,
	}
	if r.ResultParameters != nil {
		for _, p := range r.ResultParameters.ResultParameter {
			if p.Key != "TransactionAmount" {
				continue
			}
			amt, err := decimal.NewFromString(fmt.Sprint(p.Value))
			if err != nil {
				return out, fmt.Errorf("b2c result amount %v: %w", p.Value, err)
			}
			out.Amount = &amt
		}
	}
	return out, nil
}
