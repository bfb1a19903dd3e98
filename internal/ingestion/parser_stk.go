package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/mpesa"
)

type stkEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string   `json:"MerchantRequestID"`
			CheckoutRequestID string   `json:"CheckoutRequestID"`
			ResultCode        flexInt  `json:"ResultCode"`
			ResultDesc        string   `json:"ResultDesc"`
			CallbackMetadata  *itemSet `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type itemSet struct {
	Item []struct {
		Name  string     `json:"Name"`
		Value flexString `json:"Value"`
	} `json:"Item"`
}

// ParseSTKCallback decodes an STK push result webhook. Metadata items are
// only present on success; unknown items are ignored.
func ParseSTKCallback(data []byte) (domain.STKCallback, error) {
	var env stkEnvelope
	if err := decode(data, &env); err != nil {
		return domain.STKCallback{}, fmt.Errorf("stk callback: %w", err)
	}
	cb := env.Body.STKCallback
	if cb == nil {
		return domain.STKCallback{}, fmt.Errorf("stk callback: missing Body.stkCallback")
	}
	if cb.MerchantRequestID == "" && cb.CheckoutRequestID == "" {
		return domain.STKCallback{}, fmt.Errorf("stk callback: no request ids")
	}

	out := domain.STKCallback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        int(cb.ResultCode),
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return out, nil
	}
	for _, item := range cb.CallbackMetadata.Item {
		v := string(item.Value)
		switch item.Name {
		case "Amount":
			amt, err := decimal.NewFromString(v)
			if err != nil {
				return out, fmt.Errorf("stk callback amount %q: %w", v, err)
			}
			out.Amount = &amt
		case "MpesaReceiptNumber":
			out.ReceiptNumber = v
		case "TransactionDate":
			at, err := mpesa.ParseTransactionTime(v)
			if err != nil {
				return out, fmt.Errorf("stk callback: %w", err)
			}
			out.TransactionDate = &at
		case "PhoneNumber":
			out.PhoneNumber = v
		}
	}
	return out, nil
}

// decode reads JSON keeping numbers verbatim, so a 12-digit phone number or
// a timestamp never goes through float64.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// flexInt accepts a JSON number or a numeric string. The provider sends
// result codes both ways.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("result code %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// flexString takes a metadata value as text. Receipt numbers arrive quoted,
// amounts, dates and phone numbers arrive as bare numbers and are kept
// digit for digit.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}
