package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Callback is the parsed Body.stkCallback of a Daraja result notification.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            float64
	Receipt           string
	Phone             string
}

// Succeeded reports ResultCode 0.
func (c Callback) Succeeded() bool {
	return c.ResultCode == 0
}

type callbackEnvelope struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes a callback payload.
func ParseCallback(data []byte) (Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Callback{}, fmt.Errorf("decode callback: %w", err)
	}
	stk := env.Body.STKCallback
	if strings.TrimSpace(stk.CheckoutRequestID) == "" {
		return Callback{}, fmt.Errorf("callback has no CheckoutRequestID")
	}
	cb := Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode,
		ResultDesc:        stk.ResultDesc,
	}
	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			_ = json.Unmarshal(item.Value, &cb.Amount)
		case "MpesaReceiptNumber":
			cb.Receipt = rawString(item.Value)
		case "PhoneNumber":
			cb.Phone = rawString(item.Value)
		}
	}
	return cb, nil
}

// rawString accepts a JSON string or number.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
