package payload

import "encoding/json"

// YavinRequest mirrors the original implementation's http_proxy.rs
// request shape (see SPEC_FULL.md "Supplemented features"): this driver
// builds the JSON body spec §4.2 describes; it does not perform the HTTP
// session itself (spec §9 Open Question — deferred).
type YavinRequest struct {
	SerialNumber      string `json:"serial_number"`
	AmountCents       uint32 `json:"amount"`
	Currency          string `json:"currency"`
	TransactionType   string `json:"transaction_type"`
	MerchantReference string `json:"merchant_reference,omitempty"`
}

// YavinResponse mirrors http_proxy.rs's HttpResponse shape, kept as a
// value type for whatever future HTTP session logic wires the builder
// below into the session driver.
type YavinResponse struct {
	Status  int               `json:"status"`
	OK      bool              `json:"ok"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// BuildYavinRequest builds the JSON payload for Yavin Local/Cloud:
// {"serial_number":<terminal-id>,"amount":<cents>,"currency":"EUR",
// "transaction_type":"PAYMENT"[,"merchant_reference":<ref>]}.
func BuildYavinRequest(terminalID string, amountCents uint32, merchantReference string) ([]byte, error) {
	req := YavinRequest{
		SerialNumber:      terminalID,
		AmountCents:       amountCents,
		Currency:          "EUR",
		TransactionType:   "PAYMENT",
		MerchantReference: merchantReference,
	}
	return json.Marshal(req)
}
