// Package x402 implements the client side of the x402 "payment required"
// protocol: a scheme registry, the exact EVM scheme and an http.RoundTripper
// that answers a 402 challenge once before returning.
package x402

import (
	"encoding/json"
	"strconv"
)

// Protocol versions understood by the client.
const (
	V1 = 1
	V2 = 2
)

// HTTP headers used on the wire.
const (
	HeaderPaymentRequired    = "PAYMENT-REQUIRED"
	HeaderPaymentSignature   = "PAYMENT-SIGNATURE"
	HeaderPaymentResponse    = "PAYMENT-RESPONSE"
	HeaderPaymentV1          = "X-PAYMENT"
	HeaderPaymentResponseV1  = "X-PAYMENT-RESPONSE"
	defaultMaxTimeoutSeconds = 300
)

// ResourceInfo describes the paid resource in a v2 challenge.
type ResourceInfo struct {
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequirements is one acceptable way to pay, as offered by the server.
// It covers both the v1 and v2 field sets.
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	Amount            string         `json:"amount,omitempty"`
	MaxAmountRequired string         `json:"maxAmountRequired,omitempty"`
	Asset             string         `json:"asset"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int64          `json:"maxTimeoutSeconds,omitempty"`
	Resource          string         `json:"resource,omitempty"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// ExtraString returns the string stored under key in Extra, or "" when it
// is missing or not a string.
func (r PaymentRequirements) ExtraString(key string) string {
	s, _ := r.Extra[key].(string)
	return s
}

// Value returns the amount to authorize in atomic units.
func (r PaymentRequirements) Value() string {
	if r.Amount != "" {
		return r.Amount
	}
	return r.MaxAmountRequired
}

// Timeout returns the authorization validity window in seconds.
func (r PaymentRequirements) Timeout() int64 {
	if r.MaxTimeoutSeconds <= 0 {
		return defaultMaxTimeoutSeconds
	}
	return r.MaxTimeoutSeconds
}

// PaymentRequired is the body of a 402 challenge.
type PaymentRequired struct {
	X402Version int               `json:"x402Version"`
	Error       string            `json:"error,omitempty"`
	Resource    *ResourceInfo     `json:"resource,omitempty"`
	Accepts     []json.RawMessage `json:"accepts"`
}

// PaymentPayload is sent back to the server in the payment header.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme,omitempty"`
	Network     string          `json:"network,omitempty"`
	Resource    *ResourceInfo   `json:"resource,omitempty"`
	Accepted    json.RawMessage `json:"accepted,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// SettleResponse is the settlement receipt returned with a paid response.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// Authorization is an EIP-3009 TransferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEvmPayload is the scheme-specific part of an exact EVM payment.
type ExactEvmPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

func unixString(sec int64) string {
	return strconv.FormatInt(sec, 10)
}
