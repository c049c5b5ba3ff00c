package x402

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxChallengeBody bounds how much of a v1 402 body is read.
const maxChallengeBody = 1 << 20

// Transport is an http.RoundTripper that pays for requests answered with
// 402 Payment Required. It retries a request at most once.
type Transport struct {
	// Base performs the actual requests. http.DefaultTransport when nil.
	Base http.RoundTripper
	// Client builds payment payloads for challenges.
	Client *Client
	// Logger receives payment events. slog.Default when nil.
	Logger *slog.Logger
	// OnPayment, when set, is called after every payment attempt.
	OnPayment func(PaymentEvent)
}

// PaymentEvent describes one payment attempt.
type PaymentEvent struct {
	Network    string
	Amount     string
	PayTo      string
	StatusCode int
	Settlement *SettleResponse
	Err        error
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired || hasPaymentHeader(req) {
		return resp, nil
	}

	challenge, err := readChallenge(resp)
	if err != nil {
		t.notify(PaymentEvent{Err: err})
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	payment, err := t.Client.CreatePaymentPayload(req.Context(), challenge)
	if err != nil {
		t.notify(PaymentEvent{Err: err})
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	header, err := encodeHeader(payment)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	retry, err := cloneRequest(req, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if payment.X402Version >= V2 {
		retry.Header.Set(HeaderPaymentSignature, header)
	} else {
		retry.Header.Set(HeaderPaymentV1, header)
	}

	selected, _, _ := t.Client.Select(challenge.Accepts)
	t.logger().Debug("answering payment challenge",
		"url", req.URL.Redacted(),
		"network", selected.Network,
		"amount", selected.Value(),
		"version", payment.X402Version)

	paid, err := t.base().RoundTrip(retry)
	if err != nil {
		t.notify(PaymentEvent{Network: selected.Network, Amount: selected.Value(), PayTo: selected.PayTo, Err: err})
		return nil, err
	}

	event := PaymentEvent{
		Network:    selected.Network,
		Amount:     selected.Value(),
		PayTo:      selected.PayTo,
		StatusCode: paid.StatusCode,
		Settlement: readSettlement(paid),
	}
	if paid.StatusCode == http.StatusPaymentRequired {
		event.Err = ErrPaymentFailed
	}
	t.notify(event)

	return paid, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t *Transport) notify(ev PaymentEvent) {
	if ev.Err != nil {
		t.logger().Warn("payment attempt failed", "network", ev.Network, "amount", ev.Amount, "error", ev.Err)
	} else if ev.Settlement != nil {
		t.logger().Info("payment settled",
			"network", ev.Network,
			"amount", ev.Amount,
			"transaction", ev.Settlement.Transaction)
	}

	if t.OnPayment != nil {
		t.OnPayment(ev)
	}
}

func hasPaymentHeader(req *http.Request) bool {
	return req.Header.Get(HeaderPaymentSignature) != "" || req.Header.Get(HeaderPaymentV1) != ""
}

// bufferBody makes the request body replayable when the caller did not
// provide GetBody.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil, nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll failed: %w", err)
	}
	_ = req.Body.Close()

	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func cloneRequest(req *http.Request, body []byte) (*http.Request, error) {
	retry := req.Clone(req.Context())

	switch {
	case body != nil:
		retry.Body = io.NopCloser(bytes.NewReader(body))
	case req.GetBody != nil:
		rc, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("req.GetBody failed: %w", err)
		}
		retry.Body = rc
	}

	return retry, nil
}

func readChallenge(resp *http.Response) (*PaymentRequired, error) {
	defer func() { _ = resp.Body.Close() }()

	var challenge PaymentRequired

	if h := resp.Header.Get(HeaderPaymentRequired); h != "" {
		raw, err := base64.StdEncoding.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedChallenge, err)
		}
		if err := json.Unmarshal(raw, &challenge); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedChallenge, err)
		}
		return &challenge, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeBody))
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll failed: %w", err)
	}
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedChallenge, err)
	}
	if challenge.X402Version == 0 {
		challenge.X402Version = V1
	}

	return &challenge, nil
}

func readSettlement(resp *http.Response) *SettleResponse {
	h := resp.Header.Get(HeaderPaymentResponse)
	if h == "" {
		h = resp.Header.Get(HeaderPaymentResponseV1)
	}
	if h == "" {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(h)
	if err != nil {
		return nil
	}

	var settle SettleResponse
	if err := json.Unmarshal(raw, &settle); err != nil {
		return nil
	}

	return &settle
}

func encodeHeader(p *PaymentPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("json.Marshal failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
