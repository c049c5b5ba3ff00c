// Package mailapi is a client for the x402mail HTTP API. Every request goes
// through a payment-aware transport that settles x402 challenges.
package mailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/x402mail/x402mail-go/internal/wallet"
	"github.com/x402mail/x402mail-go/internal/x402"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://x402mail.com"
	// DefaultTimeout bounds every request, payment round trip included.
	DefaultTimeout = 30 * time.Second
	// PaymentNetwork is the only network the client pays on.
	PaymentNetwork = x402.NetworkBase

	maxResponseBody = 10 << 20
)

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	transport  http.RoundTripper
	timeout    time.Duration
	maxPayment *big.Int
	logger     *slog.Logger
	onPayment  func(x402.PaymentEvent)
}

// WithBaseURL overrides DefaultBaseURL. An empty value keeps the default.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient replaces the payment session entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTransport sets the round tripper underneath the payment transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxPayment caps each payment in atomic token units.
func WithMaxPayment(limit *big.Int) Option {
	return func(o *options) { o.maxPayment = limit }
}

// WithLogger sets the logger for payment events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPaymentHook registers a callback for every payment attempt.
func WithPaymentHook(fn func(x402.PaymentEvent)) Option {
	return func(o *options) { o.onPayment = fn }
}

// Client talks to the x402mail API on behalf of one wallet.
type Client struct {
	base    string
	http    *http.Client
	address common.Address
}

// New builds a client whose requests are paid by signer.
func New(signer x402.Signer, opts ...Option) (*Client, error) {
	o := options{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := strings.TrimRight(o.baseURL, "/")
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", o.baseURL)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		payments := x402.NewClient(x402.WithMaxAmount(o.maxPayment)).
			Register(PaymentNetwork, x402.NewExactEvmScheme(signer))

		httpClient = &http.Client{
			Timeout: o.timeout,
			Transport: otelhttp.NewTransport(&x402.Transport{
				Base:      o.transport,
				Client:    payments,
				Logger:    o.logger,
				OnPayment: o.onPayment,
			}),
		}
	}

	return &Client{
		base:    base,
		http:    httpClient,
		address: signer.Address(),
	}, nil
}

// NewFromPrivateKey builds a client paying with a local key.
func NewFromPrivateKey(privateKey string, opts ...Option) (*Client, error) {
	signer, err := wallet.FromPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet.FromPrivateKey failed: %w", err)
	}
	return New(signer, opts...)
}

// NewFromCustodialAccount builds a client paying through a custodial wallet.
func NewFromCustodialAccount(ctx context.Context, creds wallet.CustodialCredentials, opts ...Option) (*Client, error) {
	signer, err := wallet.FromCustodialAccount(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("wallet.FromCustodialAccount failed: %w", err)
	}
	return New(signer, opts...)
}

// Address returns the paying wallet address.
func (c *Client) Address() common.Address {
	return c.address
}

// BaseURL returns the API host the client talks to.
func (c *Client) BaseURL() string {
	return c.base
}

// Send sends an email.
func (c *Client) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	var res SendResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/send", nil, msg, &res); err != nil {
		return nil, err
	}
	if res == nil {
		res = SendResult{}
	}
	return res, nil
}

// Inbox returns the inbox address and counts.
func (c *Client) Inbox(ctx context.Context) (InboxSummary, error) {
	var res InboxSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/inbox", nil, nil, &res); err != nil {
		return nil, err
	}
	if res == nil {
		res = InboxSummary{}
	}
	return res, nil
}

// Messages lists inbox messages.
func (c *Client) Messages(ctx context.Context, q MessagesQuery) ([]Message, error) {
	limit := DefaultLimit
	if q.Limit != nil {
		limit = *q.Limit
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("unread_only", strconv.FormatBool(q.UnreadOnly))

	var res []Message
	if err := c.do(ctx, http.MethodGet, "/api/v1/inbox/messages", query, nil, &res); err != nil {
		return nil, err
	}
	if res == nil {
		res = []Message{}
	}
	return res, nil
}

// Read fetches a full message. The server marks it read.
func (c *Client) Read(ctx context.Context, messageID int64) (Message, error) {
	var res Message
	path := "/api/v1/inbox/messages/" + strconv.FormatInt(messageID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("json.Marshal failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("io.ReadAll failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response failed: %w", method, path, err)
	}

	return nil
}
