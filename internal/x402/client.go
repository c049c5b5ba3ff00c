package x402

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrPaymentFailed wraps every failure to answer a payment challenge.
	ErrPaymentFailed = errors.New("x402 payment failed")
	// ErrNoMatchingRequirements means none of the offered requirements has a registered scheme.
	ErrNoMatchingRequirements = errors.New("no supported payment requirements offered")
	// ErrAmountExceedsMax means the requested amount is above the configured cap.
	ErrAmountExceedsMax = errors.New("payment amount exceeds configured maximum")
	// ErrMalformedChallenge means the 402 response could not be decoded.
	ErrMalformedChallenge = errors.New("malformed payment challenge")
	// ErrUnsupportedNetwork means a network identifier is not an EVM chain.
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// SchemeClient builds the scheme-specific payload for one requirement.
type SchemeClient interface {
	Scheme() string
	CreatePayload(ctx context.Context, req PaymentRequirements) (json.RawMessage, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxAmount caps the amount of a single payment, in atomic units.
// A nil or zero cap disables the check.
func WithMaxAmount(limit *big.Int) ClientOption {
	return func(c *Client) {
		if limit != nil && limit.Sign() > 0 {
			c.maxAmount = new(big.Int).Set(limit)
		}
	}
}

// Client is a registry of payment schemes keyed by network.
type Client struct {
	schemes   map[string]SchemeClient
	maxAmount *big.Int
}

// NewClient creates an empty registry.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{schemes: make(map[string]SchemeClient)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register binds a scheme to a network. The network may be given in CAIP-2
// or v1 form.
func (c *Client) Register(network string, scheme SchemeClient) *Client {
	c.schemes[NormalizeNetwork(network)] = scheme
	return c
}

// Networks returns the registered network identifiers.
func (c *Client) Networks() []string {
	out := make([]string, 0, len(c.schemes))
	for n := range c.schemes {
		out = append(out, n)
	}
	return out
}

// Select picks the first offered requirement with a registered scheme and
// returns it together with its raw encoding. Entries that fail to decode are
// skipped; ErrMalformedChallenge is returned only when none decodes.
func (c *Client) Select(accepts []json.RawMessage) (PaymentRequirements, json.RawMessage, error) {
	var (
		decoded   int
		decodeErr error
	)

	for _, raw := range accepts {
		var req PaymentRequirements
		if err := json.Unmarshal(raw, &req); err != nil {
			if decodeErr == nil {
				decodeErr = err
			}
			continue
		}
		decoded++

		scheme, ok := c.schemes[NormalizeNetwork(req.Network)]
		if ok && scheme.Scheme() == req.Scheme {
			return req, raw, nil
		}
	}

	if decoded == 0 && decodeErr != nil {
		return PaymentRequirements{}, nil, fmt.Errorf("%w: %w", ErrMalformedChallenge, decodeErr)
	}

	return PaymentRequirements{}, nil, ErrNoMatchingRequirements
}

// CreatePaymentPayload answers a challenge with a signed payload in the
// challenge's protocol version.
func (c *Client) CreatePaymentPayload(ctx context.Context, challenge *PaymentRequired) (*PaymentPayload, error) {
	req, raw, err := c.Select(challenge.Accepts)
	if err != nil {
		return nil, err
	}

	if err := c.checkAmount(req.Value()); err != nil {
		return nil, err
	}

	scheme := c.schemes[NormalizeNetwork(req.Network)]
	payload, err := scheme.CreatePayload(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("scheme.CreatePayload failed: %w", err)
	}

	if challenge.X402Version >= V2 {
		return &PaymentPayload{
			X402Version: challenge.X402Version,
			Resource:    challenge.Resource,
			Accepted:    raw,
			Payload:     payload,
		}, nil
	}

	return &PaymentPayload{
		X402Version: V1,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload:     payload,
	}, nil
}

func (c *Client) checkAmount(value string) error {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return fmt.Errorf("%w: invalid amount %q", ErrMalformedChallenge, value)
	}

	if c.maxAmount != nil && amount.Cmp(c.maxAmount) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceedsMax, amount, c.maxAmount)
	}

	return nil
}
