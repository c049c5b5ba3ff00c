package x402

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SchemeExact is the identifier of the exact payment scheme.
const SchemeExact = "exact"

const (
	defaultTokenName    = "USD Coin"
	defaultTokenVersion = "2"
	validAfterSkew      = 600 * time.Second
)

// Signer signs EIP-712 typed data on behalf of one EVM address.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// ExactEvmScheme pays with an EIP-3009 transferWithAuthorization signature.
type ExactEvmScheme struct {
	signer Signer
	now    func() time.Time
}

// NewExactEvmScheme creates the exact EVM scheme for signer.
func NewExactEvmScheme(signer Signer) *ExactEvmScheme {
	return &ExactEvmScheme{signer: signer, now: time.Now}
}

// Scheme implements SchemeClient.
func (s *ExactEvmScheme) Scheme() string {
	return SchemeExact
}

// CreatePayload implements SchemeClient.
func (s *ExactEvmScheme) CreatePayload(ctx context.Context, req PaymentRequirements) (json.RawMessage, error) {
	if !common.IsHexAddress(req.PayTo) {
		return nil, fmt.Errorf("%w: payTo %q is not an address", ErrMalformedChallenge, req.PayTo)
	}
	if !common.IsHexAddress(req.Asset) {
		return nil, fmt.Errorf("%w: asset %q is not an address", ErrMalformedChallenge, req.Asset)
	}

	chainID, err := ChainID(req.Network)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("rand.Read failed: %w", err)
	}

	now := s.now().Unix()
	auth := Authorization{
		From:        s.signer.Address().Hex(),
		To:          common.HexToAddress(req.PayTo).Hex(),
		Value:       req.Value(),
		ValidAfter:  unixString(now - int64(validAfterSkew.Seconds())),
		ValidBefore: unixString(now + req.Timeout()),
		Nonce:       hexutil.Encode(nonce),
	}

	typed := TransferWithAuthorization(chainID, req, auth)

	sig, err := s.signer.SignTypedData(ctx, typed)
	if err != nil {
		return nil, fmt.Errorf("signer.SignTypedData failed: %w", err)
	}

	raw, err := json.Marshal(ExactEvmPayload{
		Signature:     hexutil.Encode(sig),
		Authorization: auth,
	})
	if err != nil {
		return nil, fmt.Errorf("json.Marshal failed: %w", err)
	}

	return raw, nil
}

// TransferWithAuthorization builds the EIP-712 document signed for auth.
func TransferWithAuthorization(chainID int64, req PaymentRequirements, auth Authorization) apitypes.TypedData {
	name, version := defaultTokenName, defaultTokenVersion
	if v := req.ExtraString("name"); v != "" {
		name = v
	}
	if v := req.ExtraString("version"); v != "" {
		version = v
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: common.HexToAddress(req.Asset).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       decimal(auth.Value),
			"validAfter":  decimal(auth.ValidAfter),
			"validBefore": decimal(auth.ValidBefore),
			"nonce":       auth.Nonce,
		},
	}
}

// decimal converts a base-10 string to the representation apitypes expects
// for uint256 fields.
func decimal(s string) *math.HexOrDecimal256 {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		v = new(big.Int)
	}
	return (*math.HexOrDecimal256)(v)
}
