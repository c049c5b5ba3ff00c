// Package wallet resolves credentials into signers able to authorize x402
// payments.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	// ErrInvalidPrivateKey indicates the key is not a 32-byte secp256k1 scalar.
	ErrInvalidPrivateKey = errors.New("invalid private key")
	// ErrCustodialUnavailable indicates the binary was built without custodial wallet support.
	ErrCustodialUnavailable = errors.New("custodial wallet support is not compiled in; rebuild with -tags cdp")
)

// Signer signs EIP-712 typed data for one EVM address.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// CustodialCredentials are the secrets for a remote custodial account.
type CustodialCredentials struct {
	APIKeyID     string
	APIKeySecret string
	WalletSecret string
	// AccountName selects the account; it is created on first use.
	AccountName string
	// BaseURL overrides the custody API host.
	BaseURL string
}

// Complete reports whether all three secrets are present.
func (c CustodialCredentials) Complete() bool {
	return c.APIKeyID != "" && c.APIKeySecret != "" && c.WalletSecret != ""
}

// KeySigner signs with a local private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// FromPrivateKey parses a hex private key, with or without 0x prefix.
func FromPrivateKey(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}

	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address implements Signer.
func (s *KeySigner) Address() common.Address {
	return s.addr
}

// SignTypedData implements Signer. The recovery id is returned as 27/28.
func (s *KeySigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("apitypes.TypedDataAndHash failed: %w", err)
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto.Sign failed: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}
